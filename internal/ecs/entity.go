package ecs

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Capacity is the fixed number of slots in an entity table. Slot 0 is
// reserved, so at most Capacity-1 entities can be alive at once.
const Capacity = 128

const (
	// MinSlot is the first slot that can hold a live entity.
	MinSlot = 1
	// MaxSlot is the last slot that can hold a live entity.
	MaxSlot = Capacity - 1
)

// EntityID names one lifetime of one slot: the slot index in the high 16
// bits and the slot's generation in the low 16 bits.
type EntityID uint32

// NilEntity is the zero value. Slot 0 is never valid.
const NilEntity EntityID = 0

// MakeID packs a slot and a generation into an EntityID.
func MakeID(slot, generation uint16) EntityID {
	return EntityID(uint32(slot)<<16 | uint32(generation))
}

// Slot returns the slot index part of the id.
func (id EntityID) Slot() uint16 { return uint16(id >> 16) }

// Generation returns the generation part of the id.
func (id EntityID) Generation() uint16 { return uint16(id) }

// Valid reports whether the slot index is inside [MinSlot, MaxSlot]. It says
// nothing about whether the entity is still alive; use Arena.Resolve for that.
func (id EntityID) Valid() bool {
	s := id.Slot()
	return s >= MinSlot && s <= MaxSlot
}

// String formats the id as slot:generation.
func (id EntityID) String() string {
	return fmt.Sprintf("%d:%d", id.Slot(), id.Generation())
}

// Flags is a bit set of entity behaviours.
type Flags uint32

const (
	// FlagHurts destroys whatever the entity touches, and the entity itself.
	FlagHurts Flags = 1 << 1
)

// Entity is the authoritative server-side state of one slot.
type Entity struct {
	ID EntityID

	// LastSequence is slot bookkeeping that survives reuse of the slot.
	LastSequence uint16

	// Parent is a weak reference; projectiles use it to skip their shooter
	// and to attribute kills.
	Parent EntityID

	Flags Flags

	Pos  mgl32.Vec2
	Vel  mgl32.Vec2
	Size float32

	// Lifetime in seconds; <= 0 means unlimited.
	Lifetime float32
}

// Has reports whether all bits of f are set.
func (e *Entity) Has(f Flags) bool { return e.Flags&f == f }
