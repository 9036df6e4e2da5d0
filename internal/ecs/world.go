package ecs

import "errors"

// ErrOutOfCapacity is returned by Spawn when every usable slot is taken.
var ErrOutOfCapacity = errors.New("ecs: entity table is full")

// Arena is the fixed-capacity entity table. Slots are recycled; every Free
// bumps the slot's generation so ids handed out earlier stop resolving.
type Arena struct {
	slots [Capacity]Entity
	live  int
}

// NewArena creates an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// Spawn claims the first free slot. The slot keeps its generation and
// LastSequence; every other field starts zeroed.
func (a *Arena) Spawn() (*Entity, error) {
	for i := MinSlot; i <= MaxSlot; i++ {
		e := &a.slots[i]
		if e.ID.Valid() {
			continue
		}
		gen := e.ID.Generation()
		seq := e.LastSequence
		*e = Entity{
			ID:           MakeID(uint16(i), gen),
			LastSequence: seq,
		}
		a.live++
		return e, nil
	}
	return nil, ErrOutOfCapacity
}

// Free invalidates the entity's slot and bumps its generation. Freeing an
// entity whose id no longer resolves is a no-op.
func (a *Arena) Free(id EntityID) bool {
	e := a.Resolve(id)
	if e == nil {
		return false
	}
	// Slot 0 marks the slot empty; the generation stays so the next Spawn
	// hands out a strictly newer id.
	e.ID = MakeID(0, id.Generation()+1)
	a.live--
	return true
}

// Resolve returns the live entity named by id, or nil when the id is out of
// range or stale.
func (a *Arena) Resolve(id EntityID) *Entity {
	if !id.Valid() {
		return nil
	}
	e := &a.slots[id.Slot()]
	if e.ID != id {
		return nil
	}
	return e
}

// Alive reports whether id currently resolves.
func (a *Arena) Alive(id EntityID) bool {
	return a.Resolve(id) != nil
}

// Slot returns the raw slot at index i, live or not. It is meant for code
// that has to walk the full table, such as snapshot building.
func (a *Arena) Slot(i int) *Entity {
	return &a.slots[i]
}

// Len returns the number of live entities.
func (a *Arena) Len() int { return a.live }

// Each calls fn for every live entity in slot order. Entities freed during
// the walk are skipped once reached.
func (a *Arena) Each(fn func(e *Entity)) {
	for i := MinSlot; i <= MaxSlot; i++ {
		e := &a.slots[i]
		if !e.ID.Valid() {
			continue
		}
		fn(e)
	}
}
