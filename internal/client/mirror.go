// Package client is the network side of the game client: the local mirror
// of the server's entity table, input edge tracking and the UDP connection
// to the server.
package client

import (
	"github.com/go-gl/mathgl/mgl32"

	"netgame/internal/ecs"
	"netgame/internal/protocol"
)

// MirrorEntity is the client's copy of one server slot.
type MirrorEntity struct {
	ID   ecs.EntityID
	Name string

	// LastSequence is the snapshot sequence that last wrote this slot.
	LastSequence uint16

	Pos  mgl32.Vec2
	Vel  mgl32.Vec2
	Size float32
}

// Effects is told about every entity the mirror sees disappear, before the
// slot is invalidated.
type Effects interface {
	Destroyed(e MirrorEntity)
}

// EffectsFunc adapts a function to Effects.
type EffectsFunc func(e MirrorEntity)

// Destroyed calls f(e).
func (f EffectsFunc) Destroyed(e MirrorEntity) { f(e) }

// Mirror is the client's slot-indexed copy of the entity table. It only
// changes through Apply and Extrapolate.
type Mirror struct {
	entities [ecs.Capacity]MirrorEntity
	sequence uint16
	you      ecs.EntityID
	applied  int

	Effects Effects
	Stats   *protocol.Stats
}

// NewMirror creates an empty mirror. fx may be nil.
func NewMirror(fx Effects, stats *protocol.Stats) *Mirror {
	return &Mirror{Effects: fx, Stats: stats}
}

// Apply merges a snapshot. It returns false, changing nothing, when the
// snapshot is not newer than the last one applied.
func (m *Mirror) Apply(ws *protocol.WorldState) bool {
	if !m.Stats.Accept(m.sequence, ws.Sequence) {
		return false
	}
	m.sequence = ws.Sequence
	m.you = ws.You
	m.applied++

	for i := ecs.MinSlot; i <= ecs.MaxSlot; i++ {
		local := &m.entities[i]
		remote := &ws.Entities[i]

		if local.ID.Valid() && local.ID != remote.ID {
			if m.Effects != nil {
				m.Effects.Destroyed(*local)
			}
			local.ID = ecs.NilEntity
		}

		if remote.ID.Valid() {
			*local = MirrorEntity{
				ID:           remote.ID,
				LastSequence: ws.Sequence,
				Pos:          mgl32.Vec2{remote.X, remote.Y},
				Vel:          mgl32.Vec2{remote.DX, remote.DY},
				Size:         remote.Size,
			}
		}
	}

	for _, p := range ws.Roster() {
		if !p.Entity.Valid() {
			continue
		}
		if e := &m.entities[p.Entity.Slot()]; e.ID == p.Entity {
			e.Name = p.Name.String()
		}
	}
	return true
}

// Extrapolate moves every entity along its last known velocity. The result
// is cosmetic and is overwritten by the next snapshot.
func (m *Mirror) Extrapolate(dt float32) {
	m.Each(func(e *MirrorEntity) {
		e.Pos = e.Pos.Add(e.Vel.Mul(dt))
	})
}

// Resolve returns the mirrored entity named by id, or nil.
func (m *Mirror) Resolve(id ecs.EntityID) *MirrorEntity {
	if !id.Valid() {
		return nil
	}
	e := &m.entities[id.Slot()]
	if e.ID != id {
		return nil
	}
	return e
}

// Own returns the recipient's own entity, or nil while dead.
func (m *Mirror) Own() *MirrorEntity { return m.Resolve(m.you) }

// You returns the id the server last said this client owns.
func (m *Mirror) You() ecs.EntityID { return m.you }

// Sequence returns the sequence of the last applied snapshot.
func (m *Mirror) Sequence() uint16 { return m.sequence }

// Applied counts the snapshots applied so far.
func (m *Mirror) Applied() int { return m.applied }

// Each calls fn for every valid slot in slot order.
func (m *Mirror) Each(fn func(e *MirrorEntity)) {
	for i := ecs.MinSlot; i <= ecs.MaxSlot; i++ {
		if e := &m.entities[i]; e.ID.Valid() {
			fn(e)
		}
	}
}

// Len counts the valid slots.
func (m *Mirror) Len() int {
	n := 0
	m.Each(func(*MirrorEntity) { n++ })
	return n
}
