package sim

import (
	"netgame/internal/ecs"
	"netgame/internal/protocol"
	"netgame/internal/session"
)

// Snapshot builds the world state for one recipient and advances that
// client's snapshot sequence. The entity table is copied at full capacity;
// empty slots stay zeroed.
func (w *World) Snapshot(c *session.Client) *protocol.WorldState {
	ws := new(protocol.WorldState)
	w.SnapshotInto(c, ws)
	return ws
}

// SnapshotInto is Snapshot writing into a caller-owned buffer.
func (w *World) SnapshotInto(c *session.Client, ws *protocol.WorldState) {
	*ws = protocol.WorldState{}
	c.SnapshotSequence++
	ws.Kind = protocol.KindWorldState
	ws.Sequence = c.SnapshotSequence
	ws.You = w.liveID(c.Entity)

	for i, other := range w.Clients.Clients() {
		if i >= protocol.MaxClients {
			break
		}
		ws.Players[i] = protocol.Player{Name: other.Name, Entity: w.liveID(other.Entity)}
		ws.PlayerCount++
	}

	w.Arena.Each(func(e *ecs.Entity) {
		ws.Entities[e.ID.Slot()] = protocol.EntityState{
			ID:   e.ID,
			X:    e.Pos[0],
			Y:    e.Pos[1],
			DX:   e.Vel[0],
			DY:   e.Vel[1],
			Size: e.Size,
		}
	})
}

func (w *World) liveID(id ecs.EntityID) ecs.EntityID {
	if w.Arena.Alive(id) {
		return id
	}
	return ecs.NilEntity
}
