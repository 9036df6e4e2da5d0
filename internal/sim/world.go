// Package sim is the authoritative game simulation. A World owns the entity
// arena and the connection table; the server loop feeds it decoded packets,
// advances it one fixed step at a time and asks it for per-client snapshots.
//
// World is not safe for concurrent use. Everything runs on the loop goroutine.
package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"netgame/internal/ecs"
	"netgame/internal/protocol"
	"netgame/internal/session"
)

// Gameplay constants, in world units and seconds.
const (
	MoveSpeed      = 100
	BulletSpeed    = 200
	BulletLifetime = 2
	BulletSize     = 4
	PlayerSize     = 16
	RespawnDelay   = 5

	// Players spawn inside a FieldWidth x FieldHeight rectangle centred on
	// the origin, at least FieldMargin units from its edges.
	FieldWidth  = 300
	FieldHeight = 200
	FieldMargin = 20

	// AimDeadzone suppresses shots whose aim delta is this small on either axis.
	AimDeadzone = 1
)

// Rand is the random source used for spawn positions. *math/rand.Rand
// satisfies it.
type Rand interface {
	Intn(n int) int
}

// Kill is one attributed kill.
type Kill struct {
	Killer string
	Victim string
}

// String is the kill feed line.
func (k Kill) String() string {
	return fmt.Sprintf("%s obliterated %s!", k.Killer, k.Victim)
}

// Report describes what happened during one Tick.
type Report struct {
	Kills     []Kill
	Destroyed int
	Spawned   int
}

// World is the authoritative simulation state.
type World struct {
	Arena   *ecs.Arena
	Clients *session.Table
	Rand    Rand
	Stats   *protocol.Stats

	logger *slog.Logger
	report Report
}

// New creates a World with an empty arena and connection table. A nil
// logger discards output; a nil stats is allowed.
func New(rng Rand, stats *protocol.Stats, logger *slog.Logger) *World {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &World{
		Arena:   ecs.NewArena(),
		Clients: session.NewTable(logger),
		Rand:    rng,
		Stats:   stats,
		logger:  logger,
	}
}

// ProcessPacket applies one decoded packet to its sender's record. A freshly
// admitted client gets its player entity before the packet is applied and
// stops being fresh; the return value tells the caller to send that client a
// snapshot right away.
func (w *World) ProcessPacket(c *session.Client, pkt protocol.Packet) (sendNow bool) {
	if c.Fresh {
		w.spawnPlayer(c)
		c.Fresh = false
		sendNow = true
	}

	switch p := pkt.(type) {
	case *protocol.Input:
		if !w.Stats.Accept(c.LastSequence, p.Sequence) {
			return sendNow
		}
		c.LastSequence = p.Sequence
		c.ApplyButtons(p.Buttons)
		c.Aim[0], c.Aim[1] = p.AimX, p.AimY
		c.Name = p.Name
		if e := w.Arena.Resolve(c.Entity); e != nil {
			e.LastSequence = p.Sequence
		}

	case protocol.Header:
		if p.Kind == protocol.KindClientDisconnected {
			w.Destroy(c.Entity)
		}
	}
	return sendNow
}

// Destroy frees the entity named by id, first clearing the reference held by
// the client that owns it. Stale or invalid ids are ignored.
func (w *World) Destroy(id ecs.EntityID) bool {
	if !w.Arena.Alive(id) {
		return false
	}
	if owner := w.Clients.FindByEntity(id); owner != nil {
		owner.Entity = ecs.NilEntity
	}
	w.Arena.Free(id)
	w.report.Destroyed++
	return true
}

// Forget destroys the client's entity and drops its record.
func (w *World) Forget(c *session.Client) {
	w.Destroy(c.Entity)
	w.Clients.Forget(c)
}

// spawnPlayer gives c a new player entity somewhere in the spawn field. A
// client that still owns an entity loses it first.
func (w *World) spawnPlayer(c *session.Client) *ecs.Entity {
	w.Destroy(c.Entity)

	x := FieldMargin + w.Rand.Intn(FieldWidth-2*FieldMargin) - FieldWidth/2
	y := FieldMargin + w.Rand.Intn(FieldHeight-2*FieldMargin) - FieldHeight/2

	e, err := w.spawn()
	if err != nil {
		w.logger.Warn("player spawn dropped", "addr", c.Addr, "error", err)
		return nil
	}
	e.Pos[0], e.Pos[1] = float32(x), float32(y)
	e.Size = PlayerSize
	c.Entity = e.ID
	c.RespawnTimer = 0
	return e
}

func (w *World) spawn() (*ecs.Entity, error) {
	e, err := w.Arena.Spawn()
	if err != nil {
		if errors.Is(err, ecs.ErrOutOfCapacity) {
			return nil, fmt.Errorf("spawn: %w (%d live)", err, w.Arena.Len())
		}
		return nil, err
	}
	w.report.Spawned++
	return e, nil
}
