package sim

import (
	"github.com/go-gl/mathgl/mgl32"

	"netgame/internal/ecs"
	"netgame/internal/protocol"
	"netgame/internal/session"
)

// Tick advances the world by one fixed step of dt seconds. Inbound packets
// for the step must already have been applied with ProcessPacket.
func (w *World) Tick(dt float32) Report {
	w.report = Report{}

	// A client that dies during its own intent step starts the respawn
	// countdown on the next tick.
	w.Clients.Each(func(c *session.Client) {
		if e := w.Arena.Resolve(c.Entity); e != nil {
			w.applyIntent(c, e)
		} else {
			w.stepRespawn(c, dt)
		}
	})
	w.resolveCollisions()
	w.ageLifetimes(dt)
	w.Arena.Each(func(e *ecs.Entity) {
		e.Pos = e.Pos.Add(e.Vel.Mul(dt))
	})
	w.Clients.Each((*session.Client).ClearEdges)

	return w.report
}

// ─── Intent ──────────────────────────────────────────────────────────────────

func (w *World) applyIntent(c *session.Client, e *ecs.Entity) {
	var vel mgl32.Vec2
	if c.Down&protocol.ButtonLeft != 0 {
		vel[0] -= MoveSpeed
	}
	if c.Down&protocol.ButtonRight != 0 {
		vel[0] += MoveSpeed
	}
	if c.Down&protocol.ButtonUp != 0 {
		vel[1] -= MoveSpeed
	}
	if c.Down&protocol.ButtonDown != 0 {
		vel[1] += MoveSpeed
	}
	e.Vel = vel

	if c.Pressed&protocol.ButtonShoot != 0 {
		w.shoot(c, e)
	}

	if c.Down&protocol.ButtonKill != 0 {
		w.Destroy(e.ID)
	}
}

func (w *World) shoot(c *session.Client, shooter *ecs.Entity) {
	aim := c.Aim.Sub(shooter.Pos)
	if abs(aim[0]) <= AimDeadzone || abs(aim[1]) <= AimDeadzone {
		return
	}
	// Capture before spawning; the arena may hand out the next slot.
	parent, pos := shooter.ID, shooter.Pos

	b, err := w.spawn()
	if err != nil {
		w.logger.Warn("projectile spawn dropped", "shooter", parent, "error", err)
		return
	}
	b.Parent = parent
	b.Flags |= ecs.FlagHurts
	b.Pos = pos
	b.Vel = aim.Normalize().Mul(BulletSpeed)
	b.Lifetime = BulletLifetime
	b.Size = BulletSize
}

// ─── Respawn ─────────────────────────────────────────────────────────────────

// stepRespawn runs the dead-client state machine: a zero timer means the
// client just died and the countdown gets armed; otherwise it counts down and
// spawns a new player when it runs out.
func (w *World) stepRespawn(c *session.Client, dt float32) {
	if c.RespawnTimer <= 0 {
		c.RespawnTimer = RespawnDelay
		return
	}
	c.RespawnTimer -= dt
	if c.RespawnTimer <= 0 {
		c.RespawnTimer = 0
		w.spawnPlayer(c)
	}
}

// ─── Collisions ──────────────────────────────────────────────────────────────

func (w *World) resolveCollisions() {
	for i := ecs.MinSlot; i <= ecs.MaxSlot; i++ {
		attacker := w.Arena.Slot(i)
		if !attacker.ID.Valid() || !attacker.Has(ecs.FlagHurts) {
			continue
		}
		for j := ecs.MinSlot; j <= ecs.MaxSlot; j++ {
			if i == j {
				continue
			}
			victim := w.Arena.Slot(j)
			if !victim.ID.Valid() || victim.ID == attacker.Parent {
				continue
			}
			if !overlaps(attacker, victim) {
				continue
			}
			w.attributeKill(attacker, victim)
			w.Destroy(attacker.ID)
			w.Destroy(victim.ID)
			break
		}
	}
}

// overlaps is a square-vs-square test using half the summed sizes.
func overlaps(a, b *ecs.Entity) bool {
	r := 0.5*a.Size + 0.5*b.Size
	return abs(a.Pos[0]-b.Pos[0]) <= r && abs(a.Pos[1]-b.Pos[1]) <= r
}

func (w *World) attributeKill(attacker, victim *ecs.Entity) {
	if !attacker.Parent.Valid() {
		return
	}
	killer := w.Clients.FindByEntity(attacker.Parent)
	dead := w.Clients.FindByEntity(victim.ID)
	if killer == nil || dead == nil {
		return
	}
	k := Kill{Killer: killer.DisplayName(), Victim: dead.DisplayName()}
	w.report.Kills = append(w.report.Kills, k)
	w.logger.Info(k.String(), "killer", k.Killer, "victim", k.Victim)
}

// ─── Lifetime ────────────────────────────────────────────────────────────────

func (w *World) ageLifetimes(dt float32) {
	w.Arena.Each(func(e *ecs.Entity) {
		if e.Lifetime <= 0 {
			return
		}
		e.Lifetime -= dt
		if e.Lifetime <= 0 {
			w.Destroy(e.ID)
		}
	})
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
