package render

import (
	"math/rand"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl32"

	"netgame/internal/client"
)

const (
	maxParticles     = 1024
	particleLifetime = 1
	particleSpeed    = 100
	minBurst         = 10
	maxBurst         = 30
)

type particle struct {
	pos   mgl32.Vec2
	vel   mgl32.Vec2
	t     float32
	color tcell.Color
}

// Bursts is a ring of short-lived particles spawned where entities are
// destroyed. It implements client.Effects.
type Bursts struct {
	rng       *rand.Rand
	particles [maxParticles]particle
	next      int
}

var _ client.Effects = (*Bursts)(nil)

// NewBursts creates an empty particle ring.
func NewBursts(rng *rand.Rand) *Bursts {
	return &Bursts{rng: rng}
}

// Destroyed spawns a burst at the entity's last position.
func (b *Bursts) Destroyed(e client.MirrorEntity) {
	n := minBurst + b.rng.Intn(maxBurst-minBurst+1)
	for i := 0; i < n; i++ {
		p := &b.particles[b.next]
		b.next = (b.next + 1) % maxParticles
		*p = particle{
			pos: e.Pos,
			vel: mgl32.Vec2{
				(b.rng.Float32()*2 - 1) * particleSpeed,
				(b.rng.Float32()*2 - 1) * particleSpeed,
			},
			t:     particleLifetime,
			color: Palette[b.rng.Intn(len(Palette))],
		}
	}
}

// Step ages and moves every live particle.
func (b *Bursts) Step(dt float32) {
	for i := range b.particles {
		p := &b.particles[i]
		if p.t <= 0 {
			continue
		}
		p.t -= dt
		p.pos = p.pos.Add(p.vel.Mul(dt))
	}
}

// Live counts the particles still on screen.
func (b *Bursts) Live() int {
	n := 0
	for i := range b.particles {
		if b.particles[i].t > 0 {
			n++
		}
	}
	return n
}

func (b *Bursts) each(fn func(p *particle)) {
	for i := range b.particles {
		if p := &b.particles[i]; p.t > 0 {
			fn(p)
		}
	}
}
