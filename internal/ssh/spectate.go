package ssh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gdamore/tcell/v2"

	"netgame/internal/client"
	"netgame/internal/render"
	"netgame/internal/server"
	"netgame/internal/tick"
)

// RefreshRate is how often a spectator screen is redrawn, in Hz.
const RefreshRate = 30

// FrameSource hands out the most recent published frame, or nil before the
// first step. *server.Server implements it.
type FrameSource interface {
	Latest() *server.Frame
}

// Spectator draws published frames onto one terminal. It never sends
// anything to the simulation.
type Spectator struct {
	screen   tcell.Screen
	source   FrameSource
	renderer *render.Renderer
	controls *render.Controls
	mirror   *client.Mirror
	now      func() time.Time

	events    chan tcell.Event
	frame     *server.Frame
	showStats bool
}

// NewSpectator creates a Spectator on an initialised screen.
func NewSpectator(screen tcell.Screen, source FrameSource, rng *rand.Rand) *Spectator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	renderer := render.NewRenderer(screen, rng)
	return &Spectator{
		screen:    screen,
		source:    source,
		renderer:  renderer,
		controls:  render.NewControls(),
		mirror:    client.NewMirror(renderer.Bursts(), nil),
		now:       time.Now,
		events:    make(chan tcell.Event, 16),
		showStats: true,
	}
}

// Run redraws until the viewer quits or ctx is cancelled. The screen is
// finalised on return.
func (sp *Spectator) Run(ctx context.Context) error {
	defer sp.screen.Fini()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev := sp.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case sp.events <- ev:
			case <-done:
				return
			}
		}
	}()

	err := tick.Run(ctx, tick.Interval(RefreshRate), func(dt time.Duration) bool {
		return sp.step(float32(dt.Seconds()))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (sp *Spectator) step(dt float32) bool {
	now := sp.now()
	for drained := false; !drained; {
		select {
		case ev := <-sp.events:
			switch sp.controls.HandleEvent(ev, now) {
			case render.CommandQuit:
				return false
			case render.CommandToggleStats:
				sp.showStats = !sp.showStats
			case render.CommandResize:
				sp.screen.Sync()
				sp.renderer.Resize()
			}
		default:
			drained = true
		}
	}

	if f := sp.source.Latest(); f != nil && f != sp.frame {
		sp.frame = f
		sp.mirror.Apply(&f.State)
	}
	sp.mirror.Extrapolate(dt)
	sp.renderer.Update(sp.mirror, dt)
	sp.draw()
	return true
}

func (sp *Spectator) draw() {
	sp.renderer.DrawFrame(sp.mirror)
	hud := render.HUD{Title: "spectating", ShowStats: sp.showStats}
	if f := sp.frame; f != nil {
		hud.Status = fmt.Sprintf("%d players  step %d", f.Clients, f.Step)
		hud.Stats = f.Stats
		hud.Messages = f.Kills
	} else {
		hud.Status = "waiting for the simulation"
	}
	sp.renderer.DrawHUD(hud)
}
