// Package game is the client's top-level loop: it polls the terminal, sends
// one input packet per tick, folds server snapshots into the mirror and
// redraws.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gdamore/tcell/v2"

	"netgame/internal/client"
	"netgame/internal/protocol"
	"netgame/internal/render"
	"netgame/internal/tick"
)

const (
	// drawEvery redraws once per this many ticks; the terminal cannot keep
	// up with the full tick rate.
	drawEvery = 4

	eventQueue  = 64
	maxMessages = 50
)

// Config tunes a Game.
type Config struct {
	Name     string
	TickRate int
	Logger   *slog.Logger
	Stats    *protocol.Stats
	Rand     *rand.Rand
}

// Game is the top-level orchestrator.
type Game struct {
	screen   tcell.Screen
	renderer *render.Renderer
	controls *render.Controls
	conn     *client.Conn
	mirror   *client.Mirror
	input    *client.Input
	stats    *protocol.Stats
	logger   *slog.Logger
	hz       int
	now      func() time.Time

	events    chan tcell.Event
	ticks     uint64
	showStats bool
	messages  []string
}

// New creates a Game drawing on screen and talking through conn. The screen
// must already be initialised.
func New(screen tcell.Screen, conn *client.Conn, cfg Config) *Game {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hz := cfg.TickRate
	if hz <= 0 {
		hz = protocol.TickRate
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	screen.EnableMouse()
	renderer := render.NewRenderer(screen, rng)
	g := &Game{
		screen:    screen,
		renderer:  renderer,
		controls:  render.NewControls(),
		conn:      conn,
		mirror:    client.NewMirror(renderer.Bursts(), cfg.Stats),
		input:     client.NewInput(cfg.Name),
		stats:     cfg.Stats,
		logger:    logger,
		hz:        hz,
		now:       time.Now,
		events:    make(chan tcell.Event, eventQueue),
		showStats: true,
	}
	g.addMessage(fmt.Sprintf("Connecting to %s as %s.", conn.Server(), cfg.Name))
	g.addMessage("Arrows/WASD move, mouse or space shoots, k respawns, q quits.")
	return g
}

// Mirror returns the local copy of the world.
func (g *Game) Mirror() *client.Mirror { return g.mirror }

// Run is the main loop. It returns when the player quits or ctx is
// cancelled, after telling the server the client is leaving. The screen is
// finalised on return.
func (g *Game) Run(ctx context.Context) error {
	defer g.screen.Fini()

	done := make(chan struct{})
	defer close(done)
	go g.pollEvents(done)

	err := tick.Run(ctx, tick.Interval(g.hz), func(dt time.Duration) bool {
		return g.step(float32(dt.Seconds()))
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if sendErr := g.conn.SendHeader(protocol.Header{Kind: protocol.KindClientDisconnected}); sendErr != nil {
		g.logger.Warn("disconnect notice not sent", "error", sendErr)
	}
	return err
}

func (g *Game) pollEvents(done <-chan struct{}) {
	for {
		ev := g.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case g.events <- ev:
		case <-done:
			return
		}
	}
}

// step runs one client tick. It returns false when the player quits.
func (g *Game) step(dt float32) bool {
	now := g.now()
	for drained := false; !drained; {
		select {
		case ev := <-g.events:
			if !g.handleEvent(ev, now) {
				return false
			}
		default:
			drained = true
		}
	}

	aim := g.renderer.ScreenToWorld(g.controls.Mouse())
	if err := g.conn.Send(g.input.Update(g.controls.Buttons(now), aim)); err != nil {
		g.logger.Debug("input not sent", "sequence", g.input.Sequence(), "error", err)
	}

	g.receive()
	g.mirror.Extrapolate(dt)
	g.renderer.Update(g.mirror, dt)

	if g.ticks%drawEvery == 0 {
		g.draw()
	}
	g.ticks++
	return true
}

func (g *Game) handleEvent(ev tcell.Event, now time.Time) bool {
	switch g.controls.HandleEvent(ev, now) {
	case render.CommandQuit:
		return false
	case render.CommandToggleStats:
		g.showStats = !g.showStats
	case render.CommandResize:
		g.screen.Sync()
		g.renderer.Resize()
	}
	return true
}

// receive drains every queued packet from the server.
func (g *Game) receive() {
	for {
		pkt, ok := g.conn.Poll()
		if !ok {
			return
		}
		ws, isState := pkt.(*protocol.WorldState)
		if !isState {
			continue
		}
		hadEntity := g.mirror.Own() != nil
		first := g.mirror.Applied() == 0
		if !g.mirror.Apply(ws) {
			continue
		}
		switch {
		case first:
			g.addMessage("Connected.")
		case hadEntity && g.mirror.Own() == nil:
			g.addMessage("You were obliterated.")
		}
	}
}

func (g *Game) draw() {
	g.renderer.DrawFrame(g.mirror)
	g.renderer.DrawHUD(render.HUD{
		Title:     g.title(),
		Status:    g.status(),
		ShowStats: g.showStats,
		Stats:     g.stats.Sample(),
		Messages:  g.messages,
	})
}

func (g *Game) title() string {
	return fmt.Sprintf("%s @ %s", g.input.Name.String(), g.conn.Server())
}

func (g *Game) status() string {
	switch {
	case g.mirror.Applied() == 0:
		return "waiting for server"
	case g.mirror.Own() == nil:
		return fmt.Sprintf("dead, respawning  (%d entities)", g.mirror.Len())
	}
	return fmt.Sprintf("%d entities", g.mirror.Len())
}

func (g *Game) addMessage(msg string) {
	g.messages = append(g.messages, msg)
	if len(g.messages) > maxMessages {
		g.messages = g.messages[len(g.messages)-maxMessages:]
	}
}
