package render

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"netgame/internal/protocol"
)

// DefaultHoldTime is how long a key counts as held after its last press or
// auto-repeat.
const DefaultHoldTime = 300 * time.Millisecond

// Command is a client-side request that never reaches the server.
type Command uint8

const (
	// CommandNone means the event only changed buttons or aim.
	CommandNone Command = iota
	// CommandQuit ends the client.
	CommandQuit
	// CommandToggleStats shows or hides the traffic line.
	CommandToggleStats
	// CommandResize asks the caller to resync the screen.
	CommandResize
)

// Controls turns tcell events into held buttons and an aim cell. Terminals
// report key presses but not releases, so keys decay after HoldTime; mouse
// buttons report both and are tracked exactly.
type Controls struct {
	HoldTime time.Duration

	held      map[protocol.Buttons]time.Time
	mouseDown bool
	mouseX    int
	mouseY    int
}

// NewControls creates Controls with the default hold time.
func NewControls() *Controls {
	return &Controls{
		HoldTime: DefaultHoldTime,
		held:     make(map[protocol.Buttons]time.Time),
	}
}

// HandleEvent records one tcell event.
func (c *Controls) HandleEvent(ev tcell.Event, now time.Time) Command {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		return CommandResize
	case *tcell.EventKey:
		if cmd := keyCommand(ev); cmd != CommandNone {
			return cmd
		}
		if b := keyButton(ev); b != 0 {
			c.held[b] = now
		}
	case *tcell.EventMouse:
		c.mouseX, c.mouseY = ev.Position()
		c.mouseDown = ev.Buttons()&tcell.Button1 != 0
	}
	return CommandNone
}

// Buttons returns the mask to send for this tick.
func (c *Controls) Buttons(now time.Time) protocol.Buttons {
	var b protocol.Buttons
	for btn, at := range c.held {
		if now.Sub(at) <= c.HoldTime {
			b |= btn
		} else {
			delete(c.held, btn)
		}
	}
	if c.mouseDown {
		b |= protocol.ButtonShoot
	}
	return b
}

// Mouse returns the last reported pointer cell.
func (c *Controls) Mouse() (x, y int) { return c.mouseX, c.mouseY }

func keyCommand(ev *tcell.EventKey) Command {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return CommandQuit
	case tcell.KeyF3:
		return CommandToggleStats
	case tcell.KeyRune:
		if ev.Rune() == 'q' || ev.Rune() == 'Q' {
			return CommandQuit
		}
	}
	return CommandNone
}

// keyButton maps a tcell key event to a game button.
func keyButton(ev *tcell.EventKey) protocol.Buttons {
	// Named keys.
	switch ev.Key() {
	case tcell.KeyUp:
		return protocol.ButtonUp
	case tcell.KeyDown:
		return protocol.ButtonDown
	case tcell.KeyRight:
		return protocol.ButtonRight
	case tcell.KeyLeft:
		return protocol.ButtonLeft
	case tcell.KeyRune:
	default:
		return 0
	}

	// Rune keys.
	switch ev.Rune() {
	case 'w', 'W':
		return protocol.ButtonUp
	case 's', 'S':
		return protocol.ButtonDown
	case 'd', 'D':
		return protocol.ButtonRight
	case 'a', 'A':
		return protocol.ButtonLeft
	case ' ':
		return protocol.ButtonShoot
	case 'k', 'K':
		return protocol.ButtonKill
	}
	return 0
}
