package client

import (
	"github.com/go-gl/mathgl/mgl32"

	"netgame/internal/protocol"
)

// Input tracks the local button state and numbers outgoing input packets.
type Input struct {
	Name protocol.Name

	sequence uint16
	down     protocol.Buttons
	pressed  protocol.Buttons
	released protocol.Buttons
}

// NewInput creates an Input for a player name.
func NewInput(name string) *Input {
	return &Input{Name: protocol.MakeName(name)}
}

// Update records this tick's held buttons and returns the packet to send.
// Every call takes the next sequence number.
func (in *Input) Update(buttons protocol.Buttons, aim mgl32.Vec2) *protocol.Input {
	changes := buttons ^ in.down
	in.pressed = changes & buttons
	in.released = changes &^ buttons
	in.down = buttons
	in.sequence++

	return &protocol.Input{
		Header:  protocol.Header{Kind: protocol.KindInput, Sequence: in.sequence},
		Name:    in.Name,
		Buttons: buttons,
		AimX:    aim[0],
		AimY:    aim[1],
	}
}

// Down returns the buttons held as of the last Update.
func (in *Input) Down() protocol.Buttons { return in.down }

// Pressed returns the buttons that went down on the last Update.
func (in *Input) Pressed() protocol.Buttons { return in.pressed }

// Released returns the buttons that went up on the last Update.
func (in *Input) Released() protocol.Buttons { return in.released }

// Sequence returns the sequence of the last packet built.
func (in *Input) Sequence() uint16 { return in.sequence }
