// Package protocol is the wire contract shared by the server and the client:
// packet kinds, fixed little-endian layouts, the sequence acceptance test and
// traffic statistics.
package protocol

import "netgame/internal/ecs"

// Kind identifies how the bytes after the header are laid out.
type Kind uint16

const (
	// KindPing is header only; the server echoes it back unchanged.
	KindPing Kind = iota
	// KindClientDisconnected is header only and tells the server the
	// sender is leaving.
	KindClientDisconnected
	// KindInput carries one tick of client intent.
	KindInput
	// KindWorldState is the server's full snapshot.
	KindWorldState
)

// String returns the lower-case name used in logs.
func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindClientDisconnected:
		return "client_disconnected"
	case KindInput:
		return "input"
	case KindWorldState:
		return "world_state"
	}
	return "unknown"
}

// Buttons is the held-button bit mask a client sends with every input.
type Buttons uint32

// Button bits. Movement buttons act while held; SHOOT fires on its rising
// edge; KILL destroys the sender's entity while held.
const (
	ButtonLeft Buttons = 1 << iota
	ButtonRight
	ButtonUp
	ButtonDown
	ButtonShoot
	ButtonKill
)

const (
	// DefaultPort is the UDP port the server binds and the client dials.
	DefaultPort = 4950
	// DefaultHost is used when the client is started without an address.
	DefaultHost = "localhost"
	// TickRate is the simulation and input rate in Hz.
	TickRate = 120

	// NameSize is the fixed width of a username on the wire.
	NameSize = 32
	// MaxClients is the connection-table capacity and roster width.
	MaxClients = 32

	// MaxDatagramSize is the largest UDP payload IPv4 can carry.
	MaxDatagramSize = 65507
	// MaxPacketSize is the receive buffer size used by both ends.
	MaxPacketSize = 8192
)

// Wire sizes of every packet.
const (
	HeaderSize      = 4
	InputSize       = HeaderSize + NameSize + 4 + 4 + 4
	PlayerSize      = NameSize + 4
	EntityStateSize = 4 + 5*4
	WorldStateSize  = HeaderSize + 4 + MaxClients*PlayerSize + 4 + ecs.Capacity*EntityStateSize
)

// Compile-time guard: the largest packet must fit in one datagram and in the
// receive buffer.
var (
	_ [MaxDatagramSize - WorldStateSize]struct{}
	_ [MaxPacketSize - WorldStateSize]struct{}
)

// Header starts every packet.
type Header struct {
	Kind     Kind
	Sequence uint16
}

// Name is a fixed-width, zero-padded username.
type Name [NameSize]byte

// MakeName truncates s to fit the wire field, keeping a terminating zero.
func MakeName(s string) Name {
	var n Name
	copy(n[:NameSize-1], s)
	return n
}

// String returns the name up to the first zero byte.
func (n Name) String() string {
	for i, b := range n {
		if b == 0 {
			return string(n[:i])
		}
	}
	return string(n[:])
}

// Input is the client's intent for one tick.
type Input struct {
	Header
	Name    Name
	Buttons Buttons
	AimX    float32
	AimY    float32
}

// Player is one roster entry.
type Player struct {
	Name   Name
	Entity ecs.EntityID
}

// EntityState is one slot of the entity table as sent to clients.
type EntityState struct {
	ID     ecs.EntityID
	X, Y   float32
	DX, DY float32
	Size   float32
}

// WorldState is the full authoritative snapshot sent to one client.
type WorldState struct {
	Header
	PlayerCount uint32
	Players     [MaxClients]Player
	You         ecs.EntityID
	Entities    [ecs.Capacity]EntityState
}

// Roster returns the populated part of Players.
func (ws *WorldState) Roster() []Player {
	n := int(ws.PlayerCount)
	if n > MaxClients {
		n = MaxClients
	}
	return ws.Players[:n]
}
