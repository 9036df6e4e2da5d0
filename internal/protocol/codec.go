package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"netgame/internal/ecs"
)

var (
	// ErrShortPacket means the datagram is smaller than its kind requires.
	ErrShortPacket = errors.New("protocol: packet too short")
	// ErrUnknownKind means the header names a kind this build does not know.
	ErrUnknownKind = errors.New("protocol: unknown packet kind")
	// ErrPacketTooLarge means an encoded packet would not fit in one datagram.
	ErrPacketTooLarge = errors.New("protocol: packet too large")
)

var le = binary.LittleEndian

// Packet is implemented by every decoded packet type.
type Packet interface {
	PacketHeader() Header
}

// PacketHeader returns h, so a bare Header is itself a Packet.
func (h Header) PacketHeader() Header { return h }

// PeekHeader reads the header without looking at the payload.
func PeekHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortPacket
	}
	return Header{Kind: Kind(le.Uint16(b[0:])), Sequence: le.Uint16(b[2:])}, nil
}

// Decode parses a datagram. PING and CLIENT_DISCONNECTED decode to a bare
// Header, INPUT to *Input and WORLD_STATE to *WorldState.
func Decode(b []byte) (Packet, error) {
	h, err := PeekHeader(b)
	if err != nil {
		return nil, err
	}
	switch h.Kind {
	case KindPing, KindClientDisconnected:
		return h, nil
	case KindInput:
		in := new(Input)
		if err := in.unmarshal(b); err != nil {
			return nil, err
		}
		return in, nil
	case KindWorldState:
		ws := new(WorldState)
		if err := ws.unmarshal(b); err != nil {
			return nil, err
		}
		return ws, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, h.Kind)
}

// AppendHeader appends an encoded header-only packet.
func AppendHeader(dst []byte, h Header) []byte {
	dst = le.AppendUint16(dst, uint16(h.Kind))
	return le.AppendUint16(dst, h.Sequence)
}

// MarshalBinary encodes the input packet. The header kind is forced to INPUT.
func (in *Input) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, InputSize)
	b = AppendHeader(b, Header{Kind: KindInput, Sequence: in.Sequence})
	b = append(b, in.Name[:]...)
	b = le.AppendUint32(b, uint32(in.Buttons))
	b = appendFloat(b, in.AimX)
	b = appendFloat(b, in.AimY)
	return b, nil
}

func (in *Input) unmarshal(b []byte) error {
	if len(b) < InputSize {
		return fmt.Errorf("%w: input is %d bytes, want %d", ErrShortPacket, len(b), InputSize)
	}
	in.Header = Header{Kind: KindInput, Sequence: le.Uint16(b[2:])}
	off := HeaderSize
	copy(in.Name[:], b[off:off+NameSize])
	off += NameSize
	in.Buttons = Buttons(le.Uint32(b[off:]))
	in.AimX = readFloat(b[off+4:])
	in.AimY = readFloat(b[off+8:])
	return nil
}

// MarshalBinary encodes the snapshot at its full fixed size.
func (ws *WorldState) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, WorldStateSize)
	b = AppendHeader(b, Header{Kind: KindWorldState, Sequence: ws.Sequence})
	b = le.AppendUint32(b, ws.PlayerCount)
	for i := range ws.Players {
		p := &ws.Players[i]
		b = append(b, p.Name[:]...)
		b = appendID(b, p.Entity)
	}
	b = appendID(b, ws.You)
	for i := range ws.Entities {
		s := &ws.Entities[i]
		b = appendID(b, s.ID)
		b = appendFloat(b, s.X)
		b = appendFloat(b, s.Y)
		b = appendFloat(b, s.DX)
		b = appendFloat(b, s.DY)
		b = appendFloat(b, s.Size)
	}
	if len(b) > MaxDatagramSize {
		return nil, ErrPacketTooLarge
	}
	return b, nil
}

func (ws *WorldState) unmarshal(b []byte) error {
	if len(b) < WorldStateSize {
		return fmt.Errorf("%w: world state is %d bytes, want %d", ErrShortPacket, len(b), WorldStateSize)
	}
	ws.Header = Header{Kind: KindWorldState, Sequence: le.Uint16(b[2:])}
	off := HeaderSize
	ws.PlayerCount = le.Uint32(b[off:])
	off += 4
	for i := range ws.Players {
		p := &ws.Players[i]
		copy(p.Name[:], b[off:off+NameSize])
		p.Entity = readID(b[off+NameSize:])
		off += PlayerSize
	}
	ws.You = readID(b[off:])
	off += 4
	for i := range ws.Entities {
		s := &ws.Entities[i]
		s.ID = readID(b[off:])
		s.X = readFloat(b[off+4:])
		s.Y = readFloat(b[off+8:])
		s.DX = readFloat(b[off+12:])
		s.DY = readFloat(b[off+16:])
		s.Size = readFloat(b[off+20:])
		off += EntityStateSize
	}
	return nil
}

// Entity ids travel as slot then generation, two little-endian u16s.
func appendID(b []byte, id ecs.EntityID) []byte {
	b = le.AppendUint16(b, id.Slot())
	return le.AppendUint16(b, id.Generation())
}

func readID(b []byte) ecs.EntityID {
	return ecs.MakeID(le.Uint16(b[0:]), le.Uint16(b[2:]))
}

func appendFloat(b []byte, f float32) []byte {
	return le.AppendUint32(b, math.Float32bits(f))
}

func readFloat(b []byte) float32 {
	return math.Float32frombits(le.Uint32(b))
}
