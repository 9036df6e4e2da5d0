package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"netgame/internal/ecs"
	"netgame/internal/protocol"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

type sentPacket struct {
	to   netip.AddrPort
	data []byte
}

// fakeConn records writes and serves reads from a channel.
type fakeConn struct {
	mu     sync.Mutex
	sent   []sentPacket
	fail   map[netip.AddrPort]bool
	reads  chan datagram
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		fail:   make(map[netip.AddrPort]bool),
		reads:  make(chan datagram, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-f.reads:
		return copy(b, d.data), d.from, nil
	case <-f.closed:
		return 0, netip.AddrPort{}, net.ErrClosed
	}
}

func (f *fakeConn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[addr] {
		return 0, errors.New("host unreachable")
	}
	f.sent = append(f.sent, sentPacket{to: addr, data: append([]byte(nil), b...)})
	return len(b), nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) to(addr netip.AddrPort) []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentPacket
	for _, p := range f.sent {
		if p.to == addr {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func newTestServer(conn PacketConn) *Server {
	return New(conn, Config{Rand: rand.New(rand.NewSource(42))})
}

func peer(i int) netip.AddrPort {
	return netip.MustParseAddrPort(fmt.Sprintf("192.168.1.%d:%d", i+1, 7000+i))
}

func inputPacket(seq uint16, name string, buttons protocol.Buttons) []byte {
	in := &protocol.Input{
		Header:  protocol.Header{Sequence: seq},
		Name:    protocol.MakeName(name),
		Buttons: buttons,
	}
	b, _ := in.MarshalBinary()
	return b
}

func kinds(pkts []sentPacket) []protocol.Kind {
	var out []protocol.Kind
	for _, p := range pkts {
		h, _ := protocol.PeekHeader(p.data)
		out = append(out, h.Kind)
	}
	return out
}

const dt = float32(1.0 / protocol.TickRate)

// ─── Admission ────────────────────────────────────────────────────────────────

func TestNewClientGetsImmediateSnapshot(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)

	s.handle(peer(0), inputPacket(1, "ann", 0))

	got := conn.to(peer(0))
	if len(got) != 1 {
		t.Fatalf("sent %d packets, want 1", len(got))
	}
	pkt, err := protocol.Decode(got[0].data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ws, ok := pkt.(*protocol.WorldState)
	if !ok {
		t.Fatalf("sent %T, want world state", pkt)
	}
	if !ws.You.Valid() {
		t.Fatal("immediate snapshot has no owned entity")
	}
	if c := s.World().Clients.Find(peer(0)); c == nil || c.Fresh {
		t.Fatal("client not admitted or still marked fresh")
	}
}

func TestKnownClientWaitsForBroadcast(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)

	s.handle(peer(0), inputPacket(1, "ann", 0))
	first := s.World().Clients.Find(peer(0)).Entity
	s.handle(peer(0), inputPacket(2, "ann", protocol.ButtonLeft))
	s.handle(peer(0), inputPacket(3, "ann", protocol.ButtonLeft))

	if got := len(conn.to(peer(0))); got != 1 {
		t.Fatalf("sent %d packets before the first step, want 1", got)
	}
	if c := s.World().Clients.Find(peer(0)); c.Entity != first {
		t.Fatalf("entity replaced: %v -> %v", first, c.Entity)
	}
}

func TestStatsCountTraffic(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)

	s.handle(peer(0), inputPacket(1, "ann", 0))
	s.handle(peer(0), inputPacket(1, "ann", 0))
	s.Step(dt)

	st := s.Stats().Sample()
	if st.BytesInPerSec <= 0 || st.BytesOutPerSec <= 0 {
		t.Fatalf("traffic not counted: %+v", st)
	}
	if st.AcceptedRatio != 0.5 {
		t.Fatalf("AcceptedRatio = %v, want 0.5", st.AcceptedRatio)
	}
}

func TestConnectionCapacity(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	for i := 0; i < protocol.MaxClients; i++ {
		s.handle(peer(i), inputPacket(1, fmt.Sprintf("p%d", i), 0))
	}
	s.Step(dt)

	late := peer(protocol.MaxClients)
	s.handle(late, inputPacket(1, "late", 0))
	s.Step(dt)

	if n := s.World().Clients.Len(); n != protocol.MaxClients {
		t.Fatalf("clients = %d, want %d", n, protocol.MaxClients)
	}
	if s.World().Clients.Find(late) != nil {
		t.Fatal("33rd address has a record")
	}
	if got := conn.to(late); len(got) != 0 {
		t.Fatalf("33rd address got %d packets", len(got))
	}
	if got := conn.to(peer(0)); len(got) != 3 {
		t.Fatalf("admitted peer got %d packets, want 3", len(got))
	}
}

func TestMalformedDatagramNotAdmitted(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)

	s.handle(peer(0), []byte{2, 0})
	s.handle(peer(1), []byte{99, 0, 1, 0})

	if n := s.World().Clients.Len(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
}

// ─── Packet kinds ─────────────────────────────────────────────────────────────

func TestPingEchoed(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	s.handle(peer(0), inputPacket(1, "ann", 0))
	conn.reset()

	ping := protocol.AppendHeader(nil, protocol.Header{Kind: protocol.KindPing, Sequence: 321})
	s.handle(peer(0), ping)

	got := conn.to(peer(0))
	if len(got) != 1 || string(got[0].data) != string(ping) {
		t.Fatalf("echo = %v, want %v", got, ping)
	}
}

func TestDisconnectForgetsClient(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	s.handle(peer(0), inputPacket(1, "ann", 0))
	s.handle(peer(1), inputPacket(1, "bea", 0))
	id := s.World().Clients.Find(peer(0)).Entity

	s.handle(peer(0), protocol.AppendHeader(nil, protocol.Header{Kind: protocol.KindClientDisconnected}))

	if s.World().Clients.Find(peer(0)) != nil {
		t.Fatal("disconnected client still in the table")
	}
	if s.World().Arena.Alive(id) {
		t.Fatal("disconnected client's entity still alive")
	}
	if s.World().Clients.Find(peer(1)) == nil {
		t.Fatal("other client was dropped")
	}

	conn.reset()
	s.Step(dt)
	if got := conn.to(peer(0)); len(got) != 0 {
		t.Fatalf("forgotten client got %d packets", len(got))
	}
}

// ─── Broadcast ────────────────────────────────────────────────────────────────

func TestBroadcastSurvivesSendFailure(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	s.handle(peer(0), inputPacket(1, "ann", 0))
	s.handle(peer(1), inputPacket(1, "bea", 0))
	s.handle(peer(2), inputPacket(1, "cat", 0))
	conn.reset()
	conn.fail[peer(1)] = true

	s.Step(dt)

	for _, p := range []netip.AddrPort{peer(0), peer(2)} {
		got := kinds(conn.to(p))
		if len(got) != 1 || got[0] != protocol.KindWorldState {
			t.Fatalf("%v got %v, want one world state", p, got)
		}
	}
}

func TestSnapshotCarriesMovement(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	s.handle(peer(0), inputPacket(1, "ann", 0))
	c := s.World().Clients.Find(peer(0))
	id := c.Entity
	x0 := s.World().Arena.Resolve(id).Pos[0]
	conn.reset()

	s.handle(peer(0), inputPacket(2, "ann", protocol.ButtonLeft))
	s.Step(dt)

	got := conn.to(peer(0))
	if len(got) != 1 {
		t.Fatalf("sent %d packets, want 1", len(got))
	}
	pkt, _ := protocol.Decode(got[0].data)
	ws := pkt.(*protocol.WorldState)
	if ws.You != id {
		t.Fatalf("You = %v, want %v", ws.You, id)
	}
	st := ws.Entities[id.Slot()]
	want := x0 - 100*dt
	if d := st.X - want; d > 1e-3 || d < -1e-3 {
		t.Fatalf("x = %v, want %v", st.X, want)
	}
}

// ─── Idle timeout ─────────────────────────────────────────────────────────────

func TestIdleClientsExpire(t *testing.T) {
	now := time.Unix(500, 0)
	conn := newFakeConn()
	s := New(conn, Config{Rand: rand.New(rand.NewSource(1)), ClientTimeout: 10 * time.Second})
	s.now = func() time.Time { return now }
	s.World().Clients.SetClock(s.now)

	s.handle(peer(0), inputPacket(1, "ann", 0))
	now = now.Add(6 * time.Second)
	s.handle(peer(1), inputPacket(1, "bea", 0))
	now = now.Add(6 * time.Second)

	s.Step(dt)

	if s.World().Clients.Find(peer(0)) != nil {
		t.Fatal("idle client was not forgotten")
	}
	if s.World().Clients.Find(peer(1)) == nil {
		t.Fatal("active client was forgotten")
	}
}

// ─── Spectator frames ─────────────────────────────────────────────────────────

func TestStepPublishesFrame(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	if s.Latest() != nil {
		t.Fatal("frame published before the first step")
	}
	s.handle(peer(0), inputPacket(1, "ann", 0))
	s.Step(dt)

	f := s.Latest()
	if f == nil {
		t.Fatal("no frame after Step")
	}
	if f.Step != 1 || f.Clients != 1 {
		t.Fatalf("frame step=%d clients=%d", f.Step, f.Clients)
	}
	if f.State.You != ecs.NilEntity {
		t.Fatalf("spectator frame owns %v", f.State.You)
	}
	if r := f.State.Roster(); len(r) != 1 || r[0].Name.String() != "ann" {
		t.Fatalf("roster = %+v", r)
	}
}

// ─── Run ──────────────────────────────────────────────────────────────────────

func TestRunServesUntilCancelled(t *testing.T) {
	conn := newFakeConn()
	s := newTestServer(conn)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.reads <- datagram{from: peer(0), data: inputPacket(1, "ann", 0)}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if f := s.Latest(); f != nil && f.Clients == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never showed up in a frame")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-conn.closed:
	default:
		t.Fatal("socket not closed")
	}
}
