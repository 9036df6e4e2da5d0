// Package server runs the authoritative UDP game server. One goroutine reads
// datagrams off the socket into a channel; the loop goroutine drains that
// channel at the start of every step, advances the simulation and sends each
// client its snapshot. Only the loop goroutine touches the world.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"netgame/internal/protocol"
	"netgame/internal/session"
	"netgame/internal/sim"
	"netgame/internal/tick"
)

// inboxSize bounds how many datagrams can queue between two steps.
const inboxSize = 1024

// killFeedSize is how many recent kills a Frame carries.
const killFeedSize = 5

// PacketConn is the part of *net.UDPConn the server uses.
type PacketConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	Close() error
}

// Listen opens the IPv4 UDP socket the server reads and writes.
func Listen(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp4 port %d: %w", port, err)
	}
	return conn, nil
}

// Config tunes a Server. Zero values pick the defaults.
type Config struct {
	TickRate int
	// ClientTimeout forgets clients silent for longer than this. Zero
	// disables the check.
	ClientTimeout time.Duration
	Rand          sim.Rand
	Logger        *slog.Logger
}

// Frame is what spectators see of one step: the world as a recipient
// without an entity would receive it, plus the kill feed and traffic stats.
type Frame struct {
	Step    uint64
	State   protocol.WorldState
	Kills   []string
	Stats   protocol.NetStats
	Clients int
}

type datagram struct {
	from netip.AddrPort
	data []byte
}

// Server owns the socket and the simulation.
type Server struct {
	conn     PacketConn
	world    *sim.World
	stats    *protocol.Stats
	logger   *slog.Logger
	hz       int
	timeout  time.Duration
	now      func() time.Time
	inbox    chan datagram
	rejected *rate.Limiter

	// Loop goroutine only.
	steps     uint64
	out       protocol.WorldState
	spectator session.Client
	kills     []string

	latest atomic.Pointer[Frame]
}

// New creates a Server around an open socket. The Server closes conn when
// Run returns.
func New(conn PacketConn, cfg Config) *Server {
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
	stats := protocol.NewStats()
	return &Server{
		conn:     conn,
		world:    sim.New(rng, stats, logger),
		stats:    stats,
		logger:   logger,
		hz:       hz,
		timeout:  cfg.ClientTimeout,
		now:      time.Now,
		inbox:    make(chan datagram, inboxSize),
		rejected: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// World exposes the simulation. Callers must not touch it while Run is
// active.
func (s *Server) World() *sim.World { return s.world }

// Stats returns the server's traffic counters.
func (s *Server) Stats() *protocol.Stats { return s.stats }

// Latest returns the most recently published frame, or nil before the first
// step. The frame must be treated as read-only. Safe from any goroutine.
func (s *Server) Latest() *Frame { return s.latest.Load() }

// Run reads and simulates until ctx is cancelled, then closes the socket.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()

	s.logger.Info("simulation started", "tickrate", s.hz, "client_timeout", s.timeout)
	err := tick.Run(ctx, tick.Interval(s.hz), func(dt time.Duration) bool {
		s.Step(float32(dt.Seconds()))
		return true
	})

	cancel()
	closeErr := s.conn.Close()
	wg.Wait()
	s.logger.Info("simulation stopped", "steps", s.steps)

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, closeErr)
}

func (s *Server) readLoop(ctx context.Context) {
	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("udp read failed", "error", err)
			continue
		}
		d := datagram{
			from: netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
			data: append([]byte(nil), buf[:n]...),
		}
		select {
		case s.inbox <- d:
		case <-ctx.Done():
			return
		}
	}
}

// ─── Step ────────────────────────────────────────────────────────────────────

// Step drains every queued datagram, advances the world by dt seconds,
// broadcasts snapshots and publishes a spectator frame.
func (s *Server) Step(dt float32) {
	s.drain()
	s.expireIdle()

	rep := s.world.Tick(dt)
	for _, k := range rep.Kills {
		s.kills = append(s.kills, k.String())
	}
	if len(s.kills) > killFeedSize {
		s.kills = s.kills[len(s.kills)-killFeedSize:]
	}

	s.broadcast()
	s.steps++
	s.publish()
}

func (s *Server) drain() {
	for {
		select {
		case d := <-s.inbox:
			s.handle(d.from, d.data)
		default:
			return
		}
	}
}

// handle applies one datagram. Undecodable datagrams are dropped before
// admission, so garbage never takes a table slot.
func (s *Server) handle(from netip.AddrPort, data []byte) {
	s.stats.RecordPacket(protocol.Inbound, len(data))

	pkt, err := protocol.Decode(data)
	if err != nil {
		s.logger.Debug("dropped datagram", "from", from, "size", len(data), "error", err)
		return
	}

	c, err := s.world.Clients.Admit(from)
	if err != nil {
		if s.rejected.Allow() {
			s.logger.Warn("rejected peer", "from", from, "error", err)
		}
		return
	}

	if s.world.ProcessPacket(c, pkt) {
		s.sendSnapshot(c)
	}

	switch pkt.PacketHeader().Kind {
	case protocol.KindClientDisconnected:
		s.world.Forget(c)
	case protocol.KindPing:
		s.send(c, data)
	}
}

func (s *Server) expireIdle() {
	for _, c := range s.world.Clients.Expired(s.now(), s.timeout) {
		s.logger.Info("client timed out", "addr", c.Addr, "name", c.Name.String(), "idle", s.now().Sub(c.LastPacket))
		s.world.Forget(c)
	}
}

// ─── Broadcast ───────────────────────────────────────────────────────────────

// broadcast sends every client its own snapshot. A failed send is logged and
// the remaining clients are still served.
func (s *Server) broadcast() {
	for _, c := range s.world.Clients.Clients() {
		s.sendSnapshot(c)
	}
}

func (s *Server) sendSnapshot(c *session.Client) {
	s.world.SnapshotInto(c, &s.out)
	b, err := s.out.MarshalBinary()
	if err != nil {
		s.logger.Error("encode world state", "addr", c.Addr, "error", err)
		return
	}
	s.send(c, b)
}

func (s *Server) send(c *session.Client, b []byte) {
	n, err := s.conn.WriteToUDPAddrPort(b, c.Addr)
	if err != nil {
		s.logger.Warn("udp send failed", "addr", c.Addr, "error", err)
		return
	}
	if n != len(b) {
		s.logger.Warn("short udp send", "addr", c.Addr, "sent", n, "size", len(b))
	}
	s.stats.RecordPacket(protocol.Outbound, n)
}

func (s *Server) publish() {
	f := &Frame{
		Step:    s.steps,
		Kills:   append([]string(nil), s.kills...),
		Stats:   s.stats.Sample(),
		Clients: s.world.Clients.Len(),
	}
	s.world.SnapshotInto(&s.spectator, &f.State)
	s.latest.Store(f)
}
