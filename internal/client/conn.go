package client

import (
	"encoding"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"netgame/internal/protocol"
)

const inboxSize = 256

// PacketConn is the part of *net.UDPConn the client uses.
type PacketConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	Close() error
}

// SplitAddress parses "host[:port]". A missing host or port takes the
// defaults.
func SplitAddress(s string) (host string, port int, err error) {
	host, port = protocol.DefaultHost, protocol.DefaultPort
	if s == "" {
		return host, port, nil
	}
	h, p, found := strings.Cut(s, ":")
	if h != "" {
		host = h
	}
	if found && p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, fmt.Errorf("invalid port %q", p)
		}
	}
	return host, port, nil
}

// ResolveServer looks up the IPv4 address of a "host[:port]" string.
func ResolveServer(s string) (netip.AddrPort, error) {
	host, port, err := SplitAddress(s)
	if err != nil {
		return netip.AddrPort{}, err
	}
	ua, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	ap := ua.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// Conn talks to one server over an unconnected UDP socket. Datagrams from
// any other address are dropped.
type Conn struct {
	pc     PacketConn
	server netip.AddrPort
	stats  *protocol.Stats
	logger *slog.Logger

	inbox     chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens an IPv4 UDP socket for talking to server.
func Dial(server netip.AddrPort, stats *protocol.Stats, logger *slog.Logger) (*Conn, error) {
	uc, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("open udp4 socket: %w", err)
	}
	return NewConn(uc, server, stats, logger), nil
}

// NewConn wraps an open socket and starts its reader goroutine.
func NewConn(pc PacketConn, server netip.AddrPort, stats *protocol.Stats, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Conn{
		pc:     pc,
		server: server,
		stats:  stats,
		logger: logger,
		inbox:  make(chan []byte, inboxSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Server returns the address packets are sent to.
func (c *Conn) Server() netip.AddrPort { return c.server }

func (c *Conn) readLoop() {
	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, from, err := c.pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP errors from an unreachable server surface here.
			c.logger.Debug("udp read failed", "error", err)
			continue
		}
		if netip.AddrPortFrom(from.Addr().Unmap(), from.Port()) != c.server {
			continue
		}
		c.stats.RecordPacket(protocol.Inbound, n)
		select {
		case c.inbox <- append([]byte(nil), buf[:n]...):
		case <-c.done:
			return
		}
	}
}

// Poll returns the next queued packet without blocking. ok is false when
// nothing is queued. Undecodable datagrams are skipped.
func (c *Conn) Poll() (pkt protocol.Packet, ok bool) {
	for {
		select {
		case b := <-c.inbox:
			p, err := protocol.Decode(b)
			if err != nil {
				c.logger.Debug("dropped datagram", "size", len(b), "error", err)
				continue
			}
			return p, true
		default:
			return nil, false
		}
	}
}

// Send encodes and sends one packet to the server.
func (c *Conn) Send(p encoding.BinaryMarshaler) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	return c.write(b)
}

// SendHeader sends a header-only packet.
func (c *Conn) SendHeader(h protocol.Header) error {
	return c.write(protocol.AppendHeader(nil, h))
}

func (c *Conn) write(b []byte) error {
	n, err := c.pc.WriteToUDPAddrPort(b, c.server)
	if err != nil {
		return fmt.Errorf("send to %s: %w", c.server, err)
	}
	c.stats.RecordPacket(protocol.Outbound, n)
	return nil
}

// Close stops the reader and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pc.Close()
	})
	return err
}
