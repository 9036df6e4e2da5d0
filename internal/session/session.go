// Package session is the server's connection table. Each UDP peer that gets
// past admission owns one Client record; the table holds at most
// protocol.MaxClients of them.
package session

import (
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"netgame/internal/ecs"
	"netgame/internal/protocol"
)

// ErrTableFull is returned by Admit when every record is in use.
var ErrTableFull = errors.New("session: connection table full")

// Client holds all per-peer state the server keeps between packets.
type Client struct {
	Addr netip.AddrPort

	// Fresh is set only on the Admit call that created the record.
	Fresh      bool
	LastPacket time.Time

	Name protocol.Name

	// Entity is a weak reference; NilEntity while dead.
	Entity ecs.EntityID

	LastSequence     uint16
	SnapshotSequence uint16

	// Held buttons, and the edges accumulated since the last tick.
	Down     protocol.Buttons
	Pressed  protocol.Buttons
	Released protocol.Buttons

	Aim mgl32.Vec2

	// RespawnTimer > 0 means the countdown is armed.
	RespawnTimer float32
}

// DisplayName returns the name the client reported, or its address when it
// has not sent one yet.
func (c *Client) DisplayName() string {
	if n := c.Name.String(); n != "" {
		return n
	}
	return c.Addr.String()
}

// ApplyButtons records a new held mask and accumulates the edges against the
// previous one.
func (c *Client) ApplyButtons(down protocol.Buttons) {
	changes := c.Down ^ down
	c.Pressed |= changes & down
	c.Released |= changes &^ down
	c.Down = down
}

// ClearEdges forgets the pressed and released edges.
func (c *Client) ClearEdges() {
	c.Pressed = 0
	c.Released = 0
}

// Table is the fixed-capacity set of connected clients. It is not safe for
// concurrent use; the server loop owns it.
type Table struct {
	clients []*Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewTable creates an empty table. A nil logger discards output.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Table{
		clients: make([]*Client, 0, protocol.MaxClients),
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used to stamp LastPacket.
func (t *Table) SetClock(now func() time.Time) { t.now = now }

// Admit returns the record for addr, creating it if capacity allows. An
// existing record has Fresh cleared; a new one has it set.
func (t *Table) Admit(addr netip.AddrPort) (*Client, error) {
	now := t.now()
	if c := t.Find(addr); c != nil {
		c.Fresh = false
		c.LastPacket = now
		return c, nil
	}
	if len(t.clients) >= protocol.MaxClients {
		return nil, ErrTableFull
	}
	c := &Client{Addr: addr, Fresh: true, LastPacket: now}
	t.clients = append(t.clients, c)
	t.logger.Info("client connected", "addr", addr, "clients", len(t.clients))
	return c, nil
}

// Find returns the record for addr or nil.
func (t *Table) Find(addr netip.AddrPort) *Client {
	for _, c := range t.clients {
		if c.Addr == addr {
			return c
		}
	}
	return nil
}

// FindByEntity returns the client whose owned entity is id, or nil.
func (t *Table) FindByEntity(id ecs.EntityID) *Client {
	if !id.Valid() {
		return nil
	}
	for _, c := range t.clients {
		if c.Entity == id {
			return c
		}
	}
	return nil
}

// Forget removes c by swapping the last record into its place. Pointers to
// other records stay valid but the iteration order changes.
func (t *Table) Forget(c *Client) {
	for i, other := range t.clients {
		if other != c {
			continue
		}
		last := len(t.clients) - 1
		t.clients[i] = t.clients[last]
		t.clients[last] = nil
		t.clients = t.clients[:last]
		t.logger.Info("client disconnected", "addr", c.Addr, "name", c.Name.String(), "clients", len(t.clients))
		return
	}
}

// Each calls fn for every client in table order.
func (t *Table) Each(fn func(c *Client)) {
	for _, c := range t.clients {
		fn(c)
	}
}

// Clients returns the live slice. Callers must not keep it past the tick.
func (t *Table) Clients() []*Client { return t.clients }

// Len returns the number of connected clients.
func (t *Table) Len() int { return len(t.clients) }

// Expired returns the clients that have been silent longer than timeout. A
// zero timeout disables the check.
func (t *Table) Expired(now time.Time, timeout time.Duration) []*Client {
	if timeout <= 0 {
		return nil
	}
	var out []*Client
	for _, c := range t.clients {
		if now.Sub(c.LastPacket) > timeout {
			out = append(out, c)
		}
	}
	return out
}
