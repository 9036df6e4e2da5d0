// Package ssh serves a read-only spectator console over SSH. Every session
// gets its own terminal screen showing the live simulation, the kill feed
// and traffic stats.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	gossh "github.com/gliderlabs/ssh"
	"github.com/google/uuid"
)

const defaultTerm = "xterm-256color"

// Console is the SSH spectator server.
type Console struct {
	source FrameSource
	signer gossh.Signer
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]context.CancelFunc
}

// NewConsole creates a Console showing frames from source.
func NewConsole(source FrameSource, signer gossh.Signer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Console{
		source:   source,
		signer:   signer,
		logger:   logger,
		sessions: make(map[uuid.UUID]context.CancelFunc),
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (c *Console) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen ssh %s: %w", addr, err)
	}
	return c.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is cancelled, then ends every
// open session. It returns nil on a clean shutdown.
func (c *Console) Serve(ctx context.Context, l net.Listener) error {
	srv := &gossh.Server{
		Handler: func(s gossh.Session) {
			c.handle(ctx, s)
		},
		// Spectating is read-only, so any client may watch.
		PtyCallback: func(gossh.Context, gossh.Pty) bool { return true },
		HostSigners: []gossh.Signer{c.signer},
	}

	stop := context.AfterFunc(ctx, func() {
		c.closeSessions()
		srv.Close()
	})
	defer stop()

	c.logger.Info("spectator console listening", "addr", l.Addr().String())
	err := srv.Serve(l)
	if ctx.Err() != nil && errors.Is(err, gossh.ErrServerClosed) {
		return nil
	}
	return err
}

// Sessions returns the number of connected spectators.
func (c *Console) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// handle runs one spectator. It blocks for as long as the session lasts.
func (c *Console) handle(parent context.Context, s gossh.Session) {
	id := uuid.New()
	logger := c.logger.With("session", id.String(), "remote", s.RemoteAddr().String())

	pty, winCh, ok := s.Pty()
	if !ok {
		fmt.Fprintln(s, "The spectator console needs a terminal. Connect with: ssh -t <host>")
		logger.Info("spectator refused, no pty")
		return
	}

	screen, err := newScreen(s, pty, winCh)
	if err != nil {
		fmt.Fprintf(s, "Terminal setup failed: %v\n", err)
		logger.Warn("spectator screen failed", "term", pty.Term, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	// The session context ends when the client hangs up.
	stop := context.AfterFunc(s.Context(), cancel)
	defer stop()

	c.track(id, cancel)
	defer c.untrack(id)

	logger.Info("spectator connected", "user", s.User())
	start := time.Now()
	if err := NewSpectator(screen, c.source, nil).Run(ctx); err != nil {
		logger.Warn("spectator ended", "error", err)
	}
	logger.Info("spectator disconnected", "duration", time.Since(start).Round(time.Second))
}

func (c *Console) track(id uuid.UUID, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[id] = cancel
}

func (c *Console) untrack(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

func (c *Console) closeSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.sessions {
		cancel()
	}
}

// termMu serialises the TERM lookup: tcell reads it from the process
// environment while building a terminfo screen.
var termMu sync.Mutex

func newScreen(s gossh.Session, pty gossh.Pty, winCh <-chan gossh.Window) (tcell.Screen, error) {
	term := pty.Term
	if term == "" {
		term = defaultTerm
	}
	for _, env := range s.Environ() {
		if v, ok := strings.CutPrefix(env, "TERM="); ok && v != "" {
			term = v
			break
		}
	}

	termMu.Lock()
	prev, had := os.LookupEnv("TERM")
	_ = os.Setenv("TERM", term)
	screen, err := tcell.NewTerminfoScreenFromTty(NewTTY(s, pty.Window, winCh))
	if had {
		_ = os.Setenv("TERM", prev)
	} else {
		_ = os.Unsetenv("TERM")
	}
	termMu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	return screen, nil
}
