package ssh

import (
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"
	gossh "github.com/gliderlabs/ssh"
)

// TTY adapts one SSH channel to tcell.Tty so a spectator gets a full
// terminal screen of their own.
type TTY struct {
	rw io.ReadWriteCloser

	mu       sync.Mutex
	window   gossh.Window
	onResize func()
	winCh    <-chan gossh.Window
}

// NewTTY wraps rw. win is the size from the pty request and winCh carries
// later window-change requests; the channel closes with the session.
func NewTTY(rw io.ReadWriteCloser, win gossh.Window, winCh <-chan gossh.Window) *TTY {
	return &TTY{rw: rw, window: win, winCh: winCh}
}

// Read reads keystrokes from the session.
func (t *TTY) Read(b []byte) (int, error) { return t.rw.Read(b) }

// Write sends rendered output to the session.
func (t *TTY) Write(b []byte) (int, error) { return t.rw.Write(b) }

// Close closes the SSH channel.
func (t *TTY) Close() error { return t.rw.Close() }

// Start is a no-op; the channel is already open.
func (t *TTY) Start() error { return nil }

// Stop is a no-op; the console handler owns the channel.
func (t *TTY) Stop() error { return nil }

// Drain is a no-op; channel writes are not buffered here.
func (t *TTY) Drain() error { return nil }

// WindowSize returns the latest size the client reported.
func (t *TTY) WindowSize() (tcell.WindowSize, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tcell.WindowSize{Width: t.window.Width, Height: t.window.Height}, nil
}

// NotifyResize installs cb and starts following window changes. Only the
// first call starts the watcher; later calls just swap the callback.
func (t *TTY) NotifyResize(cb func()) {
	t.mu.Lock()
	t.onResize = cb
	winCh := t.winCh
	t.winCh = nil
	t.mu.Unlock()

	if winCh == nil {
		return
	}
	go func() {
		for win := range winCh {
			t.mu.Lock()
			t.window = win
			fn := t.onResize
			t.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}()
}
