package ssh

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	gossh "github.com/gliderlabs/ssh"
	xssh "golang.org/x/crypto/ssh"

	"netgame/internal/ecs"
	"netgame/internal/protocol"
	"netgame/internal/server"
)

type nopRWC struct {
	io.Reader
	io.Writer
}

func (nopRWC) Close() error { return nil }

type frameSource struct {
	frame atomic.Pointer[server.Frame]
}

func (f *frameSource) Latest() *server.Frame { return f.frame.Load() }

func newSimScreen(t *testing.T) tcell.Screen {
	t.Helper()
	ss := tcell.NewSimulationScreen("UTF-8")
	if err := ss.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ss.SetSize(80, 24)
	return ss
}

func screenText(s tcell.Screen) string {
	w, h := s.Size()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ch, _, _, _ := s.GetContent(x, y)
			b.WriteRune(ch)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestTTYWindowSizeFollowsResizes(t *testing.T) {
	winCh := make(chan gossh.Window, 1)
	tty := NewTTY(nopRWC{Reader: strings.NewReader(""), Writer: io.Discard}, gossh.Window{Width: 80, Height: 24}, winCh)

	ws, err := tty.WindowSize()
	if err != nil || ws.Width != 80 || ws.Height != 24 {
		t.Fatalf("WindowSize = %+v, %v", ws, err)
	}

	resized := make(chan struct{}, 1)
	tty.NotifyResize(func() { resized <- struct{}{} })
	winCh <- gossh.Window{Width: 120, Height: 40}

	select {
	case <-resized:
	case <-time.After(2 * time.Second):
		t.Fatal("resize callback not called")
	}
	ws, _ = tty.WindowSize()
	if ws.Width != 120 || ws.Height != 40 {
		t.Fatalf("WindowSize after resize = %+v", ws)
	}
	close(winCh)
}

func TestTTYPassesBytesThrough(t *testing.T) {
	var out bytes.Buffer
	tty := NewTTY(nopRWC{Reader: strings.NewReader("q"), Writer: &out}, gossh.Window{}, nil)

	if _, err := tty.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b := make([]byte, 4)
	n, _ := tty.Read(b)
	if out.String() != "hello" || string(b[:n]) != "q" {
		t.Fatalf("wrote %q, read %q", out.String(), b[:n])
	}
	tty.NotifyResize(nil)
}

func TestHostKeyIsPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host_key")

	first, err := LoadOrCreateHostKey(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := LoadOrCreateHostKey(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(first.PublicKey().Marshal(), second.PublicKey().Marshal()) {
		t.Fatal("reloaded key differs from the generated one")
	}
}

func TestSpectatorDrawsFrame(t *testing.T) {
	screen := newSimScreen(t)
	defer screen.Fini()

	src := &frameSource{}
	sp := NewSpectator(screen, src, rand.New(rand.NewSource(1)))

	sp.step(1.0 / 30)
	if got := screenText(screen); !strings.Contains(got, "waiting for the simulation") {
		t.Fatalf("no waiting status:\n%s", got)
	}

	f := &server.Frame{Step: 42, Clients: 2, Kills: []string{"alice obliterated bob!"}}
	f.State.Sequence = 1
	id := ecs.MakeID(5, 1)
	f.State.Entities[5] = protocol.EntityState{ID: id, Size: 16}
	src.frame.Store(f)
	sp.step(1.0 / 30)

	text := screenText(screen)
	for _, want := range []string{"spectating", "2 players  step 42", "alice obliterated bob!", "accepted"} {
		if !strings.Contains(text, want) {
			t.Errorf("screen lacks %q", want)
		}
	}
	if e := sp.mirror.Resolve(id); e == nil {
		t.Fatal("frame entity not mirrored")
	}

	// The same frame is not applied twice.
	sp.step(1.0 / 30)
	if sp.mirror.Applied() != 1 {
		t.Fatalf("Applied = %d, want 1", sp.mirror.Applied())
	}
}

func TestSpectatorQuit(t *testing.T) {
	screen := newSimScreen(t)
	sp := NewSpectator(screen, &frameSource{}, nil)

	if err := screen.PostEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)); err != nil {
		t.Fatalf("PostEvent: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- sp.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func startConsole(t *testing.T) (*Console, string, context.CancelFunc, <-chan error) {
	t.Helper()
	signer, err := LoadOrCreateHostKey(filepath.Join(t.TempDir(), "host_key"), nil)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	c := NewConsole(&frameSource{}, signer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, l) }()
	return c, l.Addr().String(), cancel, done
}

func dial(t *testing.T, addr string) *xssh.Client {
	t.Helper()
	cl, err := xssh.Dial("tcp", addr, &xssh.ClientConfig{
		User:            "watcher",
		HostKeyCallback: xssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("ssh dial: %v", err)
	}
	t.Cleanup(func() { cl.Close() })
	return cl
}

func TestConsoleRefusesSessionWithoutPTY(t *testing.T) {
	_, addr, cancel, done := startConsole(t)
	defer cancel()

	sess, err := dial(t, addr).NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	out, _ := sess.Output("")
	if !strings.Contains(string(out), "needs a terminal") {
		t.Fatalf("output = %q", out)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestConsoleServesAndShutsDown(t *testing.T) {
	c, addr, cancel, done := startConsole(t)
	defer cancel()

	sess, err := dial(t, addr).NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.RequestPty("xterm", 24, 80, xssh.TerminalModes{}); err != nil {
		t.Fatalf("RequestPty: %v", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	if err := sess.Shell(); err != nil {
		t.Fatalf("Shell: %v", err)
	}
	buf := make([]byte, 256)
	if n, err := stdout.Read(buf); n == 0 {
		t.Fatalf("no screen output: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Sessions() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("session not tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
