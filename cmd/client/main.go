// netgame-client joins a netgame server and plays in the terminal. Build:
//
//	go build -o netgame-client ./cmd/client
//
// Usage:
//
//	./netgame-client [-name alice] [-log client.log] [host[:port]]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"netgame/internal/client"
	"netgame/internal/config"
	"netgame/internal/game"
	"netgame/internal/protocol"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaults := loadDefaults(os.Stderr)

	name := flag.String("name", defaults.Name, "name shown to other players")
	logPath := flag.String("log", "", "write logs to this file (the terminal belongs to the game)")
	flag.Parse()

	addr := defaults.Server
	if flag.NArg() > 0 {
		addr = flag.Arg(0)
	}

	logger, closeLog, err := openLog(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	server, err := client.ResolveServer(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	stats := protocol.NewStats()
	conn, err := client.Dial(server, stats, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		conn.Close()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if err := screen.Init(); err != nil {
		conn.Close()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("joining", "server", server.String(), "name", *name)
	g := game.New(screen, conn, game.Config{Name: *name, Logger: logger, Stats: stats})
	runErr := g.Run(ctx)

	code := 0
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		code = 1
	}
	if err := conn.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error: closing socket: %v\n", err)
		code = 1
	}
	return code
}

// loadDefaults reads .env files and the environment. A file that exists but
// cannot be read is reported on w; the game still starts.
func loadDefaults(w io.Writer, files ...string) config.Client {
	if err := config.Load(nil, files...); err != nil {
		fmt.Fprintf(w, "warning: %v\n", err)
	}
	return config.ClientFromEnv()
}

// openLog returns a logger writing to path, or one that discards when path
// is empty.
func openLog(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), func() { f.Close() }, nil
}
