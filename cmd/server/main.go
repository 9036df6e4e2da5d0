// netgame-server runs the authoritative simulation over UDP and, optionally,
// an SSH spectator console. Build:
//
//	go build -o netgame-server ./cmd/server
//
// Usage:
//
//	./netgame-server [-port 4950] [-tickrate 120] [-ssh :2222] [-key netgame_host_key]
//	                 [-seed n] [-client-timeout 30s] [-local_session]
//
// Defaults come from NETGAME_* environment variables and ./.env.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"netgame/internal/config"
	"netgame/internal/server"
	internalssh "netgame/internal/ssh"
)

type options struct {
	port          int
	tickRate      int
	sshAddr       string
	keyFile       string
	seed          int64
	clientTimeout time.Duration
	localSession  bool
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := config.Load(logger); err != nil {
		log.Fatalf("environment: %v", err)
	}
	defaults, err := config.ServerFromEnv()
	if err != nil {
		logger.Warn("ignoring malformed environment", "error", err)
	}

	fs, opts := newFlagSet(defaults, os.Stderr)
	known, unknown := splitArgs(fs, os.Args[1:])
	for _, arg := range unknown {
		fmt.Fprintf(os.Stderr, "Unknown argument '%s'\n", arg)
	}
	if err := fs.Parse(known); err != nil {
		log.Fatalf("flags: %v", err)
	}

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	conn, err := server.Listen(opts.port)
	if err != nil {
		log.Fatalf("%v", err)
	}
	srv := server.New(conn, server.Config{
		TickRate:      opts.tickRate,
		ClientTimeout: opts.clientTimeout,
		Rand:          rand.New(rand.NewSource(seed)),
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.sshAddr != "" {
		signer, err := internalssh.LoadOrCreateHostKey(opts.keyFile, logger)
		if err != nil {
			log.Fatalf("%v", err)
		}
		console := internalssh.NewConsole(srv, signer, logger)
		go func() {
			if err := console.ListenAndServe(ctx, opts.sshAddr); err != nil {
				logger.Error("spectator console stopped", "error", err)
			}
		}()
	}

	logger.Info("server listening",
		"port", opts.port,
		"tickrate", opts.tickRate,
		"seed", seed,
		"local_session", opts.localSession)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	st := srv.Stats().Sample()
	logger.Info("server stopped",
		"accepted_ratio", st.AcceptedRatio,
		"bytes_in_per_sec", st.BytesInPerSec,
		"bytes_out_per_sec", st.BytesOutPerSec)
}

func newFlagSet(d config.Server, output io.Writer) (*flag.FlagSet, *options) {
	opts := &options{}
	fs := flag.NewFlagSet("netgame-server", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&opts.port, "port", d.Port, "UDP port to bind")
	fs.IntVar(&opts.tickRate, "tickrate", d.TickRate, "simulation steps per second")
	fs.StringVar(&opts.sshAddr, "ssh", d.SSHAddr, "address for the SSH spectator console (empty disables it)")
	fs.StringVar(&opts.keyFile, "key", d.HostKey, "PEM host key for the spectator console (generated if absent)")
	fs.Int64Var(&opts.seed, "seed", d.Seed, "spawn position seed (0 uses the clock)")
	fs.DurationVar(&opts.clientTimeout, "client-timeout", d.ClientTimeout, "forget clients silent for this long (0 never)")
	// Reserved; the simulation does not read it yet.
	fs.BoolVar(&opts.localSession, "local_session", false, "reserved")
	return fs, opts
}

// splitArgs separates arguments fs knows from everything else, so a typo
// is reported instead of stopping the server. A non-boolean flag given
// without "=" takes the following argument as its value.
func splitArgs(fs *flag.FlagSet, args []string) (known, unknown []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) < 2 || arg[0] != '-' {
			unknown = append(unknown, arg)
			continue
		}
		name := strings.TrimLeft(arg, "-")
		name, _, hasValue := strings.Cut(name, "=")
		f := fs.Lookup(name)
		if f == nil || name == "" {
			unknown = append(unknown, arg)
			continue
		}
		known = append(known, arg)
		if hasValue || isBoolFlag(f) {
			continue
		}
		if i+1 < len(args) {
			i++
			known = append(known, args[i])
		}
	}
	return known, unknown
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}
