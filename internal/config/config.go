// Package config reads defaults from the environment and an optional .env
// file. Command-line flags override everything here.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"netgame/internal/protocol"
)

// Environment keys.
const (
	EnvPort          = "NETGAME_PORT"
	EnvTickRate      = "NETGAME_TICKRATE"
	EnvSSHAddr       = "NETGAME_SSH_ADDR"
	EnvHostKey       = "NETGAME_HOST_KEY"
	EnvSeed          = "NETGAME_SEED"
	EnvClientTimeout = "NETGAME_CLIENT_TIMEOUT"
	EnvName          = "NETGAME_NAME"
	EnvServer        = "NETGAME_SERVER"
)

// Server holds the server's tunables.
type Server struct {
	Port          int
	TickRate      int
	SSHAddr       string // empty disables the spectator console
	HostKey       string
	Seed          int64 // 0 seeds from the clock
	ClientTimeout time.Duration
}

// Client holds the client's tunables.
type Client struct {
	Server string
	Name   string
}

// Load reads .env files into the process environment without overriding
// variables that are already set. Missing files are fine; with no arguments
// only ./.env is tried.
func Load(logger *slog.Logger, files ...string) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			logger.Info("loaded environment file", "path", f)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ServerFromEnv returns the server defaults, overridden by the environment.
func ServerFromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Port:          Int(EnvPort, protocol.DefaultPort, &errs),
		TickRate:      Int(EnvTickRate, protocol.TickRate, &errs),
		SSHAddr:       String(EnvSSHAddr, ""),
		HostKey:       String(EnvHostKey, "netgame_host_key"),
		Seed:          int64(Int(EnvSeed, 0, &errs)),
		ClientTimeout: Duration(EnvClientTimeout, 0, &errs),
	}
	return cfg, errors.Join(errs...)
}

// ClientFromEnv returns the client defaults, overridden by the environment.
func ClientFromEnv() Client {
	return Client{
		Server: String(EnvServer, ""),
		Name:   String(EnvName, defaultName()),
	}
}

func defaultName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "player"
}

// String returns the variable or def when it is unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int parses the variable as an integer. A malformed value keeps def and
// appends an error to errs.
func Int(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// Duration parses the variable with time.ParseDuration, with the same error
// handling as Int.
func Duration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
