package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"os"

	gossh "github.com/gliderlabs/ssh"
	xssh "golang.org/x/crypto/ssh"
)

// LoadOrCreateHostKey reads a PEM private key from path. When the file is
// missing or unparsable a fresh ed25519 key is generated and written back;
// failing to persist it is only logged.
func LoadOrCreateHostKey(path string, logger *slog.Logger) (gossh.Signer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if data, err := os.ReadFile(path); err == nil {
		signer, err := xssh.ParsePrivateKey(data)
		if err == nil {
			logger.Info("loaded host key", "path", path)
			return signer, nil
		}
		logger.Warn("host key unreadable, replacing", "path", path, "error", err)
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	signer, err := xssh.NewSignerFromKey(key)
	if err != nil {
		return nil, fmt.Errorf("host key signer: %w", err)
	}
	block, err := xssh.MarshalPrivateKey(key, "netgame spectator console")
	if err != nil {
		logger.Warn("host key not saved", "path", path, "error", err)
		return signer, nil
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		logger.Warn("host key not saved", "path", path, "error", err)
		return signer, nil
	}
	logger.Info("generated host key", "path", path)
	return signer, nil
}
