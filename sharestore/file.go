package sharestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/keyfate/keyfate/interfaces"
)

// FileBackend keeps sealed server shares on the local file system, one file
// per secret under the base directory.
type FileBackend struct {
	baseDir     string
	sealer      *Sealer
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file-backed share store rooted at baseDir,
// creating the directory if needed.
func NewFileBackend(baseDir string, sealer *Sealer, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create share directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		sealer:      sealer,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put seals and stores the server share for a secret, replacing any
// previous one.
func (b *FileBackend) Put(ctx context.Context, id interfaces.SecretID, share []byte) error {
	sealed, err := b.sealer.Seal(id, share)
	if err != nil {
		return err
	}

	path := b.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write server share: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit server share: %w", err)
	}

	b.log.Debug("Stored server share", slog.String("secret_id", id.String()))
	return nil
}

// Get returns the unsealed server share, or ErrServerShareMissing if it was
// deleted or never stored.
func (b *FileBackend) Get(ctx context.Context, id interfaces.SecretID) ([]byte, error) {
	sealed, err := os.ReadFile(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrServerShareMissing
		}
		return nil, fmt.Errorf("failed to read server share: %w", err)
	}
	return b.sealer.Open(id, sealed)
}

// Exists reports whether a server share is present for the secret.
func (b *FileBackend) Exists(ctx context.Context, id interfaces.SecretID) (bool, error) {
	_, err := os.Stat(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat server share: %w", err)
	}
	return true, nil
}

// Delete removes the server share. This is the disclosure-path kill switch:
// once removed the secret can never be disclosed server-side again, and the
// caller must force the secret out of the active state.
func (b *FileBackend) Delete(ctx context.Context, id interfaces.SecretID) error {
	err := os.Remove(b.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete server share: %w", err)
	}

	b.log.Info("Deleted server share", slog.String("secret_id", id.String()))
	return nil
}

// LocationURI returns the URI that identifies this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) path(id interfaces.SecretID) string {
	return filepath.Join(b.baseDir, id.String()+".share")
}
