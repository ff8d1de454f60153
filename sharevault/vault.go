package sharevault

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/keyfate/keyfate/interfaces"
)

// DefaultTTL is how long a stored bundle stays loadable. Two hours gives
// the owner enough time to distribute shares right after a split without
// leaving key material on disk indefinitely.
const DefaultTTL = 2 * time.Hour

// keyPrefix namespaces vault entries by secret id, one file per secret.
const keyPrefix = "keyfate_shares_"

// bundleFile is the persisted JSON shape: hex share strings plus an epoch
// millisecond expiry.
type bundleFile struct {
	Shares    []string `json:"shares"`
	ExpiresAt int64    `json:"expiresAt"`
}

// Vault is the device-scoped store for the non-server shares of a split.
//
// Entries are written once immediately after a successful split, read once
// on the share-instructions flow, and deleted on expiry or when superseded
// by a new bundle for the same secret. The vault is never synchronized or
// backed up by the service; losing it before distributing shares is an
// unrecoverable user error by design, and callers must surface that
// prominently.
type Vault struct {
	baseDir string
	log     *slog.Logger
	now     func() time.Time
}

// New creates a vault rooted at baseDir, creating the directory if needed.
func New(baseDir string, log *slog.Logger) (*Vault, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	return &Vault{
		baseDir: baseDir,
		log:     log,
		now:     time.Now,
	}, nil
}

// Store persists the shares for secretID with the given TTL (DefaultTTL if
// ttl is zero), replacing any previous bundle for the same secret. The
// write is atomic: a torn write is never observable by a subsequent Load.
func (v *Vault) Store(secretID interfaces.SecretID, shares [][]byte, ttl time.Duration) error {
	if len(shares) == 0 {
		return fmt.Errorf("%w: no shares to store", interfaces.ErrInvalidShareConfiguration)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entry := bundleFile{
		Shares:    make([]string, 0, len(shares)),
		ExpiresAt: v.now().Add(ttl).UnixMilli(),
	}
	for _, share := range shares {
		entry.Shares = append(entry.Shares, hex.EncodeToString(share))
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode share bundle: %w", err)
	}

	path := v.path(secretID)
	tmp := fmt.Sprintf("%s.tmp.%d", path, v.now().UnixNano())

	// Write-then-rename keeps the bundle all-or-nothing on crash.
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write share bundle: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit share bundle: %w", err)
	}

	v.log.Debug("Stored share bundle",
		slog.String("secret_id", secretID.String()),
		slog.Int("shares", len(shares)))

	return nil
}

// Load returns the bundle for secretID. wantShares is the number of
// non-server shares the secret's declared split configuration produced
// (totalShares - 1); a stored bundle written for a different configuration
// fails with ErrShareCountMismatch rather than being silently reused.
//
// Failure modes are all independently distinguishable:
// ErrBundleNotFound when absent, ErrBundleExpired when the TTL elapsed
// (the entry is invalidated as a side effect), ErrBundleCorrupt when the
// content does not parse, ErrShareCountMismatch as above.
func (v *Vault) Load(secretID interfaces.SecretID, wantShares int) (*interfaces.VaultedShareBundle, error) {
	data, err := os.ReadFile(v.path(secretID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrBundleNotFound
		}
		return nil, fmt.Errorf("failed to read share bundle: %w", err)
	}

	var entry bundleFile
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBundleCorrupt, err)
	}
	if len(entry.Shares) == 0 || entry.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: missing shares or expiry", interfaces.ErrBundleCorrupt)
	}
	for _, s := range entry.Shares {
		if _, err := hex.DecodeString(s); err != nil {
			return nil, fmt.Errorf("%w: share is not valid hex", interfaces.ErrBundleCorrupt)
		}
	}

	expiresAt := time.UnixMilli(entry.ExpiresAt)
	if v.now().After(expiresAt) {
		// Expired key material must not linger on disk.
		if err := v.Invalidate(secretID); err != nil {
			v.log.Warn("Failed to invalidate expired share bundle",
				slog.String("secret_id", secretID.String()), "err", err)
		}
		return nil, interfaces.ErrBundleExpired
	}

	if wantShares > 0 && len(entry.Shares) != wantShares {
		return nil, fmt.Errorf("%w: stored %d shares, configuration expects %d", interfaces.ErrShareCountMismatch, len(entry.Shares), wantShares)
	}

	return &interfaces.VaultedShareBundle{
		SecretID:  secretID,
		Shares:    entry.Shares,
		ExpiresAt: expiresAt,
	}, nil
}

// Invalidate deletes the bundle for secretID. Deleting an absent bundle is
// not an error.
func (v *Vault) Invalidate(secretID interfaces.SecretID) error {
	err := os.Remove(v.path(secretID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to invalidate share bundle: %w", err)
	}
	return nil
}

func (v *Vault) path(secretID interfaces.SecretID) string {
	return filepath.Join(v.baseDir, keyPrefix+secretID.String()+".json")
}
