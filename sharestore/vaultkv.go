package sharestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/keyfate/keyfate/interfaces"
)

// VaultBackend keeps sealed server shares in HashiCorp Vault's KV v2
// engine. Shares are sealed before they leave the process, so Vault only
// ever sees ciphertext.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	sealer      *Sealer
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault-backed share store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "keyfate/shares")
//   - token: Vault token for authentication
func NewVaultBackend(address, mountPath, dataPath, token string, sealer *Sealer, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		sealer:      sealer,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Put seals the share and writes it to Vault (KV v2 data path).
func (b *VaultBackend) Put(ctx context.Context, id interfaces.SecretID, share []byte) error {
	sealed, err := b.sealer.Seal(id, share)
	if err != nil {
		return err
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"share": base64.StdEncoding.EncodeToString(sealed),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, b.path(id), secretData); err != nil {
		b.log.Error("Failed to write server share to Vault",
			slog.String("secret_id", id.String()), "err", err)
		return fmt.Errorf("failed to write server share to Vault: %w", err)
	}

	b.log.Debug("Stored server share in Vault", slog.String("secret_id", id.String()))
	return nil
}

// Get reads and unseals the server share from Vault.
func (b *VaultBackend) Get(ctx context.Context, id interfaces.SecretID) ([]byte, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read server share from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrServerShareMissing
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}
	encoded, ok := data["share"].(string)
	if !ok {
		return nil, fmt.Errorf("share key not found in Vault data")
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid share encoding in Vault data: %w", err)
	}
	return b.sealer.Open(id, sealed)
}

// Exists reports whether a server share is present for the secret.
func (b *VaultBackend) Exists(ctx context.Context, id interfaces.SecretID) (bool, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.path(id))
	if err != nil {
		return false, fmt.Errorf("failed to read server share from Vault: %w", err)
	}
	return secret != nil && secret.Data != nil, nil
}

// Delete removes the share and its version history from Vault.
func (b *VaultBackend) Delete(ctx context.Context, id interfaces.SecretID) error {
	// KV v2 metadata delete destroys all versions, not just the latest.
	path := fmt.Sprintf("%s/metadata/%s/%s", b.mountPath, b.dataPath, id.String())
	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("failed to delete server share from Vault: %w", err)
	}

	b.log.Info("Deleted server share from Vault", slog.String("secret_id", id.String()))
	return nil
}

// LocationURI returns the URI that identifies this backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) path(id interfaces.SecretID) string {
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, id.String())
}
