package sharestore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/keyfate/keyfate/interfaces"
)

// Factory creates server-share stores from location URIs.
type Factory struct {
	sealer *Sealer
	log    *slog.Logger
}

// NewFactory creates a factory that seals shares with the given sealer.
func NewFactory(sealer *Sealer, log *slog.Logger) *Factory {
	return &Factory{sealer: sealer, log: log}
}

// BackendFor creates a share store from a location URI.
//
// Supported schemes:
//
//   - file:///var/lib/keyfate/shares - Local filesystem storage
//   - vault://vault.example.com:8200/secret/keyfate?token=... - HashiCorp
//     Vault KV v2 (scheme of the Vault address itself defaults to https,
//     override with ?tls=off for development)
func (f *Factory) BackendFor(locationURI interfaces.ServerShareLocation) (interfaces.ServerShareStore, error) {
	u, err := url.Parse(string(locationURI))
	if err != nil {
		return nil, fmt.Errorf("invalid share store location URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewFileBackend(u.Path, f.sealer, f.log)
	case "vault":
		scheme := "https"
		if u.Query().Get("tls") == "off" {
			scheme = "http"
		}
		address := fmt.Sprintf("%s://%s", scheme, u.Host)

		parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("vault URI must include mount and data path: %s", locationURI)
		}
		return NewVaultBackend(address, parts[0], parts[1], u.Query().Get("token"), f.sealer, f.log)
	default:
		return nil, fmt.Errorf("unsupported share store scheme: %s", u.Scheme)
	}
}
