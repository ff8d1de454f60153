package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/keyfate/keyfate/interfaces"
)

// StoreFor creates an entity store from a location URI.
//
// Supported schemes:
//
//   - memory:// - In-memory store for tests and single-node development.
//   - postgres:// - PostgreSQL via pgx; the URI is passed through as the
//     connection string.
func StoreFor(ctx context.Context, locationURI string, log *slog.Logger) (interfaces.Store, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid store location URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		log.Info("Using in-memory entity store")
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		log.Info("Connecting to PostgreSQL entity store", slog.String("host", u.Host))
		return NewPostgresStore(ctx, locationURI)
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", u.Scheme)
	}
}
