package interfaces

import (
	"context"
	"time"
)

// SecretStore persists secrets and their check-in bookkeeping.
type SecretStore interface {
	// CreateSecret stores a new secret. The caller supplies the ID.
	CreateSecret(ctx context.Context, secret *Secret) error

	// GetSecret returns the secret or ErrSecretNotFound.
	GetSecret(ctx context.Context, id SecretID) (*Secret, error)

	// UpdateCheckIn advances LastCheckIn/NextCheckIn conditionally on the
	// previously observed LastCheckIn value. Returns ErrUpdateConflict if a
	// concurrent writer advanced the secret first, ErrSecretNotFound if the
	// secret is gone.
	UpdateCheckIn(ctx context.Context, id SecretID, prevLastCheckIn, lastCheckIn, nextCheckIn time.Time) error

	// SetSecretStatus transitions the secret's lifecycle state.
	SetSecretStatus(ctx context.Context, id SecretID, status SecretStatus) error

	// MarkServerShareRemoved records that the server custody share is gone.
	// The secret can no longer be disclosed server-side.
	MarkServerShareRemoved(ctx context.Context, id SecretID) error

	// ListOverdue returns up to limit active secrets whose NextCheckIn is at
	// or before now, ordered by NextCheckIn ascending.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Secret, error)
}

// TokenStore persists check-in tokens. Tokens are addressed by the SHA-256
// hash of the opaque token value; the raw token is never stored.
type TokenStore interface {
	// InsertToken stores a freshly issued token.
	InsertToken(ctx context.Context, token *CheckInToken) error

	// GetTokenByHash returns the token or ErrTokenNotFound. Expired and used
	// tokens are still returned; the caller classifies them.
	GetTokenByHash(ctx context.Context, hash []byte) (*CheckInToken, error)

	// RedeemToken atomically sets UsedAt = now iff the token exists, is
	// unused, and is unexpired. The conditional write guarantees that two
	// concurrent redemptions have exactly one winner. Losers receive
	// ErrTokenAlreadyUsed; expired unused tokens ErrTokenExpired; unknown
	// tokens ErrTokenNotFound.
	RedeemToken(ctx context.Context, hash []byte, now time.Time) (*CheckInToken, error)

	// DeleteExpiredTokens removes tokens past their expiry, returning the
	// number deleted.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// ReminderStore persists reminder work items.
type ReminderStore interface {
	// ReplacePending atomically cancels all pending reminders for the secret
	// and creates the given ladder in their place. Calling it twice for the
	// same deadline leaves exactly one pending ladder.
	ReplacePending(ctx context.Context, secretID SecretID, reminders []*Reminder) error

	// CancelAllPending transitions every pending reminder for the secret to
	// cancelled, returning how many were affected.
	CancelAllPending(ctx context.Context, secretID SecretID) (int64, error)

	// FetchDue returns up to limit pending reminders with ScheduledFor at or
	// before now, ordered by ScheduledFor ascending, skipping offset rows.
	FetchDue(ctx context.Context, now time.Time, limit, offset int) ([]*Reminder, error)

	// MarkSent transitions a pending reminder to sent.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkCancelled transitions a pending reminder to cancelled.
	MarkCancelled(ctx context.Context, id string) error

	// RecordFailure increments the reminder's attempt counter and records
	// the error text. If attempts remain below maxAttempts the reminder
	// stays pending with ScheduledFor pushed to retryAt; otherwise it is
	// marked failed. The increment is conditional on the stored counter, so
	// concurrent or repeated invocations for the same delivery never
	// double-count. Returns the attempt count after the call and whether the
	// reminder is now failed.
	RecordFailure(ctx context.Context, id string, deliveryErr string, retryAt time.Time, maxAttempts int) (attempts int, failed bool, err error)
}

// Store bundles the three entity stores a deployment provides together.
type Store interface {
	SecretStore
	TokenStore
	ReminderStore

	// WithTransaction executes fn atomically: either every store operation
	// performed inside fn is applied, or none is. Used by check-in
	// redemption, where consuming the token and advancing the secret's
	// deadline must not be left half-applied.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases the underlying resources.
	Close()
}

// ServerShareLocation identifies a server-share custody backend by URI,
// e.g. "file:///var/lib/keyfate/shares" or "vault://vault:8200/secret/keyfate".
type ServerShareLocation string

// ServerShareStore keeps the server custody share (index 0 of a split) at
// rest. Implementations seal the share before persisting it. Delete is the
// disclosure-path kill switch: once the share is gone the secret can never
// be disclosed server-side again.
type ServerShareStore interface {
	Put(ctx context.Context, id SecretID, share []byte) error
	Get(ctx context.Context, id SecretID) ([]byte, error)
	Exists(ctx context.Context, id SecretID) (bool, error)
	Delete(ctx context.Context, id SecretID) error

	// LocationURI returns the URI that identifies this backend.
	LocationURI() string
}
