package checkin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyfate/keyfate/interfaces"
)

// DefaultTokenTTL bounds how long a check-in link stays usable. Tokens are
// minted per reminder at send time, so the window only needs to cover the
// owner reading the notification and clicking through.
const DefaultTokenTTL = 48 * time.Hour

// tokenBytes gives 256 bits of entropy, double the required minimum.
const tokenBytes = 32

// Rescheduler regenerates a secret's reminder ladder after its deadline
// moved. Satisfied by reminder.Scheduler.
type Rescheduler interface {
	ScheduleFor(ctx context.Context, secret *interfaces.Secret) ([]*interfaces.Reminder, error)
}

// Result is the outcome of a successful redemption.
type Result struct {
	SecretID       interfaces.SecretID
	SecretTitle    string
	NewNextCheckIn time.Time
}

// Service issues and redeems single-use check-in tokens.
type Service struct {
	store       interfaces.Store
	rescheduler Rescheduler
	log         *slog.Logger
	now         func() time.Time
}

// NewService creates a check-in token service. rescheduler may be nil, in
// which case redemption leaves reminder regeneration to the caller.
func NewService(store interfaces.Store, rescheduler Rescheduler, log *slog.Logger) *Service {
	return &Service{
		store:       store,
		rescheduler: rescheduler,
		log:         log,
		now:         time.Now,
	}
}

// Issue mints a fresh token for the secret with the given TTL
// (DefaultTokenTTL if zero) and returns the opaque token value. Only the
// token's SHA-256 hash is persisted.
func (s *Service) Issue(ctx context.Context, secretID interfaces.SecretID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(raw)
	hash := hashToken(token)

	now := s.now()
	err := s.store.InsertToken(ctx, &interfaces.CheckInToken{
		ID:        uuid.NewString(),
		SecretID:  secretID,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist token: %w", err)
	}

	return token, nil
}

// Redeem consumes the token and extends the associated secret's check-in
// deadline by its configured interval, all within one transaction: two
// concurrent redemptions of the same token have exactly one winner, and a
// failed secret update fails the redemption as a whole rather than leaving
// a consumed token behind.
//
// Terminal outcomes: ErrTokenNotFound, ErrTokenExpired,
// ErrTokenAlreadyUsed, ErrCheckInUpdateFailed.
func (s *Service) Redeem(ctx context.Context, token string) (*Result, error) {
	hash := hashToken(token)
	now := s.now()

	var result *Result
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		consumed, err := s.store.RedeemToken(ctx, hash, now)
		if err != nil {
			return err
		}

		secret, err := s.store.GetSecret(ctx, consumed.SecretID)
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrCheckInUpdateFailed, err)
		}

		newNext := now.Add(secret.CheckInInterval())
		if err := s.store.UpdateCheckIn(ctx, secret.ID, secret.LastCheckIn, now, newNext); err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrCheckInUpdateFailed, err)
		}

		if s.rescheduler != nil {
			secret.LastCheckIn = now
			secret.NextCheckIn = newNext
			if _, err := s.rescheduler.ScheduleFor(ctx, secret); err != nil {
				return fmt.Errorf("%w: rescheduling reminders: %v", interfaces.ErrCheckInUpdateFailed, err)
			}
		}

		result = &Result{
			SecretID:       secret.ID,
			SecretTitle:    secret.Title,
			NewNextCheckIn: newNext,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Check-in recorded",
		slog.String("secret_id", result.SecretID.String()),
		slog.Time("next_check_in", result.NewNextCheckIn))

	return result, nil
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
