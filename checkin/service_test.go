package checkin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/keyfate/keyfate/interfaces"
	"github.com/keyfate/keyfate/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func seedSecret(t *testing.T, store *storage.MemoryStore) *interfaces.Secret {
	t.Helper()
	now := time.Now().UTC()
	secret := &interfaces.Secret{
		ID:                  "s1",
		UserID:              "user-1",
		Title:               "bank vault codes",
		Status:              interfaces.SecretActive,
		CheckInIntervalDays: 30,
		LastCheckIn:         now,
		NextCheckIn:         now.Add(30 * 24 * time.Hour),
		HasServerShare:      true,
	}
	require.NoError(t, store.CreateSecret(context.Background(), secret))
	return secret
}

func TestIssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	secret := seedSecret(t, store)
	svc := NewService(store, nil, testLogger())

	token, err := svc.Issue(ctx, secret.ID, time.Hour)
	require.NoError(t, err)
	assert.Len(t, token, 64, "Token should be 32 hex-encoded bytes")

	result, err := svc.Redeem(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, secret.ID, result.SecretID)
	assert.Equal(t, "bank vault codes", result.SecretTitle)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), result.NewNextCheckIn, 5*time.Second)

	// The secret's deadline actually moved.
	got, err := store.GetSecret(ctx, secret.ID)
	require.NoError(t, err)
	assert.True(t, got.NextCheckIn.Equal(result.NewNextCheckIn))
}

func TestRedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	secret := seedSecret(t, store)
	svc := NewService(store, nil, testLogger())

	token, err := svc.Issue(ctx, secret.ID, time.Hour)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, token)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, interfaces.ErrTokenAlreadyUsed)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	secret := seedSecret(t, store)
	svc := NewService(store, nil, testLogger())

	token, err := svc.Issue(ctx, secret.ID, time.Hour)
	require.NoError(t, err)

	const callers = 2
	var wg sync.WaitGroup
	type outcome struct {
		result *Result
		err    error
	}
	results := make(chan outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Redeem(ctx, token)
			results <- outcome{result, err}
		}()
	}
	wg.Wait()
	close(results)

	var winner *Result
	winners, alreadyUsed := 0, 0
	for out := range results {
		switch {
		case out.err == nil:
			winners++
			winner = out.result
		case errors.Is(out.err, interfaces.ErrTokenAlreadyUsed):
			alreadyUsed++
		default:
			t.Fatalf("unexpected redemption error: %v", out.err)
		}
	}
	assert.Equal(t, 1, winners, "Exactly one concurrent redemption should succeed")
	assert.Equal(t, 1, alreadyUsed)

	// The loser's rollback must not have un-consumed the token or reverted
	// the winner's deadline.
	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, interfaces.ErrTokenAlreadyUsed, "A consumed token stays consumed")

	got, err := store.GetSecret(ctx, secret.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.True(t, got.NextCheckIn.Equal(winner.NewNextCheckIn), "The winner's deadline must survive")
}

func TestRedeemExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	secret := seedSecret(t, store)
	svc := NewService(store, nil, testLogger())

	token, err := svc.Issue(ctx, secret.ID, time.Nanosecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, interfaces.ErrTokenExpired)
}

func TestRedeemUnknownToken(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, nil, testLogger())

	_, err := svc.Redeem(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, interfaces.ErrTokenNotFound)
}

func TestRedeemFailedSecretUpdateRollsBackToken(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewService(store, nil, testLogger())

	// Token for a secret that does not exist: the secret update cannot be
	// applied, so the redemption must fail as a whole.
	token, err := svc.Issue(ctx, "ghost", time.Hour)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, interfaces.ErrCheckInUpdateFailed)

	// The token was not left half-consumed: a retry classifies the same
	// way rather than reporting already-used.
	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, interfaces.ErrCheckInUpdateFailed)
}
