package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyfate/keyfate/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret(id interfaces.SecretID, status interfaces.SecretStatus) *interfaces.Secret {
	now := time.Now().UTC().Truncate(time.Second)
	return &interfaces.Secret{
		ID:                  id,
		UserID:              "user-1",
		Title:               "test secret",
		Status:              status,
		CheckInIntervalDays: 30,
		LastCheckIn:         now,
		NextCheckIn:         now.Add(30 * 24 * time.Hour),
		HasServerShare:      true,
	}
}

func testReminder(secretID interfaces.SecretID, scheduledFor time.Time) *interfaces.Reminder {
	return &interfaces.Reminder{
		ID:           uuid.NewString(),
		SecretID:     secretID,
		UserID:       "user-1",
		Type:         interfaces.Reminder24Hours,
		ScheduledFor: scheduledFor,
		Status:       interfaces.ReminderPending,
		CreatedAt:    time.Now(),
	}
}

func TestSecretCheckInConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	secret := testSecret("s1", interfaces.SecretActive)
	require.NoError(t, store.CreateSecret(ctx, secret))

	now := time.Now()
	next := now.Add(30 * 24 * time.Hour)
	require.NoError(t, store.UpdateCheckIn(ctx, "s1", secret.LastCheckIn, now, next))

	// A second update against the stale LastCheckIn loses.
	err := store.UpdateCheckIn(ctx, "s1", secret.LastCheckIn, now, next)
	assert.ErrorIs(t, err, interfaces.ErrUpdateConflict)

	got, err := store.GetSecret(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.LastCheckIn.Equal(now))
	assert.True(t, got.NextCheckIn.Equal(next))
}

func TestRedeemTokenSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	hash := sha256.Sum256([]byte("some-token"))
	require.NoError(t, store.InsertToken(ctx, &interfaces.CheckInToken{
		ID:        uuid.NewString(),
		SecretID:  "s1",
		TokenHash: hash[:],
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}))

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RedeemToken(ctx, hash[:], time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners, losers := 0, 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, interfaces.ErrTokenAlreadyUsed):
			losers++
		default:
			t.Fatalf("unexpected redemption error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "Exactly one redemption should win")
	assert.Equal(t, callers-1, losers)
}

func TestRedeemTokenExpiryDominates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	hash := sha256.Sum256([]byte("stale"))
	require.NoError(t, store.InsertToken(ctx, &interfaces.CheckInToken{
		ID:        uuid.NewString(),
		SecretID:  "s1",
		TokenHash: hash[:],
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	_, err := store.RedeemToken(ctx, hash[:], time.Now())
	assert.ErrorIs(t, err, interfaces.ErrTokenExpired)

	_, err = store.RedeemToken(ctx, []byte("unknown-hash"), time.Now())
	assert.ErrorIs(t, err, interfaces.ErrTokenNotFound)
}

func TestReplacePendingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	due := time.Now().Add(-time.Minute)

	first := []*interfaces.Reminder{testReminder("s1", due), testReminder("s1", due)}
	require.NoError(t, store.ReplacePending(ctx, "s1", first))

	second := []*interfaces.Reminder{testReminder("s1", due), testReminder("s1", due)}
	require.NoError(t, store.ReplacePending(ctx, "s1", second))

	// Only the second ladder is still pending.
	fetched, err := store.FetchDue(ctx, time.Now(), 50, 0)
	require.NoError(t, err)
	assert.Len(t, fetched, 2)
	for _, r := range fetched {
		assert.Contains(t, []string{second[0].ID, second[1].ID}, r.ID)
	}
}

func TestFetchDueOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	var ladder []*interfaces.Reminder
	for i := 0; i < 5; i++ {
		ladder = append(ladder, testReminder("s1", base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, store.ReplacePending(ctx, "s1", ladder))

	// A future reminder is not due.
	future := testReminder("s2", time.Now().Add(time.Hour))
	require.NoError(t, store.ReplacePending(ctx, "s2", []*interfaces.Reminder{future}))

	page1, err := store.FetchDue(ctx, time.Now(), 3, 0)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.True(t, page1[0].ScheduledFor.Before(page1[1].ScheduledFor))

	page2, err := store.FetchDue(ctx, time.Now(), 3, 3)
	require.NoError(t, err)
	assert.Len(t, page2, 2, "Second page returns the remainder")
}

func TestRecordFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	r := testReminder("s1", time.Now().Add(-time.Minute))
	require.NoError(t, store.ReplacePending(ctx, "s1", []*interfaces.Reminder{r}))

	retryAt := time.Now().Add(5 * time.Minute)

	attempts, failed, err := store.RecordFailure(ctx, r.ID, "smtp 451", retryAt, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.False(t, failed)

	attempts, failed, err = store.RecordFailure(ctx, r.ID, "smtp 451", retryAt, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.False(t, failed)

	attempts, failed, err = store.RecordFailure(ctx, r.ID, "smtp 451", retryAt, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, failed, "Third failure exhausts the retry budget")

	// A repeated invocation for the same delivery does not double-count.
	attempts, failed, err = store.RecordFailure(ctx, r.ID, "smtp 451", retryAt, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, failed)
}

func TestMarkSentOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	r := testReminder("s1", time.Now().Add(-time.Minute))
	require.NoError(t, store.ReplacePending(ctx, "s1", []*interfaces.Reminder{r}))
	require.NoError(t, store.MarkCancelled(ctx, r.ID))

	err := store.MarkSent(ctx, r.ID, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrUpdateConflict, "A cancelled reminder must never become sent")
}

func TestWithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateSecret(ctx, testSecret("s1", interfaces.SecretActive)))

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := store.SetSecretStatus(ctx, "s1", interfaces.SecretPaused); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetSecret(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.SecretActive, got.Status, "Failed transaction must leave no trace")
}

func TestWithTransactionRollbackPreservesCommittedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	hash := sha256.Sum256([]byte("contested-token"))
	require.NoError(t, store.InsertToken(ctx, &interfaces.CheckInToken{
		ID:        uuid.NewString(),
		SecretID:  "s1",
		TokenHash: hash[:],
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}))

	// A failing transaction holds the transaction lock open while a
	// competing redemption waits. Its rollback must restore only its own
	// view of the store, never the competitor's later commit.
	abort := errors.New("abort")
	entered := make(chan struct{})
	release := make(chan struct{})
	failing := make(chan error, 1)
	go func() {
		failing <- store.WithTransaction(ctx, func(ctx context.Context) error {
			close(entered)
			<-release
			if _, err := store.RedeemToken(ctx, hash[:], time.Now()); err != nil {
				return err
			}
			return abort
		})
	}()
	<-entered

	winning := make(chan error, 1)
	go func() {
		winning <- store.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := store.RedeemToken(ctx, hash[:], time.Now())
			return err
		})
	}()

	// Let the winner park on the transaction lock before the failing
	// transaction finishes.
	time.Sleep(10 * time.Millisecond)
	close(release)

	require.ErrorIs(t, <-failing, abort)
	require.NoError(t, <-winning)

	// The winner's consumption survived the other transaction's rollback:
	// the token stays used forever.
	_, err := store.RedeemToken(ctx, hash[:], time.Now())
	assert.ErrorIs(t, err, interfaces.ErrTokenAlreadyUsed)

	got, err := store.GetTokenByHash(ctx, hash[:])
	require.NoError(t, err)
	assert.NotNil(t, got.UsedAt)
}

func TestListOverdue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	overdue := testSecret("s1", interfaces.SecretActive)
	overdue.NextCheckIn = time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateSecret(ctx, overdue))

	paused := testSecret("s2", interfaces.SecretPaused)
	paused.NextCheckIn = time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateSecret(ctx, paused))

	current := testSecret("s3", interfaces.SecretActive)
	require.NoError(t, store.CreateSecret(ctx, current))

	got, err := store.ListOverdue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, interfaces.SecretID("s1"), got[0].ID)
}

func TestDeleteExpiredTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	h1 := sha256.Sum256([]byte("t1"))
	h2 := sha256.Sum256([]byte("t2"))
	require.NoError(t, store.InsertToken(ctx, &interfaces.CheckInToken{ID: "t1", SecretID: "s1", TokenHash: h1[:], ExpiresAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, store.InsertToken(ctx, &interfaces.CheckInToken{ID: "t2", SecretID: "s1", TokenHash: h2[:], ExpiresAt: time.Now().Add(time.Hour)}))

	deleted, err := store.DeleteExpiredTokens(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetTokenByHash(ctx, h2[:])
	assert.NoError(t, err)
}
