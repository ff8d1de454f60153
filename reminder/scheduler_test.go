package reminder

import (
	"context"
	"log/slog"
	"os"
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

func activeSecret(intervalDays int, lastCheckIn time.Time) *interfaces.Secret {
	return &interfaces.Secret{
		ID:                  "s1",
		UserID:              "user-1",
		Title:               "estate instructions",
		Status:              interfaces.SecretActive,
		CheckInIntervalDays: intervalDays,
		LastCheckIn:         lastCheckIn,
		NextCheckIn:         lastCheckIn.Add(time.Duration(intervalDays) * 24 * time.Hour),
		HasServerShare:      true,
	}
}

func reminderTypes(reminders []*interfaces.Reminder) []interfaces.ReminderType {
	types := make([]interfaces.ReminderType, len(reminders))
	for i, r := range reminders {
		types[i] = r.Type
	}
	return types
}

func TestLadderFullInterval(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	secret := activeSecret(30, now)
	s := NewScheduler(storage.NewMemoryStore(), testLogger())

	rungs := s.Ladder(secret, now)
	require.Len(t, rungs, 7, "A fresh 30-day interval should produce the full ladder")

	assert.Equal(t, []interfaces.ReminderType{
		interfaces.Reminder50Percent,
		interfaces.Reminder25Percent,
		interfaces.Reminder7Days,
		interfaces.Reminder3Days,
		interfaces.Reminder24Hours,
		interfaces.Reminder12Hours,
		interfaces.Reminder1Hour,
	}, reminderTypes(rungs))

	deadline := secret.NextCheckIn
	assert.True(t, rungs[0].ScheduledFor.Equal(deadline.Add(-15*24*time.Hour)))
	assert.True(t, rungs[6].ScheduledFor.Equal(deadline.Add(-time.Hour)))
	for i := 1; i < len(rungs); i++ {
		assert.True(t, rungs[i].ScheduledFor.After(rungs[i-1].ScheduledFor), "Rungs must be ordered soonest first")
	}
}

func TestLadderSkipsPastRungs(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	secret := activeSecret(30, start)
	s := NewScheduler(storage.NewMemoryStore(), testLogger())

	// Two hours before the deadline only the 1-hour rung is still ahead.
	now := secret.NextCheckIn.Add(-2 * time.Hour)
	rungs := s.Ladder(secret, now)
	require.Len(t, rungs, 1)
	assert.Equal(t, interfaces.Reminder1Hour, rungs[0].Type)

	// Past the deadline nothing is scheduled.
	assert.Empty(t, s.Ladder(secret, secret.NextCheckIn))
}

func TestLadderShortIntervalDropsWideRungs(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	secret := activeSecret(3, now)
	s := NewScheduler(storage.NewMemoryStore(), testLogger())

	rungs := s.Ladder(secret, now)
	types := reminderTypes(rungs)
	assert.NotContains(t, types, interfaces.Reminder7Days, "A 7-day rung cannot exist on a 3-day cadence")
	assert.NotContains(t, types, interfaces.Reminder3Days)
	assert.Contains(t, types, interfaces.Reminder50Percent)
	assert.Contains(t, types, interfaces.Reminder1Hour)
	for i := 1; i < len(rungs); i++ {
		assert.True(t, rungs[i].ScheduledFor.After(rungs[i-1].ScheduledFor))
	}
}

func TestScheduleForIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Now().UTC()
	secret := activeSecret(30, now)
	require.NoError(t, store.CreateSecret(ctx, secret))

	s := NewScheduler(store, testLogger())
	first, err := s.ScheduleFor(ctx, secret)
	require.NoError(t, err)
	second, err := s.ScheduleFor(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))

	// Only one ladder is pending, not two.
	pending, err := store.FetchDue(ctx, secret.NextCheckIn, 100, 0)
	require.NoError(t, err)
	assert.Len(t, pending, len(second))
}

func TestScheduleForInactiveSecretCancels(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Now().UTC()
	secret := activeSecret(30, now)
	require.NoError(t, store.CreateSecret(ctx, secret))

	s := NewScheduler(store, testLogger())
	_, err := s.ScheduleFor(ctx, secret)
	require.NoError(t, err)

	secret.Status = interfaces.SecretPaused
	rungs, err := s.ScheduleFor(ctx, secret)
	require.NoError(t, err)
	assert.Empty(t, rungs)

	pending, err := store.FetchDue(ctx, secret.NextCheckIn, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "Pausing must leave no pending reminders behind")
}

func TestScheduleForWithoutServerShareCancels(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Now().UTC()
	secret := activeSecret(30, now)
	require.NoError(t, store.CreateSecret(ctx, secret))

	s := NewScheduler(store, testLogger())
	_, err := s.ScheduleFor(ctx, secret)
	require.NoError(t, err)

	secret.HasServerShare = false
	rungs, err := s.ScheduleFor(ctx, secret)
	require.NoError(t, err)
	assert.Empty(t, rungs)

	pending, err := store.FetchDue(ctx, secret.NextCheckIn, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
