package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyfate/keyfate/interfaces"
)

// ladderRung is one entry of the reminder ladder, expressed as an offset
// before the secret's next check-in deadline. Percentage rungs are resolved
// against the check-in interval at scheduling time.
type ladderRung struct {
	typ      interfaces.ReminderType
	fraction float64       // of the check-in interval, 0 when fixed
	before   time.Duration // fixed offset, 0 when fractional
}

var ladder = []ladderRung{
	{typ: interfaces.Reminder50Percent, fraction: 0.50},
	{typ: interfaces.Reminder25Percent, fraction: 0.25},
	{typ: interfaces.Reminder7Days, before: 7 * 24 * time.Hour},
	{typ: interfaces.Reminder3Days, before: 3 * 24 * time.Hour},
	{typ: interfaces.Reminder24Hours, before: 24 * time.Hour},
	{typ: interfaces.Reminder12Hours, before: 12 * time.Hour},
	{typ: interfaces.Reminder1Hour, before: time.Hour},
}

// Scheduler derives a secret's reminder ladder from its next check-in
// deadline and keeps the store's pending set in sync with it.
type Scheduler struct {
	store interfaces.ReminderStore
	log   *slog.Logger
	now   func() time.Time
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(store interfaces.ReminderStore, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Ladder computes the reminder rungs for the secret without persisting
// anything. Rungs that would land in the past are dropped, as are fixed
// rungs further from the deadline than the whole interval (a 7-day rung
// makes no sense on a 3-day cadence). The result is ordered soonest first.
func (s *Scheduler) Ladder(secret *interfaces.Secret, now time.Time) []*interfaces.Reminder {
	interval := secret.CheckInInterval()
	reminders := make([]*interfaces.Reminder, 0, len(ladder))
	for _, rung := range ladder {
		before := rung.before
		if rung.fraction > 0 {
			before = time.Duration(float64(interval) * rung.fraction)
		}
		if before >= interval {
			continue
		}
		scheduledFor := secret.NextCheckIn.Add(-before)
		if !scheduledFor.After(now) {
			continue
		}
		reminders = append(reminders, &interfaces.Reminder{
			ID:           uuid.NewString(),
			SecretID:     secret.ID,
			UserID:       secret.UserID,
			Type:         rung.typ,
			ScheduledFor: scheduledFor,
			Status:       interfaces.ReminderPending,
			CreatedAt:    now,
		})
	}

	// The ladder above runs furthest-out first, but fractional rungs can
	// cross fixed ones on short intervals.
	for i := 1; i < len(reminders); i++ {
		for j := i; j > 0 && reminders[j].ScheduledFor.Before(reminders[j-1].ScheduledFor); j-- {
			reminders[j], reminders[j-1] = reminders[j-1], reminders[j]
		}
	}
	return reminders
}

// ScheduleFor replaces the secret's pending reminders with a fresh ladder
// derived from its current deadline. Scheduling is idempotent: repeating
// the call for an unchanged deadline leaves one pending ladder, not two.
// Secrets that are not active, or whose server share is gone, get their
// pending reminders cancelled instead.
func (s *Scheduler) ScheduleFor(ctx context.Context, secret *interfaces.Secret) ([]*interfaces.Reminder, error) {
	if secret.Status != interfaces.SecretActive || !secret.HasServerShare {
		if _, err := s.store.CancelAllPending(ctx, secret.ID); err != nil {
			return nil, fmt.Errorf("failed to cancel reminders for secret %s: %w", secret.ID, err)
		}
		return nil, nil
	}

	reminders := s.Ladder(secret, s.now())
	if err := s.store.ReplacePending(ctx, secret.ID, reminders); err != nil {
		return nil, fmt.Errorf("failed to schedule reminders for secret %s: %w", secret.ID, err)
	}

	s.log.Debug("Reminder ladder scheduled",
		slog.String("secret_id", secret.ID.String()),
		slog.Int("rungs", len(reminders)),
		slog.Time("deadline", secret.NextCheckIn))
	return reminders, nil
}

// CancelAllFor cancels every pending reminder for the secret. Used when a
// secret is paused, triggered, or its server share is removed.
func (s *Scheduler) CancelAllFor(ctx context.Context, secretID interfaces.SecretID) (int64, error) {
	n, err := s.store.CancelAllPending(ctx, secretID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders for secret %s: %w", secretID, err)
	}
	return n, nil
}
