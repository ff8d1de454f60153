package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyfate/keyfate/interfaces"
	"github.com/keyfate/keyfate/metrics"
)

const (
	// DefaultBatchSize bounds how many due reminders one dispatch pass pulls
	// from the store at a time.
	DefaultBatchSize = 50

	// DefaultMaxAttempts is how many deliveries are tried before a reminder
	// is marked failed.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is the base delay before a failed delivery is
	// retried, multiplied by the attempt count.
	DefaultRetryBackoff = 15 * time.Minute

	// DefaultBatchDelay is the pause between consecutive batches of one
	// pass, keeping the notification gateway out of its rate limits.
	DefaultBatchDelay = time.Second
)

// Sender delivers one notification to a user over the first channel that
// accepts it. Satisfied by notify.Fallback.
type Sender interface {
	Send(ctx context.Context, userID string, n interfaces.Notification) (interfaces.ChannelKind, string, error)
}

// TokenIssuer mints a check-in token for a secret. Satisfied by
// checkin.Service.
type TokenIssuer interface {
	Issue(ctx context.Context, secretID interfaces.SecretID, ttl time.Duration) (string, error)
}

// Dispatcher drains due reminders in batches and delivers them. Conditions
// are re-checked at dispatch time: a reminder scheduled while its secret
// was active is cancelled, never sent, if the secret has since been paused,
// triggered, deleted, or lost its server share.
type Dispatcher struct {
	store     interfaces.Store
	shares    interfaces.ServerShareStore
	scheduler *Scheduler
	sender    Sender
	tokens    TokenIssuer
	baseURL   string
	log       *slog.Logger

	batchSize    int
	batchDelay   time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	now          func() time.Time
}

// NewDispatcher creates a reminder dispatcher. baseURL is the public URL
// check-in links are built against, e.g. "https://keyfate.example.com".
func NewDispatcher(store interfaces.Store, shares interfaces.ServerShareStore, scheduler *Scheduler, sender Sender, tokens TokenIssuer, baseURL string, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		shares:       shares,
		scheduler:    scheduler,
		sender:       sender,
		tokens:       tokens,
		baseURL:      baseURL,
		log:          log,
		batchSize:    DefaultBatchSize,
		batchDelay:   DefaultBatchDelay,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
		now:          time.Now,
	}
}

// RunOnce processes every reminder due at the time of the call, batch by
// batch, then sweeps overdue secrets into the triggered state. It returns
// how many reminders were dispatched (sent or terminally failed or
// cancelled). Individual delivery failures are recorded per reminder and do
// not abort the pass.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.now()
	processed := 0

	// Processed reminders normally leave the due set (sent, cancelled, or
	// pushed to a future retry), but a reminder whose state transition
	// itself fails stays due. Tracking seen IDs keeps such a reminder from
	// being refetched forever within one pass.
	seen := make(map[string]struct{})

	for {
		batch, err := d.store.FetchDue(ctx, now, d.batchSize, 0)
		if err != nil {
			return processed, fmt.Errorf("failed to fetch due reminders: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		metrics.DispatchBatches.Inc()
		progressed := false
		for _, reminder := range batch {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if _, ok := seen[reminder.ID]; ok {
				continue
			}
			seen[reminder.ID] = struct{}{}
			d.dispatch(ctx, reminder)
			processed++
			progressed = true
		}

		if !progressed || len(batch) < d.batchSize {
			break
		}
		if d.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			case <-time.After(d.batchDelay):
			}
		}
	}

	if err := d.triggerOverdue(ctx, now); err != nil {
		return processed, err
	}
	return processed, nil
}

// dispatch delivers one reminder. Failures are recorded on the reminder
// itself; only the terminal outcome is surfaced through logs and metrics.
func (d *Dispatcher) dispatch(ctx context.Context, reminder *interfaces.Reminder) {
	log := d.log.With(
		slog.String("reminder_id", reminder.ID),
		slog.String("secret_id", reminder.SecretID.String()),
		slog.String("type", string(reminder.Type)))

	secret, err := d.store.GetSecret(ctx, reminder.SecretID)
	switch {
	case errors.Is(err, interfaces.ErrSecretNotFound):
		d.cancel(ctx, reminder, log, "secret deleted")
		return
	case err != nil:
		d.recordFailure(ctx, reminder, log, fmt.Errorf("failed to load secret: %w", err))
		return
	}

	if secret.Status != interfaces.SecretActive {
		d.cancel(ctx, reminder, log, "secret not active")
		return
	}

	hasShare := secret.HasServerShare
	if hasShare {
		exists, err := d.shares.Exists(ctx, secret.ID)
		if err != nil {
			d.recordFailure(ctx, reminder, log, fmt.Errorf("failed to check server share: %w", err))
			return
		}
		hasShare = exists
	}
	if !hasShare {
		// Without the server share there is nothing to disclose, so there is
		// nothing to remind about. The secret is forced out of the active
		// state so no future ladder fires either.
		d.cancel(ctx, reminder, log, "server share removed")
		d.disableDisclosure(ctx, secret, log)
		return
	}

	token, err := d.tokens.Issue(ctx, secret.ID, 0)
	if err != nil {
		d.recordFailure(ctx, reminder, log, fmt.Errorf("failed to mint check-in token: %w", err))
		return
	}

	notification := d.render(secret, reminder, token)
	kind, messageID, err := d.sender.Send(ctx, reminder.UserID, notification)
	if err != nil {
		d.recordFailure(ctx, reminder, log, err)
		return
	}

	if err := d.store.MarkSent(ctx, reminder.ID, d.now()); err != nil {
		// Delivery happened; a conflicting state transition here means
		// another worker raced us, which is benign.
		log.Warn("Failed to mark reminder sent", slog.String("err", err.Error()))
		return
	}

	metrics.RemindersSent.Inc()
	log.Info("Reminder sent",
		slog.String("channel", string(kind)),
		slog.String("message_id", messageID))
}

// disableDisclosure records that the server custody share is gone and
// takes the secret out of the active state with its remaining reminders.
func (d *Dispatcher) disableDisclosure(ctx context.Context, secret *interfaces.Secret, log *slog.Logger) {
	if secret.HasServerShare {
		if err := d.store.MarkServerShareRemoved(ctx, secret.ID); err != nil {
			log.Error("Failed to record server share removal", slog.String("err", err.Error()))
		}
	}
	if secret.Status == interfaces.SecretActive {
		if err := d.store.SetSecretStatus(ctx, secret.ID, interfaces.SecretPaused); err != nil {
			log.Error("Failed to pause secret without server share", slog.String("err", err.Error()))
		}
	}
	if _, err := d.scheduler.CancelAllFor(ctx, secret.ID); err != nil {
		log.Error("Failed to cancel reminders for disabled secret", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) cancel(ctx context.Context, reminder *interfaces.Reminder, log *slog.Logger, reason string) {
	if err := d.store.MarkCancelled(ctx, reminder.ID); err != nil {
		log.Warn("Failed to cancel reminder", slog.String("err", err.Error()))
		return
	}
	metrics.RemindersCancelled.Inc()
	log.Info("Reminder cancelled", slog.String("reason", reason))
}

func (d *Dispatcher) recordFailure(ctx context.Context, reminder *interfaces.Reminder, log *slog.Logger, deliveryErr error) {
	retryAt := d.now().Add(d.retryBackoff * time.Duration(reminder.Attempts+1))
	attempts, failed, err := d.store.RecordFailure(ctx, reminder.ID, deliveryErr.Error(), retryAt, d.maxAttempts)
	if err != nil {
		log.Error("Failed to record reminder failure", slog.String("err", err.Error()))
		return
	}
	if failed {
		metrics.RemindersFailed.Inc()
		log.Error("Reminder failed permanently",
			slog.Int("attempts", attempts),
			slog.String("err", deliveryErr.Error()))
		return
	}
	log.Warn("Reminder delivery failed, will retry",
		slog.Int("attempts", attempts),
		slog.Time("retry_at", retryAt),
		slog.String("err", deliveryErr.Error()))
}

// triggerOverdue transitions active secrets past their deadline into the
// triggered state and cancels their remaining reminders.
func (d *Dispatcher) triggerOverdue(ctx context.Context, now time.Time) error {
	for {
		overdue, err := d.store.ListOverdue(ctx, now, d.batchSize)
		if err != nil {
			return fmt.Errorf("failed to list overdue secrets: %w", err)
		}
		if len(overdue) == 0 {
			return nil
		}

		triggered := 0
		for _, secret := range overdue {
			if err := d.store.SetSecretStatus(ctx, secret.ID, interfaces.SecretTriggered); err != nil {
				d.log.Error("Failed to trigger overdue secret",
					slog.String("secret_id", secret.ID.String()),
					slog.String("err", err.Error()))
				continue
			}
			triggered++
			if _, err := d.scheduler.CancelAllFor(ctx, secret.ID); err != nil {
				d.log.Error("Failed to cancel reminders for triggered secret",
					slog.String("secret_id", secret.ID.String()),
					slog.String("err", err.Error()))
			}
			metrics.SecretsTriggered.Inc()
			d.log.Info("Secret triggered, check-in deadline passed",
				slog.String("secret_id", secret.ID.String()),
				slog.Time("deadline", secret.NextCheckIn))
		}

		// Triggered secrets leave the overdue set. If nothing transitioned,
		// another pass would see the same rows again.
		if triggered == 0 || len(overdue) < d.batchSize {
			return nil
		}
	}
}
