package storage

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/keyfate/keyfate/interfaces"
)

// MemoryStore is a mutex-guarded in-memory implementation of
// interfaces.Store. It backs tests and single-node development setups; the
// conditional-update semantics (token redemption, check-in advancement,
// failure counting) match the PostgreSQL implementation. Transactions are
// fully serialized rather than interleaved.
type MemoryStore struct {
	mu sync.Mutex

	// txMu serializes WithTransaction bodies so a rollback can only ever
	// restore state no committed transaction has modified since the
	// snapshot was taken.
	txMu sync.Mutex

	secrets   map[interfaces.SecretID]*interfaces.Secret
	tokens    map[string]*interfaces.CheckInToken // keyed by hex token hash
	reminders map[string]*interfaces.Reminder
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets:   make(map[interfaces.SecretID]*interfaces.Secret),
		tokens:    make(map[string]*interfaces.CheckInToken),
		reminders: make(map[string]*interfaces.Reminder),
	}
}

func (m *MemoryStore) CreateSecret(ctx context.Context, secret *interfaces.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *secret
	m.secrets[secret.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[id]
	if !ok {
		return nil, interfaces.ErrSecretNotFound
	}
	cp := *secret
	return &cp, nil
}

func (m *MemoryStore) UpdateCheckIn(ctx context.Context, id interfaces.SecretID, prevLastCheckIn, lastCheckIn, nextCheckIn time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[id]
	if !ok {
		return interfaces.ErrSecretNotFound
	}
	if !secret.LastCheckIn.Equal(prevLastCheckIn) {
		return interfaces.ErrUpdateConflict
	}

	secret.LastCheckIn = lastCheckIn
	secret.NextCheckIn = nextCheckIn
	return nil
}

func (m *MemoryStore) SetSecretStatus(ctx context.Context, id interfaces.SecretID, status interfaces.SecretStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[id]
	if !ok {
		return interfaces.ErrSecretNotFound
	}
	secret.Status = status
	return nil
}

func (m *MemoryStore) MarkServerShareRemoved(ctx context.Context, id interfaces.SecretID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[id]
	if !ok {
		return interfaces.ErrSecretNotFound
	}
	secret.HasServerShare = false
	return nil
}

func (m *MemoryStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*interfaces.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var overdue []*interfaces.Secret
	for _, secret := range m.secrets {
		if secret.Status == interfaces.SecretActive && !secret.NextCheckIn.After(now) {
			cp := *secret
			overdue = append(overdue, &cp)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].NextCheckIn.Before(overdue[j].NextCheckIn)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (m *MemoryStore) InsertToken(ctx context.Context, token *interfaces.CheckInToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *token
	m.tokens[hex.EncodeToString(token.TokenHash)] = &cp
	return nil
}

func (m *MemoryStore) GetTokenByHash(ctx context.Context, hash []byte) (*interfaces.CheckInToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[hex.EncodeToString(hash)]
	if !ok {
		return nil, interfaces.ErrTokenNotFound
	}
	cp := *token
	return &cp, nil
}

func (m *MemoryStore) RedeemToken(ctx context.Context, hash []byte, now time.Time) (*interfaces.CheckInToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[hex.EncodeToString(hash)]
	if !ok {
		return nil, interfaces.ErrTokenNotFound
	}
	// Expiry dominates: a stale token is unusable whether or not it was
	// ever redeemed.
	if now.After(token.ExpiresAt) {
		return nil, interfaces.ErrTokenExpired
	}
	if token.UsedAt != nil {
		return nil, interfaces.ErrTokenAlreadyUsed
	}

	usedAt := now
	token.UsedAt = &usedAt
	cp := *token
	return &cp, nil
}

func (m *MemoryStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, token := range m.tokens {
		if now.After(token.ExpiresAt) {
			delete(m.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) ReplacePending(ctx context.Context, secretID interfaces.SecretID, reminders []*interfaces.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, reminder := range m.reminders {
		if reminder.SecretID == secretID && reminder.Status == interfaces.ReminderPending {
			reminder.Status = interfaces.ReminderCancelled
		}
	}
	for _, reminder := range reminders {
		cp := *reminder
		m.reminders[reminder.ID] = &cp
	}
	return nil
}

func (m *MemoryStore) CancelAllPending(ctx context.Context, secretID interfaces.SecretID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cancelled int64
	for _, reminder := range m.reminders {
		if reminder.SecretID == secretID && reminder.Status == interfaces.ReminderPending {
			reminder.Status = interfaces.ReminderCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (m *MemoryStore) FetchDue(ctx context.Context, now time.Time, limit, offset int) ([]*interfaces.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*interfaces.Reminder
	for _, reminder := range m.reminders {
		if reminder.Status == interfaces.ReminderPending && !reminder.ScheduledFor.After(now) {
			cp := *reminder
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})

	if offset >= len(due) {
		return nil, nil
	}
	due = due[offset:]
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	return m.transition(id, interfaces.ReminderSent)
}

func (m *MemoryStore) MarkCancelled(ctx context.Context, id string) error {
	return m.transition(id, interfaces.ReminderCancelled)
}

func (m *MemoryStore) transition(id string, status interfaces.ReminderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reminder, ok := m.reminders[id]
	if !ok {
		return interfaces.ErrReminderNotFound
	}
	if reminder.Status != interfaces.ReminderPending {
		return interfaces.ErrUpdateConflict
	}
	reminder.Status = status
	return nil
}

func (m *MemoryStore) RecordFailure(ctx context.Context, id string, deliveryErr string, retryAt time.Time, maxAttempts int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reminder, ok := m.reminders[id]
	if !ok {
		return 0, false, interfaces.ErrReminderNotFound
	}
	// Terminal states are left untouched so repeated invocations for the
	// same delivery never double-count.
	if reminder.Status != interfaces.ReminderPending {
		return reminder.Attempts, reminder.Status == interfaces.ReminderFailed, nil
	}

	reminder.Attempts++
	reminder.Error = deliveryErr
	if reminder.Attempts >= maxAttempts {
		reminder.Status = interfaces.ReminderFailed
		return reminder.Attempts, true, nil
	}
	reminder.ScheduledFor = retryAt
	return reminder.Attempts, false, nil
}

// WithTransaction runs fn atomically by serializing transactions on a
// dedicated lock held from snapshot to commit. Rollback restores the
// snapshot, which no concurrent transaction can have moved past in the
// meantime, so a losing transaction never erases a winner's committed
// writes. The PostgreSQL store provides real transactions.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			m.mu.Lock()
			m.restoreLocked(snapshot)
			m.mu.Unlock()
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

type memorySnapshot struct {
	secrets   map[interfaces.SecretID]*interfaces.Secret
	tokens    map[string]*interfaces.CheckInToken
	reminders map[string]*interfaces.Reminder
}

func (m *MemoryStore) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		secrets:   make(map[interfaces.SecretID]*interfaces.Secret, len(m.secrets)),
		tokens:    make(map[string]*interfaces.CheckInToken, len(m.tokens)),
		reminders: make(map[string]*interfaces.Reminder, len(m.reminders)),
	}
	for k, v := range m.secrets {
		cp := *v
		snap.secrets[k] = &cp
	}
	for k, v := range m.tokens {
		cp := *v
		snap.tokens[k] = &cp
	}
	for k, v := range m.reminders {
		cp := *v
		snap.reminders[k] = &cp
	}
	return snap
}

func (m *MemoryStore) restoreLocked(snap memorySnapshot) {
	m.secrets = snap.secrets
	m.tokens = snap.tokens
	m.reminders = snap.reminders
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() {}
