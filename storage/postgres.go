package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyfate/keyfate/interfaces"
)

// PostgresStore implements interfaces.Store on PostgreSQL via pgx.
//
// Token redemption and check-in advancement rely on conditional UPDATEs
// (compare-and-swap on used_at / last_check_in), so two requests racing on
// the same row have exactly one winner without explicit row locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at connString and verifies the
// connection.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx, letting every store
// method run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txKey stores the active transaction in the context.
type txKey struct{}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// WithTransaction runs fn inside a database transaction, rolling back on
// error or panic. Store methods called with the returned context
// participate in the transaction.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		// Already transactional.
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSecret(ctx context.Context, secret *interfaces.Secret) error {
	query := `
		INSERT INTO secrets (id, user_id, title, status, check_in_interval_days, last_check_in, next_check_in, has_server_share)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.q(ctx).Exec(ctx, query,
		secret.ID, secret.UserID, secret.Title, secret.Status,
		secret.CheckInIntervalDays, secret.LastCheckIn, secret.NextCheckIn, secret.HasServerShare)
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.Secret, error) {
	query := `
		SELECT id, user_id, title, status, check_in_interval_days, last_check_in, next_check_in, has_server_share
		FROM secrets
		WHERE id = $1
	`

	var secret interfaces.Secret
	err := s.q(ctx).QueryRow(ctx, query, id).Scan(
		&secret.ID, &secret.UserID, &secret.Title, &secret.Status,
		&secret.CheckInIntervalDays, &secret.LastCheckIn, &secret.NextCheckIn, &secret.HasServerShare)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return &secret, nil
}

func (s *PostgresStore) UpdateCheckIn(ctx context.Context, id interfaces.SecretID, prevLastCheckIn, lastCheckIn, nextCheckIn time.Time) error {
	query := `
		UPDATE secrets
		SET last_check_in = $2, next_check_in = $3
		WHERE id = $1 AND last_check_in = $4
	`

	result, err := s.q(ctx).Exec(ctx, query, id, lastCheckIn, nextCheckIn, prevLastCheckIn)
	if err != nil {
		return fmt.Errorf("failed to update check-in: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the secret is gone or a concurrent check-in won.
		if _, err := s.GetSecret(ctx, id); err != nil {
			return err
		}
		return interfaces.ErrUpdateConflict
	}
	return nil
}

func (s *PostgresStore) SetSecretStatus(ctx context.Context, id interfaces.SecretID, status interfaces.SecretStatus) error {
	result, err := s.q(ctx).Exec(ctx, `UPDATE secrets SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set secret status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return interfaces.ErrSecretNotFound
	}
	return nil
}

func (s *PostgresStore) MarkServerShareRemoved(ctx context.Context, id interfaces.SecretID) error {
	result, err := s.q(ctx).Exec(ctx, `UPDATE secrets SET has_server_share = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark server share removed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return interfaces.ErrSecretNotFound
	}
	return nil
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*interfaces.Secret, error) {
	query := `
		SELECT id, user_id, title, status, check_in_interval_days, last_check_in, next_check_in, has_server_share
		FROM secrets
		WHERE status = 'active' AND next_check_in <= $1
		ORDER BY next_check_in ASC
		LIMIT $2
	`

	rows, err := s.q(ctx).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue secrets: %w", err)
	}
	defer rows.Close()

	var secrets []*interfaces.Secret
	for rows.Next() {
		var secret interfaces.Secret
		if err := rows.Scan(
			&secret.ID, &secret.UserID, &secret.Title, &secret.Status,
			&secret.CheckInIntervalDays, &secret.LastCheckIn, &secret.NextCheckIn, &secret.HasServerShare); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		secrets = append(secrets, &secret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overdue secrets: %w", err)
	}
	return secrets, nil
}

func (s *PostgresStore) InsertToken(ctx context.Context, token *interfaces.CheckInToken) error {
	query := `
		INSERT INTO checkin_tokens (id, secret_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.q(ctx).Exec(ctx, query, token.ID, token.SecretID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert check-in token: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTokenByHash(ctx context.Context, hash []byte) (*interfaces.CheckInToken, error) {
	query := `
		SELECT id, secret_id, token_hash, expires_at, used_at, created_at
		FROM checkin_tokens
		WHERE token_hash = $1
	`

	var token interfaces.CheckInToken
	err := s.q(ctx).QueryRow(ctx, query, hash).Scan(
		&token.ID, &token.SecretID, &token.TokenHash, &token.ExpiresAt, &token.UsedAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get check-in token: %w", err)
	}
	return &token, nil
}

func (s *PostgresStore) RedeemToken(ctx context.Context, hash []byte, now time.Time) (*interfaces.CheckInToken, error) {
	// The precondition check and the used_at write are one conditional
	// UPDATE, so concurrent redemptions of the same token have exactly one
	// winner.
	query := `
		UPDATE checkin_tokens
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, secret_id, token_hash, expires_at, used_at, created_at
	`

	var token interfaces.CheckInToken
	err := s.q(ctx).QueryRow(ctx, query, hash, now).Scan(
		&token.ID, &token.SecretID, &token.TokenHash, &token.ExpiresAt, &token.UsedAt, &token.CreatedAt)
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to redeem check-in token: %w", err)
	}

	// The CAS missed; classify why for the caller.
	existing, getErr := s.GetTokenByHash(ctx, hash)
	if getErr != nil {
		return nil, getErr
	}
	if now.After(existing.ExpiresAt) {
		return nil, interfaces.ErrTokenExpired
	}
	return nil, interfaces.ErrTokenAlreadyUsed
}

func (s *PostgresStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.q(ctx).Exec(ctx, `DELETE FROM checkin_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected(), nil
}

func (s *PostgresStore) ReplacePending(ctx context.Context, secretID interfaces.SecretID, reminders []*interfaces.Reminder) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.CancelAllPending(ctx, secretID); err != nil {
			return err
		}

		query := `
			INSERT INTO reminders (id, secret_id, user_id, type, scheduled_for, status, attempts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, reminder := range reminders {
			_, err := s.q(ctx).Exec(ctx, query,
				reminder.ID, reminder.SecretID, reminder.UserID, reminder.Type,
				reminder.ScheduledFor, reminder.Status, reminder.Attempts, reminder.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert reminder: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) CancelAllPending(ctx context.Context, secretID interfaces.SecretID) (int64, error) {
	query := `
		UPDATE reminders
		SET status = 'cancelled'
		WHERE secret_id = $1 AND status = 'pending'
	`

	result, err := s.q(ctx).Exec(ctx, query, secretID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending reminders: %w", err)
	}
	return result.RowsAffected(), nil
}

func (s *PostgresStore) FetchDue(ctx context.Context, now time.Time, limit, offset int) ([]*interfaces.Reminder, error) {
	query := `
		SELECT id, secret_id, user_id, type, scheduled_for, status, attempts, COALESCE(error, ''), created_at
		FROM reminders
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.q(ctx).Query(ctx, query, now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*interfaces.Reminder
	for rows.Next() {
		var reminder interfaces.Reminder
		if err := rows.Scan(
			&reminder.ID, &reminder.SecretID, &reminder.UserID, &reminder.Type,
			&reminder.ScheduledFor, &reminder.Status, &reminder.Attempts, &reminder.Error, &reminder.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, &reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due reminders: %w", err)
	}
	return reminders, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, `UPDATE reminders SET status = 'sent', sent_at = $2 WHERE id = $1 AND status = 'pending'`, at)
}

func (s *PostgresStore) MarkCancelled(ctx context.Context, id string) error {
	return s.transition(ctx, id, `UPDATE reminders SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`)
}

func (s *PostgresStore) transition(ctx context.Context, id, query string, args ...any) error {
	result, err := s.q(ctx).Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to transition reminder: %w", err)
	}
	if result.RowsAffected() == 0 {
		var status string
		err := s.q(ctx).QueryRow(ctx, `SELECT status FROM reminders WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return interfaces.ErrReminderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to inspect reminder: %w", err)
		}
		return interfaces.ErrUpdateConflict
	}
	return nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, id string, deliveryErr string, retryAt time.Time, maxAttempts int) (int, bool, error) {
	// Conditional on status = 'pending' so repeated invocations for the
	// same delivery never double-count once the reminder went terminal.
	query := `
		UPDATE reminders
		SET attempts = attempts + 1,
		    error = $2,
		    status = CASE WHEN attempts + 1 >= $4 THEN 'failed' ELSE 'pending' END,
		    scheduled_for = CASE WHEN attempts + 1 >= $4 THEN scheduled_for ELSE $3 END
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts, status
	`

	var attempts int
	var status interfaces.ReminderStatus
	err := s.q(ctx).QueryRow(ctx, query, id, deliveryErr, retryAt, maxAttempts).Scan(&attempts, &status)
	if err == nil {
		return attempts, status == interfaces.ReminderFailed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to record reminder failure: %w", err)
	}

	// Already terminal; report its state without touching it.
	err = s.q(ctx).QueryRow(ctx, `SELECT attempts, status FROM reminders WHERE id = $1`, id).Scan(&attempts, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, interfaces.ErrReminderNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to inspect reminder: %w", err)
	}
	return attempts, status == interfaces.ReminderFailed, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
