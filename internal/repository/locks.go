package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"strata/internal/domain"
)

// AcquireLock takes the named lock. An expired holder is evicted first, a
// live holder is a Conflict.
func (s *Store) AcquireLock(ctx context.Context, name, handle string, lease time.Duration, at time.Time) (*domain.AdvisoryLock, error) {
	_, err := s.q.ExecContext(ctx, `DELETE FROM advisory_locks WHERE name = ? AND expires_at <= ?`, name, toMillis(at))
	if err != nil {
		return nil, fmt.Errorf("failed to evict expired lock: %w", err)
	}

	lock := &domain.AdvisoryLock{Name: name, Handle: handle, AcquiredAt: at, RenewedAt: at, LeaseDuration: lease}
	err = s.Savepoint(ctx, "acquire_lock", func() error {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO advisory_locks (name, handle, acquired_at, renewed_at, expires_at, lease_duration)
			VALUES (?, ?, ?, ?, ?, ?)
		`, name, handle, toMillis(at), toMillis(at), toMillis(lock.ExpiresAt()), lease.Milliseconds())
		return err
	})
	if err != nil {
		if s.adapter.IsUniqueViolation(err, ConstraintAdvisoryLockName) {
			return nil, domain.Conflict("lock is already taken (%s)", name)
		}
		return nil, fmt.Errorf("failed to insert lock: %w", err)
	}
	return lock, nil
}

// RenewLock extends the lease of a live lock held with handle
func (s *Store) RenewLock(ctx context.Context, name, handle string, at time.Time) (*domain.AdvisoryLock, error) {
	var r lockScan
	err := s.q.QueryRowContext(ctx, `
		UPDATE advisory_locks SET renewed_at = ?, expires_at = ? + lease_duration
		WHERE name = ? AND handle = ? AND expires_at > ?
		RETURNING `+lockColumns,
		toMillis(at), toMillis(at), name, handle, toMillis(at)).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("no such lock (%s)", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to renew lock: %w", err)
	}
	return r.toDomain(), nil
}

// ReleaseLock releases a lock held with handle
func (s *Store) ReleaseLock(ctx context.Context, name, handle string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM advisory_locks WHERE name = ? AND handle = ?`, name, handle)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return domain.NotFound("no such lock (%s)", name)
	}
	return nil
}

// ReleaseExpiredLocks deletes every lock whose lease ended before at
func (s *Store) ReleaseExpiredLocks(ctx context.Context, at time.Time) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		DELETE FROM advisory_locks WHERE expires_at <= ? RETURNING name
	`, toMillis(at))
	if err != nil {
		return nil, fmt.Errorf("failed to release expired locks: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan lock name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
