package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strata/internal/domain"
)

const (
	DefaultLockLease           = time.Minute
	DefaultLockAcquireInterval = 500 * time.Millisecond
)

// AdvisoryLockOptions configure a lock acquisition
type AdvisoryLockOptions struct {
	LeaseDuration time.Duration `json:"leaseDuration"`
}

// WithAdvisoryLockOptions configure WithAdvisoryLock. Zero values get
// defaults; the renew interval defaults to half the lease.
type WithAdvisoryLockOptions struct {
	LeaseDuration   time.Duration
	AcquireInterval time.Duration
	RenewInterval   time.Duration
}

// AcquireAdvisoryLock takes a named lock. A lock held by somebody else is a
// Conflict until its lease runs out.
func (e *Engine) AcquireAdvisoryLock(ctx context.Context, session domain.Session, name string, opts AdvisoryLockOptions) (*domain.AdvisoryLock, error) {
	if name == "" {
		return nil, domain.BadRequest("lock name is required")
	}
	lease := opts.LeaseDuration
	if lease < 0 {
		return nil, domain.BadRequest("lease duration must not be negative (%s)", lease)
	}
	if lease == 0 {
		lease = DefaultLockLease
	}

	var lock *domain.AdvisoryLock
	err := e.inTx(ctx, session, func(tx *txn) error {
		var err error
		lock, err = tx.AcquireLock(ctx, name, uuid.NewString(), lease, tx.now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// RenewAdvisoryLock extends the lease of a held lock. A lock that expired or
// was released is NotFound.
func (e *Engine) RenewAdvisoryLock(ctx context.Context, session domain.Session, name, handle string) (*domain.AdvisoryLock, error) {
	var lock *domain.AdvisoryLock
	err := e.inTx(ctx, session, func(tx *txn) error {
		var err error
		lock, err = tx.RenewLock(ctx, name, handle, tx.now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseAdvisoryLock releases a held lock. Releasing a lock that is already
// gone succeeds.
func (e *Engine) ReleaseAdvisoryLock(ctx context.Context, session domain.Session, name, handle string) error {
	err := e.inTx(ctx, session, func(tx *txn) error {
		return tx.ReleaseLock(ctx, name, handle)
	})
	if domain.KindOf(err) == domain.ErrorNotFound {
		return nil
	}
	return err
}

// ReleaseExpiredAdvisoryLocks deletes locks whose lease ran out and returns
// their names
func (e *Engine) ReleaseExpiredAdvisoryLocks(ctx context.Context) ([]string, error) {
	var names []string
	err := e.inTx(ctx, domain.Session{}, func(tx *txn) error {
		var err error
		names, err = tx.ReleaseExpiredLocks(ctx, tx.now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// WithAdvisoryLock runs fn while holding the named lock. Acquisition is
// retried while the lock is taken. The lease is renewed in the background;
// if a renewal fails the context passed to fn is cancelled and the renewal
// error is returned, whatever fn returns.
func (e *Engine) WithAdvisoryLock(ctx context.Context, session domain.Session, name string, opts WithAdvisoryLockOptions, fn func(ctx context.Context) error) error {
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = DefaultLockLease
	}
	if opts.AcquireInterval <= 0 {
		opts.AcquireInterval = DefaultLockAcquireInterval
	}
	if opts.RenewInterval <= 0 {
		opts.RenewInterval = opts.LeaseDuration / 2
	}

	lock, err := e.acquireWithRetry(ctx, session, name, opts)
	if err != nil {
		return err
	}
	log := e.logger.With().Str("lock", name).Logger()
	log.Debug().Msg("advisory lock acquired")

	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		renewErr error
	)
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(opts.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-lockCtx.Done():
				return
			case <-ticker.C:
				if _, err := e.RenewAdvisoryLock(lockCtx, session, name, lock.Handle); err != nil {
					if lockCtx.Err() != nil {
						return
					}
					renewErr = fmt.Errorf("failed to renew advisory lock %s: %w", name, err)
					cancel(renewErr)
					return
				}
			}
		}
	}()

	fnErr := fn(lockCtx)
	close(done)
	wg.Wait()

	if renewErr != nil {
		log.Error().Err(renewErr).Msg("advisory lock lost")
		return domain.AsError(renewErr)
	}
	e.releaseLock(context.WithoutCancel(ctx), session, lock, log)
	if fnErr != nil {
		return domain.AsError(fnErr)
	}
	return nil
}

func (e *Engine) acquireWithRetry(ctx context.Context, session domain.Session, name string, opts WithAdvisoryLockOptions) (*domain.AdvisoryLock, error) {
	for {
		lock, err := e.AcquireAdvisoryLock(ctx, session, name, AdvisoryLockOptions{LeaseDuration: opts.LeaseDuration})
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, domain.AsError(fmt.Errorf("failed to acquire advisory lock %s: %w", name, ctx.Err()))
		case <-time.After(opts.AcquireInterval):
		}
	}
}

func (e *Engine) releaseLock(ctx context.Context, session domain.Session, lock *domain.AdvisoryLock, log zerolog.Logger) {
	if err := e.ReleaseAdvisoryLock(ctx, session, lock.Name, lock.Handle); err != nil {
		log.Warn().Err(err).Msg("failed to release advisory lock")
		return
	}
	log.Debug().Msg("advisory lock released")
}

// LockCleaner removes expired advisory locks in the background
type LockCleaner struct {
	engine   *Engine
	interval time.Duration
	logger   zerolog.Logger
}

// NewLockCleaner creates a cleaner running every interval
func NewLockCleaner(engine *Engine, interval time.Duration, logger zerolog.Logger) *LockCleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LockCleaner{
		engine:   engine,
		interval: interval,
		logger:   logger.With().Str("component", "lock-cleaner").Logger(),
	}
}

// Name implements worker.Worker
func (c *LockCleaner) Name() string { return "lock-cleaner" }

// Interval implements worker.Worker
func (c *LockCleaner) Interval() time.Duration { return c.interval }

// RunOnce implements worker.Worker
func (c *LockCleaner) RunOnce(ctx context.Context) (int, error) {
	names, err := c.engine.ReleaseExpiredAdvisoryLocks(ctx)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		c.logger.Info().Str("lock", name).Msg("released expired advisory lock")
	}
	return len(names), nil
}
