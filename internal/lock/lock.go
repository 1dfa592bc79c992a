package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"correspondence/internal/observability"
)

var ErrEmptyKey = errors.New("lock key cannot be empty")

type Options struct {
	Expiry     time.Duration
	Retries    int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{Expiry: 30 * time.Second, Retries: 2, RetryDelay: 100 * time.Millisecond}
}

// Coordinator serialises user-triggered writes on one resource across pods.
type Coordinator struct {
	rs   *redsync.Redsync
	opts Options
}

func New(rdb *redis.Client, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Retries < 0 {
		opts.Retries = def.Retries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &Coordinator{rs: redsync.New(goredis.NewPool(rdb)), opts: opts}
}

// ExecuteWithConditionalLock runs action under key unless shouldSkip reports
// the work is already done, either before acquiring or once the lock is held.
// A lock that cannot be acquired within the retries is reported as
// lockAcquired=false with a nil error.
func (c *Coordinator) ExecuteWithConditionalLock(
	ctx context.Context,
	key string,
	shouldSkip func(ctx context.Context) (bool, error),
	action func(ctx context.Context) error,
) (wasSkipped, lockAcquired bool, err error) {
	if key == "" {
		return false, false, ErrEmptyKey
	}

	skip, err := shouldSkip(ctx)
	if err != nil {
		return false, false, err
	}
	if skip {
		observability.Locks.WithLabelValues("skipped").Inc()
		return true, false, nil
	}

	mu := c.rs.NewMutex("lock:"+key,
		redsync.WithExpiry(c.opts.Expiry),
		redsync.WithTries(c.opts.Retries+1),
		redsync.WithRetryDelay(c.opts.RetryDelay),
	)
	if err := mu.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			observability.Locks.WithLabelValues("contended").Inc()
			slog.Info("lock busy, not running action", "key", key)
			return false, false, nil
		}
		return false, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer func() {
		if _, uerr := mu.UnlockContext(context.WithoutCancel(ctx)); uerr != nil {
			slog.Warn("release lock failed", "key", key, "err", uerr)
		}
	}()

	skip, err = shouldSkip(ctx)
	if err != nil {
		return false, true, err
	}
	if skip {
		observability.Locks.WithLabelValues("skipped").Inc()
		return true, true, nil
	}

	observability.Locks.WithLabelValues("acquired").Inc()
	if err := action(ctx); err != nil {
		slog.Error("locked action failed", "key", key, "err", err)
		return false, true, err
	}
	return false, true, nil
}
