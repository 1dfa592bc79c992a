package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"correspondence/internal/domain"
	"correspondence/internal/observability"
	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/util"
)

type Handler func(ctx context.Context, payload json.RawMessage) error

type RunStore interface {
	ClaimJob(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (int, bool, error)
	MarkJobSucceeded(ctx context.Context, id string, now time.Time) error
	MarkJobFailed(ctx context.Context, id, lastErr string, now time.Time) error
	RescheduleJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error
	ReleaseContinuations(ctx context.Context, parentID string, parentSucceeded bool, now time.Time) (int64, error)
}

// Runner executes queued jobs. Handlers must be re-entrant: a job can run
// again after a crash between the side effect and MarkJobSucceeded.
type Runner struct {
	Store       RunStore
	MaxAttempts int
	StaleAfter  time.Duration
	Now         func() time.Time

	handlers map[Kind]Handler
}

func NewRunner(st RunStore, maxAttempts int, staleAfter time.Duration) *Runner {
	return &Runner{
		Store:       st,
		MaxAttempts: maxAttempts,
		StaleAfter:  staleAfter,
		Now:         util.NowUTC,
		handlers:    map[Kind]Handler{},
	}
}

func (r *Runner) Register(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Handle runs one queue message. A nil return deletes the message; only
// storage errors are returned so the queue redelivers.
func (r *Runner) Handle(ctx context.Context, msg sqsqueue.JobMessage) error {
	kind := Kind(msg.Kind)
	attempts, claimed, err := r.Store.ClaimJob(ctx, msg.JobID, r.Now(), r.StaleAfter)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", msg.JobID, err)
	}
	if !claimed {
		// deleted, finished or running elsewhere
		slog.Debug("job not claimable, dropping message", "job_id", msg.JobID, "kind", kind)
		return nil
	}

	h, ok := r.handlers[kind]
	if !ok {
		observability.JobRuns.WithLabelValues(msg.Kind, "unknown").Inc()
		return r.fail(ctx, msg.JobID, fmt.Errorf("no handler for kind %q", kind))
	}

	start := time.Now()
	runErr := h(ctx, msg.Payload)
	observability.JobLatency.WithLabelValues(msg.Kind).Observe(time.Since(start).Seconds())

	switch {
	case runErr == nil:
		observability.JobRuns.WithLabelValues(msg.Kind, "succeeded").Inc()
		now := r.Now()
		if err := r.Store.MarkJobSucceeded(ctx, msg.JobID, now); err != nil {
			return err
		}
		_, err := r.Store.ReleaseContinuations(ctx, msg.JobID, true, now)
		return err

	case permanent(runErr) || attempts >= r.MaxAttempts:
		observability.JobRuns.WithLabelValues(msg.Kind, "failed").Inc()
		slog.Error("job failed", "job_id", msg.JobID, "kind", kind, "attempts", attempts, "err", runErr)
		return r.fail(ctx, msg.JobID, runErr)

	default:
		observability.JobRuns.WithLabelValues(msg.Kind, "retry").Inc()
		now := r.Now()
		next := now.Add(Backoff(attempts))
		slog.Warn("job attempt failed, retrying", "job_id", msg.JobID, "kind", kind,
			"attempts", attempts, "next_run_at", next, "err", runErr)
		return r.Store.RescheduleJob(ctx, msg.JobID, next, runErr.Error(), now)
	}
}

func (r *Runner) fail(ctx context.Context, id string, cause error) error {
	now := r.Now()
	if err := r.Store.MarkJobFailed(ctx, id, cause.Error(), now); err != nil {
		return err
	}
	_, err := r.Store.ReleaseContinuations(ctx, id, false, now)
	return err
}

// permanent errors will not change on retry.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrPreconditionFailed) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrSafetyLimitExceeded)
}

const maxBackoff = 30 * time.Minute

// Backoff grows exponentially from 30s and is capped.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 30 * time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
