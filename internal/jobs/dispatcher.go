package jobs

import (
	"context"
	"log/slog"
	"time"

	"correspondence/internal/observability"
	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/store"
	"correspondence/internal/util"
)

type DueStore interface {
	AcquireDueJobs(ctx context.Context, now time.Time, limit int) ([]store.ScheduledJob, error)
	RescheduleJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error
}

// Dispatcher moves due jobs from the job table onto the queue.
type Dispatcher struct {
	Store     DueStore
	Queue     Queue
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewDispatcher(st DueStore, q Queue, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{Store: st, Queue: q, Interval: interval, BatchSize: batchSize, Now: util.NowUTC}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("job dispatcher started", "interval", d.Interval, "batch_size", d.BatchSize)
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job dispatcher stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("dispatch due jobs failed", "err", err)
			}
		}
	}
}

// DispatchOnce pushes one batch and returns how many jobs reached the queue.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.Now()
	due, err := d.Store.AcquireDueJobs(ctx, now, d.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, j := range due {
		msg := sqsqueue.JobMessage{JobID: j.ID, Kind: j.Kind, Payload: j.Payload, Attempt: j.Attempts}
		if err := d.Queue.EnqueueJob(ctx, msg); err != nil {
			slog.Error("enqueue due job failed", "job_id", j.ID, "kind", j.Kind, "err", err)
			if rerr := d.Store.RescheduleJob(ctx, j.ID, now.Add(d.Interval), err.Error(), now); rerr != nil {
				slog.Error("reschedule job failed", "job_id", j.ID, "err", rerr)
			}
			continue
		}
		sent++
		observability.JobsDispatched.Inc()
	}
	if sent > 0 {
		slog.Debug("dispatched due jobs", "count", sent)
	}
	return sent, nil
}
