package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"correspondence/internal/domain"
	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/store"
	"correspondence/internal/util"
)

// Store is the durable job table.
type Store interface {
	InsertJob(ctx context.Context, in store.JobInsert) error
	GetJob(ctx context.Context, id string) (store.ScheduledJob, error)
	DeleteJob(ctx context.Context, id string, now time.Time) (bool, error)
	RescheduleJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error
	ReleaseContinuations(ctx context.Context, parentID string, parentSucceeded bool, now time.Time) (int64, error)
	FindPendingJobs(ctx context.Context, kind string, args json.RawMessage) ([]string, error)
}

type Queue interface {
	EnqueueJob(ctx context.Context, msg sqsqueue.JobMessage) error
}

type Scheduler struct {
	Store Store
	Queue Queue
	Now   func() time.Time
	NewID func() string
}

func NewScheduler(st Store, q Queue) *Scheduler {
	return &Scheduler{Store: st, Queue: q, Now: util.NowUTC, NewID: util.NewJobID}
}

// Schedule picks the primitive matching the spec: a continuation when
// DependsOn is set, a delayed job when RunAt is in the future, else now.
func (s *Scheduler) Schedule(ctx context.Context, spec Spec) (string, error) {
	switch {
	case spec.DependsOn != "":
		return s.ContinueWith(ctx, spec.DependsOn, spec, spec.OnlyOnSuccess)
	case spec.RunAt.After(s.Now()):
		return s.ScheduleAt(ctx, spec.RunAt, spec)
	default:
		return s.EnqueueNow(ctx, spec)
	}
}

func (s *Scheduler) ScheduleAt(ctx context.Context, at time.Time, spec Spec) (string, error) {
	id := s.NewID()
	err := s.Store.InsertJob(ctx, store.JobInsert{
		ID:      id,
		Kind:    string(spec.Kind),
		Payload: spec.Payload,
		RunAt:   at.UTC(),
		Status:  store.JobScheduled,
		Now:     s.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", spec.Kind, err)
	}
	return id, nil
}

// EnqueueNow writes the job row and pushes it to the queue. When the push
// fails the row is left for the dispatcher to pick up.
func (s *Scheduler) EnqueueNow(ctx context.Context, spec Spec) (string, error) {
	now := s.Now()
	id := s.NewID()
	err := s.Store.InsertJob(ctx, store.JobInsert{
		ID:      id,
		Kind:    string(spec.Kind),
		Payload: spec.Payload,
		RunAt:   now,
		Status:  store.JobEnqueued,
		Now:     now,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", spec.Kind, err)
	}

	msg := sqsqueue.JobMessage{JobID: id, Kind: string(spec.Kind), Payload: spec.Payload}
	if err := s.Queue.EnqueueJob(ctx, msg); err != nil {
		slog.Warn("job push failed, leaving for dispatcher", "job_id", id, "kind", spec.Kind, "err", err)
		if rerr := s.Store.RescheduleJob(ctx, id, now, err.Error(), now); rerr != nil {
			return "", fmt.Errorf("enqueue %s: %w", spec.Kind, errors.Join(err, rerr))
		}
	}
	return id, nil
}

func (s *Scheduler) Delete(ctx context.Context, id string) (bool, error) {
	return s.Store.DeleteJob(ctx, id, s.Now())
}

// ContinueWith registers spec to run after parentID finishes. A parent that
// already finished releases the continuation right away.
func (s *Scheduler) ContinueWith(ctx context.Context, parentID string, spec Spec, onlyOnSuccess bool) (string, error) {
	id := s.NewID()
	now := s.Now()
	err := s.Store.InsertJob(ctx, store.JobInsert{
		ID:            id,
		Kind:          string(spec.Kind),
		Payload:       spec.Payload,
		RunAt:         now,
		DependsOn:     parentID,
		OnlyOnSuccess: onlyOnSuccess,
		Status:        store.JobAwaiting,
		Now:           now,
	})
	if err != nil {
		return "", fmt.Errorf("continue %s after %s: %w", spec.Kind, parentID, err)
	}

	parent, err := s.Store.GetJob(ctx, parentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// parent never existed; run the continuation unless it required success
			_, err = s.Store.ReleaseContinuations(ctx, parentID, false, now)
			return id, err
		}
		return "", err
	}
	switch parent.Status {
	case store.JobSucceeded:
		_, err = s.Store.ReleaseContinuations(ctx, parentID, true, now)
	case store.JobFailed, store.JobDeleted:
		_, err = s.Store.ReleaseContinuations(ctx, parentID, false, now)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// CancelMatching deletes pending jobs of kind whose payload contains args.
// Best effort: jobs already running are left alone.
func (s *Scheduler) CancelMatching(ctx context.Context, kind Kind, args json.RawMessage) (int, error) {
	ids, err := s.Store.FindPendingJobs(ctx, string(kind), args)
	if err != nil {
		return 0, fmt.Errorf("find %s jobs: %w", kind, err)
	}
	n := 0
	for _, id := range ids {
		ok, err := s.Store.DeleteJob(ctx, id, s.Now())
		if err != nil {
			slog.Warn("cancel job failed", "job_id", id, "kind", kind, "err", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}
