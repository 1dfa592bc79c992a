package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/observability"
	"correspondence/internal/store"
)

type Store interface {
	CorrespondenceExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListTransitions(ctx context.Context, id uuid.UUID) ([]domain.StatusTransition, error)
	InsertTransition(ctx context.Context, in store.TransitionInsert) (int64, error)
}

// Ledger appends status transitions. It keeps the highest rank monotonic:
// a ranked status below the current highest is rejected unless it is a purge.
type Ledger struct {
	Store Store
	Now   func() time.Time
}

func New(s Store) *Ledger {
	return &Ledger{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

func (l *Ledger) RecordTransition(ctx context.Context, id uuid.UUID, status domain.Status, text string, actor *domain.Actor, at time.Time) (int64, error) {
	exists, err := l.Store.CorrespondenceExists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("correspondence %s: %w", id, domain.ErrNotFound)
	}

	history, err := l.Store.ListTransitions(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := checkOrder(history, status); err != nil {
		return 0, err
	}

	if at.IsZero() {
		at = l.now()
	}
	if text == "" {
		text = status.String()
	}
	tid, err := l.Store.InsertTransition(ctx, store.TransitionInsert{
		CorrespondenceID: id,
		Status:           status,
		Text:             text,
		ChangedAt:        at,
		PartyUUID:        actor.PartyRef(),
	})
	if err != nil {
		return 0, err
	}
	observability.Transitions.WithLabelValues(status.String()).Inc()
	return tid, nil
}

func checkOrder(history []domain.StatusTransition, next domain.Status) error {
	if !next.Ranked() || next.IsPurged() {
		return nil
	}
	highest, ok := domain.HighestStatus(history)
	if !ok || next.Rank() >= highest.Status.Rank() {
		return nil
	}
	return domain.Precondition(domain.ReasonStatusRegression, "%s after %s", next, highest.Status)
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}
