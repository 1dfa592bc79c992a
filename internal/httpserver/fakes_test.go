package httpserver

import (
	"context"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/sweep"
)

type fakeService struct {
	corr     domain.Correspondence
	err      error
	calls    []string
	actor    domain.Actor
	jobID    string
	sweepErr error
	sweepRun struct {
		kind   sweep.Kind
		size   int
		dryRun bool
	}
	jobs map[string]bool
}

func (f *fakeService) record(name string, actor domain.Actor) error {
	f.calls = append(f.calls, name)
	f.actor = actor
	return f.err
}

func (f *fakeService) Fetch(_ context.Context, _ uuid.UUID, actor domain.Actor) (domain.Correspondence, error) {
	return f.corr, f.record("fetch", actor)
}

func (f *fakeService) MarkRead(_ context.Context, _ uuid.UUID, actor domain.Actor) error {
	return f.record("read", actor)
}

func (f *fakeService) Confirm(_ context.Context, _ uuid.UUID, actor domain.Actor) error {
	return f.record("confirm", actor)
}

func (f *fakeService) Archive(_ context.Context, _ uuid.UUID, actor domain.Actor) error {
	return f.record("archive", actor)
}

func (f *fakeService) Purge(_ context.Context, _ uuid.UUID, actor domain.Actor) error {
	return f.record("purge", actor)
}

func (f *fakeService) DispatchNotifications(context.Context, uuid.UUID) (string, error) {
	f.calls = append(f.calls, "dispatch")
	return f.jobID, f.err
}

func (f *fakeService) RunSweep(_ context.Context, kind sweep.Kind, windowSize int, dryRun bool) (string, error) {
	f.sweepRun.kind, f.sweepRun.size, f.sweepRun.dryRun = kind, windowSize, dryRun
	return f.jobID, f.sweepErr
}

func (f *fakeService) Delete(_ context.Context, id string) (bool, error) {
	if !f.jobs[id] {
		return false, nil
	}
	delete(f.jobs, id)
	return true, nil
}

type fakeConditionStore struct {
	corr domain.Correspondence
	err  error
}

func (f fakeConditionStore) GetCorrespondence(context.Context, uuid.UUID) (domain.Correspondence, error) {
	return f.corr, f.err
}
