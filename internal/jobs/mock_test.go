package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/store"
)

type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) InsertJob(ctx context.Context, in store.JobInsert) error {
	return m.Called(ctx, in).Error(0)
}

func (m *MockJobStore) GetJob(ctx context.Context, id string) (store.ScheduledJob, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.ScheduledJob), args.Error(1)
}

func (m *MockJobStore) DeleteJob(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobStore) RescheduleJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error {
	return m.Called(ctx, id, runAt, lastErr, now).Error(0)
}

func (m *MockJobStore) ReleaseContinuations(ctx context.Context, parentID string, parentSucceeded bool, now time.Time) (int64, error) {
	args := m.Called(ctx, parentID, parentSucceeded, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobStore) FindPendingJobs(ctx context.Context, kind string, payload json.RawMessage) ([]string, error) {
	args := m.Called(ctx, kind, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockJobStore) AcquireDueJobs(ctx context.Context, now time.Time, limit int) ([]store.ScheduledJob, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.ScheduledJob), args.Error(1)
}

func (m *MockJobStore) ClaimJob(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (int, bool, error) {
	args := m.Called(ctx, id, now, staleAfter)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockJobStore) MarkJobSucceeded(ctx context.Context, id string, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

func (m *MockJobStore) MarkJobFailed(ctx context.Context, id, lastErr string, now time.Time) error {
	return m.Called(ctx, id, lastErr, now).Error(0)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) EnqueueJob(ctx context.Context, msg sqsqueue.JobMessage) error {
	return m.Called(ctx, msg).Error(0)
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
