package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"correspondence/internal/domain"
	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/store"
)

func newTestScheduler() (*Scheduler, *MockJobStore, *MockQueue) {
	st, q := &MockJobStore{}, &MockQueue{}
	n := 0
	s := &Scheduler{Store: st, Queue: q, Now: fixedClock, NewID: func() string {
		n++
		return fmt.Sprintf("job_%d", n)
	}}
	return s, st, q
}

func TestScheduleAtInsertsScheduledRow(t *testing.T) {
	s, st, q := newTestScheduler()
	ctx := context.Background()
	at := fixedNow.Add(time.Hour)

	st.On("InsertJob", ctx, mock.MatchedBy(func(in store.JobInsert) bool {
		return in.Status == store.JobScheduled && in.RunAt.Equal(at) && in.Kind == string(KindPublish)
	})).Return(nil).Once()

	spec, _ := NewSpec(KindPublish, CorrespondencePayload{CorrespondenceID: uuid.New()})
	id, err := s.ScheduleAt(ctx, at, spec)

	assert.NoError(t, err)
	assert.Equal(t, "job_1", id)
	st.AssertExpectations(t)
	q.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
}

func TestEnqueueNowPushesToQueue(t *testing.T) {
	s, st, q := newTestScheduler()
	ctx := context.Background()

	st.On("InsertJob", ctx, mock.MatchedBy(func(in store.JobInsert) bool { return in.Status == store.JobEnqueued })).Return(nil).Once()
	q.On("EnqueueJob", ctx, mock.MatchedBy(func(m sqsqueue.JobMessage) bool {
		return m.JobID == "job_1" && m.Kind == string(KindDialogCreate)
	})).Return(nil).Once()

	spec, _ := NewSpec(KindDialogCreate, CorrespondencePayload{CorrespondenceID: uuid.New()})
	id, err := s.EnqueueNow(ctx, spec)

	assert.NoError(t, err)
	assert.Equal(t, "job_1", id)
	st.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestEnqueueNowFallsBackToDispatcherOnPushError(t *testing.T) {
	s, st, q := newTestScheduler()
	ctx := context.Background()

	st.On("InsertJob", ctx, mock.Anything).Return(nil).Once()
	q.On("EnqueueJob", ctx, mock.Anything).Return(errors.New("sqs down")).Once()
	st.On("RescheduleJob", ctx, "job_1", fixedNow, "sqs down", fixedNow).Return(nil).Once()

	spec, _ := NewSpec(KindDialogCreate, CorrespondencePayload{CorrespondenceID: uuid.New()})
	id, err := s.EnqueueNow(ctx, spec)

	assert.NoError(t, err)
	assert.Equal(t, "job_1", id)
	st.AssertExpectations(t)
}

func TestScheduleRoutesByShape(t *testing.T) {
	s, st, q := newTestScheduler()
	ctx := context.Background()

	st.On("InsertJob", ctx, mock.MatchedBy(func(in store.JobInsert) bool { return in.Status == store.JobScheduled })).Return(nil).Once()
	_, err := s.Schedule(ctx, Spec{Kind: KindDueDate, RunAt: fixedNow.Add(24 * time.Hour)})
	assert.NoError(t, err)

	st.On("InsertJob", ctx, mock.MatchedBy(func(in store.JobInsert) bool { return in.Status == store.JobEnqueued })).Return(nil).Once()
	q.On("EnqueueJob", ctx, mock.Anything).Return(nil).Once()
	_, err = s.Schedule(ctx, Spec{Kind: KindDueDate, RunAt: fixedNow.Add(-time.Minute)})
	assert.NoError(t, err)

	st.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestContinueWithPendingParentWaits(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := context.Background()

	st.On("InsertJob", ctx, mock.MatchedBy(func(in store.JobInsert) bool {
		return in.Status == store.JobAwaiting && in.DependsOn == "job_parent" && in.OnlyOnSuccess
	})).Return(nil).Once()
	st.On("GetJob", ctx, "job_parent").Return(store.ScheduledJob{ID: "job_parent", Status: store.JobScheduled}, nil).Once()

	id, err := s.ContinueWith(ctx, "job_parent", Spec{Kind: KindDialogActivity}, true)

	assert.NoError(t, err)
	assert.Equal(t, "job_1", id)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "ReleaseContinuations", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestContinueWithFinishedParentReleases(t *testing.T) {
	cases := []struct {
		status    store.JobStatus
		succeeded bool
	}{
		{store.JobSucceeded, true},
		{store.JobFailed, false},
		{store.JobDeleted, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			s, st, _ := newTestScheduler()
			ctx := context.Background()
			st.On("InsertJob", ctx, mock.Anything).Return(nil).Once()
			st.On("GetJob", ctx, "p").Return(store.ScheduledJob{ID: "p", Status: tc.status}, nil).Once()
			st.On("ReleaseContinuations", ctx, "p", tc.succeeded, fixedNow).Return(int64(1), nil).Once()

			_, err := s.ContinueWith(ctx, "p", Spec{Kind: KindLegacySync}, false)
			assert.NoError(t, err)
			st.AssertExpectations(t)
		})
	}
}

func TestContinueWithMissingParent(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := context.Background()
	st.On("InsertJob", ctx, mock.Anything).Return(nil).Once()
	st.On("GetJob", ctx, "gone").Return(store.ScheduledJob{}, fmt.Errorf("job gone: %w", domain.ErrNotFound)).Once()
	st.On("ReleaseContinuations", ctx, "gone", false, fixedNow).Return(int64(0), nil).Once()

	_, err := s.ContinueWith(ctx, "gone", Spec{Kind: KindLegacySync}, true)
	assert.NoError(t, err)
	st.AssertExpectations(t)
}

func TestCancelMatchingDeletesEachPendingJob(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := context.Background()
	id := uuid.New()
	args := MatchCorrespondence(id)

	st.On("FindPendingJobs", ctx, string(KindPublish), args).Return([]string{"a", "b", "c"}, nil).Once()
	st.On("DeleteJob", ctx, "a", fixedNow).Return(true, nil).Once()
	st.On("DeleteJob", ctx, "b", fixedNow).Return(false, nil).Once()
	st.On("DeleteJob", ctx, "c", fixedNow).Return(false, errors.New("db blip")).Once()

	n, err := s.CancelMatching(ctx, KindPublish, args)

	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	st.AssertExpectations(t)
}
