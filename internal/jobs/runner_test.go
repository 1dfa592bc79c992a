package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"correspondence/internal/domain"
	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/store"
)

func newTestRunner() (*Runner, *MockJobStore) {
	st := &MockJobStore{}
	r := NewRunner(st, 3, 10*time.Minute)
	r.Now = fixedClock
	return r, st
}

func TestRunnerSuccessReleasesContinuations(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()
	var got json.RawMessage
	r.Register(KindDialogCreate, func(_ context.Context, p json.RawMessage) error {
		got = p
		return nil
	})

	st.On("ClaimJob", ctx, "job_1", fixedNow, 10*time.Minute).Return(1, true, nil).Once()
	st.On("MarkJobSucceeded", ctx, "job_1", fixedNow).Return(nil).Once()
	st.On("ReleaseContinuations", ctx, "job_1", true, fixedNow).Return(int64(2), nil).Once()

	err := r.Handle(ctx, sqsqueue.JobMessage{JobID: "job_1", Kind: string(KindDialogCreate), Payload: json.RawMessage(`{"a":1}`)})

	assert.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
	st.AssertExpectations(t)
}

func TestRunnerUnclaimedIsNoop(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()
	called := false
	r.Register(KindDialogCreate, func(context.Context, json.RawMessage) error { called = true; return nil })

	st.On("ClaimJob", ctx, "job_1", fixedNow, 10*time.Minute).Return(0, false, nil).Once()

	assert.NoError(t, r.Handle(ctx, sqsqueue.JobMessage{JobID: "job_1", Kind: string(KindDialogCreate)}))
	assert.False(t, called)
	st.AssertExpectations(t)
}

func TestRunnerTransientErrorReschedules(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()
	r.Register(KindDialogCreate, func(context.Context, json.RawMessage) error {
		return domain.Transient("dialog create", errors.New("502"))
	})

	st.On("ClaimJob", ctx, "job_1", fixedNow, 10*time.Minute).Return(2, true, nil).Once()
	st.On("RescheduleJob", ctx, "job_1", fixedNow.Add(Backoff(2)), mock.Anything, fixedNow).Return(nil).Once()

	assert.NoError(t, r.Handle(ctx, sqsqueue.JobMessage{JobID: "job_1", Kind: string(KindDialogCreate)}))
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "MarkJobFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunnerFailsPermanentlyAndOnLastAttempt(t *testing.T) {
	cases := []struct {
		name     string
		attempts int
		err      error
	}{
		{"precondition", 1, domain.Precondition(domain.ReasonNotAvailable, "gone")},
		{"not found", 1, fmt.Errorf("load: %w", domain.ErrNotFound)},
		{"attempts exhausted", 3, errors.New("still broken")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, st := newTestRunner()
			ctx := context.Background()
			r.Register(KindLegacySync, func(context.Context, json.RawMessage) error { return tc.err })

			st.On("ClaimJob", ctx, "job_1", fixedNow, 10*time.Minute).Return(tc.attempts, true, nil).Once()
			st.On("MarkJobFailed", ctx, "job_1", tc.err.Error(), fixedNow).Return(nil).Once()
			st.On("ReleaseContinuations", ctx, "job_1", false, fixedNow).Return(int64(0), nil).Once()

			assert.NoError(t, r.Handle(ctx, sqsqueue.JobMessage{JobID: "job_1", Kind: string(KindLegacySync)}))
			st.AssertExpectations(t)
		})
	}
}

func TestRunnerUnknownKindFails(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()
	st.On("ClaimJob", ctx, "job_1", fixedNow, 10*time.Minute).Return(1, true, nil).Once()
	st.On("MarkJobFailed", ctx, "job_1", mock.Anything, fixedNow).Return(nil).Once()
	st.On("ReleaseContinuations", ctx, "job_1", false, fixedNow).Return(int64(0), nil).Once()

	assert.NoError(t, r.Handle(ctx, sqsqueue.JobMessage{JobID: "job_1", Kind: "nope"}))
	st.AssertExpectations(t)
}

func TestRunnerStoreErrorIsReturned(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()
	st.On("ClaimJob", ctx, "job_1", fixedNow, 10*time.Minute).Return(0, false, errors.New("conn refused")).Once()

	assert.Error(t, r.Handle(ctx, sqsqueue.JobMessage{JobID: "job_1", Kind: string(KindPublish)}))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, Backoff(0))
	assert.Equal(t, 30*time.Second, Backoff(1))
	assert.Equal(t, 60*time.Second, Backoff(2))
	assert.Equal(t, 4*time.Minute, Backoff(4))
	assert.Equal(t, maxBackoff, Backoff(20))
}

func TestDispatchOnceReschedulesFailedPush(t *testing.T) {
	st, q := &MockJobStore{}, &MockQueue{}
	d := NewDispatcher(st, q, 2*time.Second, 50)
	d.Now = fixedClock
	ctx := context.Background()

	st.On("AcquireDueJobs", ctx, fixedNow, 50).Return([]store.ScheduledJob{
		{ID: "a", Kind: string(KindPublish)},
		{ID: "b", Kind: string(KindDueDate)},
	}, nil).Once()
	q.On("EnqueueJob", ctx, mock.MatchedBy(func(m sqsqueue.JobMessage) bool { return m.JobID == "a" })).Return(nil).Once()
	q.On("EnqueueJob", ctx, mock.MatchedBy(func(m sqsqueue.JobMessage) bool { return m.JobID == "b" })).Return(errors.New("throttled")).Once()
	st.On("RescheduleJob", ctx, "b", fixedNow.Add(2*time.Second), "throttled", fixedNow).Return(nil).Once()

	sent, err := d.DispatchOnce(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, sent)
	st.AssertExpectations(t)
	q.AssertExpectations(t)
}
