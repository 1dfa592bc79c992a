package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrExternalTransient   = errors.New("external dependency failed")
	ErrAlreadyApplied      = errors.New("already applied")
	ErrSafetyLimitExceeded = errors.New("safety limit exceeded")

	// ErrTooManyKeys is returned by bulk idempotency key deletion.
	ErrTooManyKeys = ErrSafetyLimitExceeded
)

type Reason string

const (
	ReasonConfirmBeforeFetched   Reason = "confirm_before_fetched"
	ReasonReadBeforeFetched      Reason = "read_before_fetched"
	ReasonArchiveBeforeConfirmed Reason = "archive_before_confirmed"
	ReasonNotAvailable           Reason = "not_available_for_recipient"
	ReasonPublishedNotPurgeable  Reason = "published_not_purgeable_by_sender"
	ReasonStatusRegression       Reason = "status_regression"
	ReasonInvalidWindowSize      Reason = "invalid_window_size"
	ReasonNotReadyForPublish     Reason = "not_ready_for_publish"
	ReasonInvalidPayload         Reason = "invalid_payload"
	ReasonAlreadyConfirmed       Reason = "already_confirmed"
)

// PreconditionError is a status-order violation. It matches ErrPreconditionFailed.
type PreconditionError struct {
	Reason Reason
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("precondition failed: %s", e.Reason)
	}
	return fmt.Sprintf("precondition failed: %s: %s", e.Reason, e.Detail)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPreconditionFailed }

func Precondition(reason Reason, format string, args ...any) error {
	return &PreconditionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Transient marks err as a retryable external failure.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrExternalTransient, err)
}
