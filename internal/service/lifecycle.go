package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/dialog"
	"correspondence/internal/domain"
	"correspondence/internal/events"
	"correspondence/internal/jobs"
)

func notFound(id uuid.UUID) error {
	return fmt.Errorf("correspondence %s: %w", id, domain.ErrNotFound)
}

// ScheduleInitialization moves a freshly stored correspondence to
// ReadyForPublish and schedules dialog creation, publishing and the due-date
// check. If a step after scheduling the publish job fails, the publish job is
// deleted again.
func (s *CorrespondenceService) ScheduleInitialization(ctx context.Context, id uuid.UUID, actor *domain.Actor) (string, error) {
	c, err := s.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return "", err
	}
	now := s.Now()
	if !c.HasReached(domain.StatusInitialized) {
		if _, err := s.Ledger.RecordTransition(ctx, id, domain.StatusInitialized, "", actor, now); err != nil {
			return "", err
		}
	}
	if !c.HasReached(domain.StatusReadyForPublish) {
		if _, err := s.Ledger.RecordTransition(ctx, id, domain.StatusReadyForPublish, "", actor, now); err != nil {
			return "", err
		}
	}

	spec, err := jobs.NewSpec(jobs.KindDialogCreate, jobs.CorrespondencePayload{CorrespondenceID: id})
	if err != nil {
		return "", err
	}
	dialogJob, err := s.Scheduler.EnqueueNow(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("schedule dialog creation: %w", err)
	}

	publishSpec, err := jobs.NewSpec(jobs.KindPublish, jobs.CorrespondencePayload{CorrespondenceID: id})
	if err != nil {
		return "", err
	}
	var publishJob string
	if c.VisibleFrom.After(now) {
		publishJob, err = s.Scheduler.ScheduleAt(ctx, c.VisibleFrom, publishSpec)
	} else {
		// publish checks for the dialog, so run it once dialog creation is done
		publishJob, err = s.Scheduler.ContinueWith(ctx, dialogJob, publishSpec, false)
	}
	if err != nil {
		return "", fmt.Errorf("schedule publish: %w", err)
	}

	if err := s.finishInitialization(ctx, c); err != nil {
		if _, derr := s.Scheduler.Delete(ctx, publishJob); derr != nil {
			slog.Error("delete publish job failed", "correspondence_id", id, "job_id", publishJob, "err", derr)
		}
		return "", err
	}
	slog.Info("correspondence initialized", "correspondence_id", id, "publish_job_id", publishJob)
	return publishJob, nil
}

func (s *CorrespondenceService) finishInitialization(ctx context.Context, c domain.Correspondence) error {
	if c.DueDateTime != nil {
		spec, err := jobs.NewSpec(jobs.KindDueDate, jobs.CorrespondencePayload{CorrespondenceID: c.ID})
		if err != nil {
			return err
		}
		if _, err := s.Scheduler.ScheduleAt(ctx, *c.DueDateTime, spec); err != nil {
			return fmt.Errorf("schedule due date check: %w", err)
		}
	}
	s.publish(ctx, events.CorrespondenceInitialized, c, c.Sender)
	return nil
}

// Publish makes a correspondence visible to its recipient. It runs under a
// per-correspondence lock and is a no-op once the correspondence is
// published or failed.
func (s *CorrespondenceService) Publish(ctx context.Context, id uuid.UUID) error {
	skipped, acquired, err := s.Locks.ExecuteWithConditionalLock(ctx, "publish-correspondence-"+id.String(),
		func(ctx context.Context) (bool, error) {
			c, err := s.Store.GetCorrespondence(ctx, id)
			if err != nil {
				return false, err
			}
			h, ok := c.HighestStatus()
			return ok && (h.Status == domain.StatusPublished || h.Status == domain.StatusFailed), nil
		},
		func(ctx context.Context) error { return s.publishLocked(ctx, id) },
	)
	switch {
	case err != nil:
		return err
	case skipped:
		slog.Info("publish skipped, already published or failed", "correspondence_id", id)
	case !acquired:
		slog.Warn("publish lock busy, another worker is publishing", "correspondence_id", id)
	}
	return nil
}

func (s *CorrespondenceService) publishLocked(ctx context.Context, id uuid.UUID) error {
	c, err := s.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return err
	}
	now := s.Now()

	reason, err := s.publishBlocker(ctx, c)
	if err != nil {
		return err
	}
	if reason != "" {
		return s.failPublish(ctx, c, reason, now)
	}

	if err := s.Store.MarkPublished(ctx, id, now); err != nil {
		return err
	}
	if _, err := s.Ledger.RecordTransition(ctx, id, domain.StatusPublished, "", nil, now); err != nil {
		return err
	}
	if len(c.NotificationRequests) > 0 {
		s.enqueue(ctx, jobs.KindNotificationDispatch, jobs.CorrespondencePayload{CorrespondenceID: id})
	}
	s.enqueueActivity(ctx, c, dialog.ActivityInformation, dialog.ActorServiceOwner, now, string(dialog.TextPublished))
	s.publish(ctx, events.CorrespondencePublished, c, c.Sender)
	s.publish(ctx, events.CorrespondencePublished, c, c.Recipient)
	slog.Info("correspondence published", "correspondence_id", id)
	return nil
}

// publishBlocker returns why the correspondence cannot be published, or an
// empty reason. Lookup failures other than a missing party are returned as
// errors so the job is retried.
func (s *CorrespondenceService) publishBlocker(ctx context.Context, c domain.Correspondence) (string, error) {
	for _, p := range []struct{ role, urn string }{{"sender", c.Sender}, {"recipient", c.Recipient}} {
		party, err := s.Parties.LookUpParty(ctx, domain.PartyIdentifier(p.urn))
		if errors.Is(err, domain.ErrNotFound) || (err == nil && party.PartyUUID == uuid.Nil) {
			return fmt.Sprintf("party for %s %s not found in register", p.role, p.urn), nil
		}
		if err != nil {
			return "", err
		}
		if party.IsDeleted {
			return fmt.Sprintf("party for %s %s is deleted", p.role, p.urn), nil
		}
	}
	if h, ok := c.HighestStatus(); !ok || h.Status != domain.StatusReadyForPublish {
		return fmt.Sprintf("correspondence %s not ready for publish", c.ID), nil
	}
	if _, ok := c.DialogID(); !ok {
		return fmt.Sprintf("dialog not created for correspondence %s", c.ID), nil
	}
	return "", nil
}

func (s *CorrespondenceService) failPublish(ctx context.Context, c domain.Correspondence, reason string, now time.Time) error {
	slog.Error("publish failed", "correspondence_id", c.ID, "reason", reason)
	if _, err := s.Ledger.RecordTransition(ctx, c.ID, domain.StatusFailed, reason, nil, now); err != nil {
		return err
	}
	args := jobs.MatchCorrespondence(c.ID)
	for _, kind := range []jobs.Kind{jobs.KindNotificationDispatch, jobs.KindPublish, jobs.KindDueDate} {
		if _, err := s.Scheduler.CancelMatching(ctx, kind, args); err != nil {
			slog.Warn("cancel jobs failed", "correspondence_id", c.ID, "kind", kind, "err", err)
		}
	}
	if _, ok := c.DialogID(); ok {
		s.enqueue(ctx, jobs.KindDialogSoftDelete, jobs.CorrespondencePayload{CorrespondenceID: c.ID})
	}
	s.publish(ctx, events.CorrespondencePublishFailed, c, c.Sender)
	return nil
}

// DueDate tells sender and recipient what did not happen before the due date.
func (s *CorrespondenceService) DueDate(ctx context.Context, id uuid.UUID) error {
	c, err := s.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return err
	}
	if !c.HasReached(domain.StatusPublished) {
		return domain.Precondition(domain.ReasonNotAvailable, "correspondence %s was never published", id)
	}
	if c.HasReached(domain.StatusFailed) {
		return domain.Precondition(domain.ReasonNotAvailable, "correspondence %s failed to publish", id)
	}
	if h, _ := c.HighestStatus(); h.Status.IsPurged() {
		return nil
	}
	if !c.HasReached(domain.StatusRead) {
		s.publish(ctx, events.CorrespondenceReceiverNeverRead, c, c.Sender)
		s.publish(ctx, events.CorrespondenceReceiverNeverRead, c, c.Recipient)
	}
	if c.IsConfirmationNeeded && !c.HasReached(domain.StatusConfirmed) {
		s.publish(ctx, events.CorrespondenceReceiverNeverConfirmed, c, c.Sender)
		s.publish(ctx, events.CorrespondenceReceiverNeverConfirmed, c, c.Recipient)
	}
	return nil
}

// DispatchNotifications queues a notification dispatch for a published
// correspondence.
func (s *CorrespondenceService) DispatchNotifications(ctx context.Context, id uuid.UUID) (string, error) {
	if _, err := s.visible(ctx, id); err != nil {
		return "", err
	}
	spec, err := jobs.NewSpec(jobs.KindNotificationDispatch, jobs.CorrespondencePayload{CorrespondenceID: id})
	if err != nil {
		return "", err
	}
	return s.Scheduler.EnqueueNow(ctx, spec)
}
