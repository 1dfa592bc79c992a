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
	"correspondence/internal/providers/legacy"
)

var errConfirmInProgress = errors.New("confirmation already in progress")

func alreadyApplied(id uuid.UUID, what string) error {
	return fmt.Errorf("correspondence %s %s: %w", id, what, domain.ErrAlreadyApplied)
}

// Fetch records that the recipient opened the correspondence.
func (s *CorrespondenceService) Fetch(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Correspondence, error) {
	c, err := s.visible(ctx, id)
	if err != nil {
		return domain.Correspondence{}, err
	}
	if _, err := s.Ledger.RecordTransition(ctx, id, domain.StatusFetched, "", &actor, s.Now()); err != nil {
		return domain.Correspondence{}, err
	}
	return c, nil
}

func (s *CorrespondenceService) MarkRead(ctx context.Context, id uuid.UUID, actor domain.Actor) error {
	c, err := s.visible(ctx, id)
	if err != nil {
		return err
	}
	if !c.HasReached(domain.StatusFetched) {
		return domain.Precondition(domain.ReasonReadBeforeFetched, "correspondence %s", id)
	}
	if c.HasReached(domain.StatusRead) {
		return alreadyApplied(id, "already read")
	}
	// a later lifecycle status implies the read
	if h, ok := c.HighestStatus(); ok && h.Status.Rank() > domain.StatusRead.Rank() {
		return alreadyApplied(id, "already "+h.Status.String())
	}

	at := s.Now()
	if _, err := s.Ledger.RecordTransition(ctx, id, domain.StatusRead, "", &actor, at); err != nil {
		return err
	}
	s.syncLegacy(ctx, c, &actor, at, legacy.SyncRead)
	s.enqueueActivity(ctx, c, dialog.ActivityOpened, dialog.ActorRecipient, at)
	s.publish(ctx, events.CorrespondenceReceiverRead, c, c.Sender)
	return nil
}

// Confirm commits the Confirmed status and then patches the dialog. When the
// patch does not finish within ConfirmTimeout a verify job keeps patching.
func (s *CorrespondenceService) Confirm(ctx context.Context, id uuid.UUID, actor domain.Actor) error {
	c, err := s.visible(ctx, id)
	if err != nil {
		return err
	}
	if !c.HasReached(domain.StatusFetched) {
		return domain.Precondition(domain.ReasonConfirmBeforeFetched, "correspondence %s", id)
	}
	if c.HasReached(domain.StatusConfirmed) {
		return domain.Precondition(domain.ReasonAlreadyConfirmed, "correspondence %s", id)
	}

	at := s.Now()
	skipped, acquired, err := s.Locks.ExecuteWithConditionalLock(ctx, "confirm-correspondence-"+id.String(),
		func(ctx context.Context) (bool, error) {
			cur, err := s.Store.GetCorrespondence(ctx, id)
			if err != nil {
				return false, err
			}
			return cur.HasReached(domain.StatusConfirmed), nil
		},
		func(ctx context.Context) error { return s.confirmLocked(ctx, c, actor, at) },
	)
	switch {
	case err != nil:
		return err
	case skipped:
		return domain.Precondition(domain.ReasonAlreadyConfirmed, "correspondence %s", id)
	case !acquired:
		return domain.Transient("confirm "+id.String(), errConfirmInProgress)
	}
	return nil
}

func (s *CorrespondenceService) confirmLocked(ctx context.Context, c domain.Correspondence, actor domain.Actor, at time.Time) error {
	if _, err := s.Ledger.RecordTransition(ctx, c.ID, domain.StatusConfirmed, "", &actor, at); err != nil {
		return err
	}
	s.enqueueActivity(ctx, c, dialog.ActivityConfirmed, dialog.ActorRecipient, at)
	s.syncLegacy(ctx, c, &actor, at, legacy.SyncConfirm)
	s.publish(ctx, events.CorrespondenceReceiverConfirmed, c, c.Sender)
	slog.Info("correspondence confirmed", "correspondence_id", c.ID)

	pctx, cancel := context.WithTimeout(ctx, s.Opts.ConfirmTimeout)
	_, err := s.Dialogs.PatchToConfirmed(pctx, c.ID)
	cancel()
	if err == nil {
		return nil
	}
	slog.Warn("dialog confirm patch failed, scheduling verify", "correspondence_id", c.ID, "err", err)
	spec, serr := jobs.NewSpec(jobs.KindVerifyConfirmation, jobs.ConfirmationPayload{
		CorrespondenceID: c.ID,
		PartyID:          actor.PartyID,
		PartyUUID:        actor.PartyUUID,
		At:               at,
	})
	if serr == nil {
		_, serr = s.Scheduler.EnqueueNow(ctx, spec)
	}
	if serr != nil {
		slog.Error("schedule confirmation verify failed", "correspondence_id", c.ID, "err", serr)
	}
	return nil
}

// VerifyConfirmation patches the dialog of a confirmed correspondence until
// the dialog service reports it as confirmed.
func (s *CorrespondenceService) VerifyConfirmation(ctx context.Context, p jobs.ConfirmationPayload) error {
	c, err := s.Store.GetCorrespondence(ctx, p.CorrespondenceID)
	if err != nil {
		return err
	}
	if !c.HasReached(domain.StatusConfirmed) {
		return domain.Precondition(domain.ReasonInvalidPayload, "correspondence %s is not confirmed", c.ID)
	}
	ok, err := s.Dialogs.VerifyPatchedToConfirmed(ctx, c.ID)
	if err != nil || ok {
		return err
	}
	if _, err := s.Dialogs.PatchToConfirmed(ctx, c.ID); err != nil {
		return err
	}
	slog.Info("dialog confirm patch verified", "correspondence_id", c.ID, "party_id", p.PartyID)
	return nil
}

func (s *CorrespondenceService) Archive(ctx context.Context, id uuid.UUID, actor domain.Actor) error {
	c, err := s.visible(ctx, id)
	if err != nil {
		return err
	}
	if c.IsConfirmationNeeded && !c.HasReached(domain.StatusConfirmed) {
		return domain.Precondition(domain.ReasonArchiveBeforeConfirmed, "correspondence %s", id)
	}
	if c.HasReached(domain.StatusArchived) {
		return alreadyApplied(id, "already archived")
	}

	at := s.Now()
	if _, err := s.Ledger.RecordTransition(ctx, id, domain.StatusArchived, "", &actor, at); err != nil {
		return err
	}
	s.syncLegacy(ctx, c, &actor, at, legacy.SyncArchive)
	s.publish(ctx, events.CorrespondenceArchived, c, c.Sender)
	return nil
}

// Purge deletes the correspondence for the caller. Service owners may purge
// until publish; recipients once it is available to them.
func (s *CorrespondenceService) Purge(ctx context.Context, id uuid.UUID, actor domain.Actor) error {
	c, err := s.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return err
	}
	h, ok := c.HighestStatus()
	if !ok {
		return notFound(id)
	}
	if h.Status.IsPurged() {
		return alreadyApplied(id, "already purged")
	}

	isSender := actor.IsServiceOwner()
	status, actorType, actorName := domain.StatusDeletedByRecipient, dialog.ActorRecipient, "mottaker"
	if isSender {
		if !h.Status.IsPurgeableForSender() {
			return domain.Precondition(domain.ReasonPublishedNotPurgeable, "correspondence %s is %s", id, h.Status)
		}
		status, actorType, actorName = domain.StatusDeletedByAltinn, dialog.ActorServiceOwner, "avsender"
	} else {
		if !h.Status.IsAvailableForRecipient() {
			return notFound(id)
		}
		if c.IsConfirmationNeeded && !c.HasReached(domain.StatusConfirmed) {
			return domain.Precondition(domain.ReasonArchiveBeforeConfirmed, "correspondence %s", id)
		}
	}

	at := s.Now()
	if _, err := s.Ledger.RecordTransition(ctx, id, status, "", &actor, at); err != nil {
		return err
	}
	s.publish(ctx, events.CorrespondencePurged, c, c.Sender)
	s.syncLegacy(ctx, c, &actor, at, legacy.SyncDelete)

	args := jobs.MatchCorrespondence(id)
	for _, kind := range []jobs.Kind{jobs.KindNotificationDispatch, jobs.KindPublish, jobs.KindDueDate} {
		if _, err := s.Scheduler.CancelMatching(ctx, kind, args); err != nil {
			slog.Warn("cancel jobs failed", "correspondence_id", id, "kind", kind, "err", err)
		}
	}

	activityJob := s.enqueueActivity(ctx, c, dialog.ActivityPurged, actorType, at, actorName)
	if _, hasDialog := c.DialogID(); hasDialog {
		s.softDeleteAfter(ctx, id, activityJob)
	}
	slog.Info("correspondence purged", "correspondence_id", id, "by_sender", isSender)
	return nil
}

// softDeleteAfter soft deletes the dialog once the purged activity is on it,
// or right away when that activity could not be scheduled.
func (s *CorrespondenceService) softDeleteAfter(ctx context.Context, id uuid.UUID, parentJob string) {
	spec, err := jobs.NewSpec(jobs.KindDialogSoftDelete, jobs.CorrespondencePayload{CorrespondenceID: id})
	if err != nil {
		slog.Error("build job failed", "kind", jobs.KindDialogSoftDelete, "err", err)
		return
	}
	spec.DependsOn = parentJob
	if _, err := s.Scheduler.Schedule(ctx, spec); err != nil {
		slog.Error("schedule dialog soft delete failed", "correspondence_id", id, "err", err)
	}
}
