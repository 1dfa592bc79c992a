package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/dialog"
	"correspondence/internal/domain"
	"correspondence/internal/events"
	"correspondence/internal/jobs"
	"correspondence/internal/providers/legacy"
	"correspondence/internal/providers/register"
	"correspondence/internal/util"
)

type Store interface {
	GetCorrespondence(ctx context.Context, id uuid.UUID) (domain.Correspondence, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Ledger interface {
	RecordTransition(ctx context.Context, id uuid.UUID, status domain.Status, text string, actor *domain.Actor, at time.Time) (int64, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, spec jobs.Spec) (string, error)
	ScheduleAt(ctx context.Context, at time.Time, spec jobs.Spec) (string, error)
	EnqueueNow(ctx context.Context, spec jobs.Spec) (string, error)
	Delete(ctx context.Context, id string) (bool, error)
	ContinueWith(ctx context.Context, parentID string, spec jobs.Spec, onlyOnSuccess bool) (string, error)
	CancelMatching(ctx context.Context, kind jobs.Kind, args json.RawMessage) (int, error)
}

type Locker interface {
	ExecuteWithConditionalLock(ctx context.Context, key string,
		shouldSkip func(ctx context.Context) (bool, error),
		action func(ctx context.Context) error) (wasSkipped, lockAcquired bool, err error)
}

type Parties interface {
	LookUpParty(ctx context.Context, identifier string) (register.Party, error)
}

type Dialogs interface {
	PatchToConfirmed(ctx context.Context, id uuid.UUID) (bool, error)
	VerifyPatchedToConfirmed(ctx context.Context, id uuid.UUID) (bool, error)
}

type Legacy interface {
	SyncEvent(ctx context.Context, legacyID int64, partyID int, at time.Time, ev legacy.SyncEventType) error
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

type Options struct {
	// Budget for the synchronous dialog patch on confirm before falling back
	// to the verify job.
	ConfirmTimeout time.Duration
}

// CorrespondenceService runs the lifecycle operations: initialization,
// publishing and the recipient and sender actions.
type CorrespondenceService struct {
	Store     Store
	Ledger    Ledger
	Scheduler Scheduler
	Locks     Locker
	Parties   Parties
	Dialogs   Dialogs
	Legacy    Legacy
	Events    Publisher
	Opts      Options
	Now       func() time.Time
}

type Deps struct {
	Store     Store
	Ledger    Ledger
	Scheduler Scheduler
	Locks     Locker
	Parties   Parties
	Dialogs   Dialogs
	Legacy    Legacy
	Events    Publisher
}

func New(d Deps, opts Options) *CorrespondenceService {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 10 * time.Second
	}
	return &CorrespondenceService{
		Store:     d.Store,
		Ledger:    d.Ledger,
		Scheduler: d.Scheduler,
		Locks:     d.Locks,
		Parties:   d.Parties,
		Dialogs:   d.Dialogs,
		Legacy:    d.Legacy,
		Events:    d.Events,
		Opts:      opts,
		Now:       util.NowUTC,
	}
}

func (s *CorrespondenceService) publish(ctx context.Context, typ events.Type, c domain.Correspondence, recipient string) {
	s.Events.Publish(ctx, events.Event{
		Type:        typ,
		ResourceID:  c.ResourceID,
		ItemID:      c.ID.String(),
		Source:      "correspondence",
		RecipientID: recipient,
	})
}

// enqueue schedules a follow-up job. Follow-ups run after the status change
// is committed, so a failure here is logged rather than undoing the change.
func (s *CorrespondenceService) enqueue(ctx context.Context, kind jobs.Kind, payload any) string {
	spec, err := jobs.NewSpec(kind, payload)
	if err != nil {
		slog.Error("build job failed", "kind", kind, "err", err)
		return ""
	}
	id, err := s.Scheduler.EnqueueNow(ctx, spec)
	if err != nil {
		slog.Error("enqueue job failed", "kind", kind, "err", err)
		return ""
	}
	return id
}

func (s *CorrespondenceService) enqueueActivity(ctx context.Context, c domain.Correspondence, kind dialog.ActivityKind, actor dialog.ActorType, at time.Time, tokens ...string) string {
	return s.enqueue(ctx, jobs.KindDialogActivity, jobs.ActivityPayload{
		CorrespondenceID: c.ID,
		Activity:         string(kind),
		Actor:            string(actor),
		At:               at,
		Tokens:           tokens,
	})
}

// syncLegacy mirrors an action into the legacy platform for migrated
// correspondences. Others are left alone.
func (s *CorrespondenceService) syncLegacy(ctx context.Context, c domain.Correspondence, actor *domain.Actor, at time.Time, ev legacy.SyncEventType) {
	if !c.IsMigrated() {
		return
	}
	partyID := 0
	if actor != nil {
		partyID = actor.PartyID
	}
	s.enqueue(ctx, jobs.KindLegacySync, jobs.LegacySyncPayload{
		CorrespondenceID: c.ID,
		LegacyID:         *c.Altinn2CorrespondenceID,
		PartyID:          partyID,
		At:               at,
		EventType:        string(ev),
	})
}

// visible loads a correspondence the recipient may act on. Purged and
// unpublished correspondences do not exist from the recipient's side.
func (s *CorrespondenceService) visible(ctx context.Context, id uuid.UUID) (domain.Correspondence, error) {
	c, err := s.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return domain.Correspondence{}, err
	}
	highest, ok := c.HighestStatus()
	if !ok || !highest.Status.IsAvailableForRecipient() {
		return domain.Correspondence{}, notFound(id)
	}
	return c, nil
}

func (s *CorrespondenceService) Register(r *jobs.Runner) {
	r.Register(jobs.KindPublish, s.handlePublish)
	r.Register(jobs.KindDueDate, s.handleDueDate)
	r.Register(jobs.KindVerifyConfirmation, s.handleVerifyConfirmation)
	r.Register(jobs.KindLegacySync, s.handleLegacySync)
}
