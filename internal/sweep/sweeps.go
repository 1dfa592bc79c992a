package sweep

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"correspondence/internal/dialog"
	"correspondence/internal/domain"
	"correspondence/internal/jobs"
	"correspondence/internal/store"
)

type Kind string

const (
	ConfirmedMigratedCleanup Kind = "confirmed-migrated-cleanup"
	MarkdownSummary          Kind = "markdown-summary"
	OrphanedDialogs          Kind = "orphaned-dialogs"
	PerishingDialogs         Kind = "perishing-dialogs"
	RestoreSoftDeleted       Kind = "restore-soft-deleted"
)

const (
	DefaultWindowSize         = 1000
	DefaultMarkdownWindowSize = 10000
	MinWindowSize             = 100
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case ConfirmedMigratedCleanup, MarkdownSummary, OrphanedDialogs, PerishingDialogs, RestoreSoftDeleted:
		return k, true
	}
	return "", false
}

type WindowSource interface {
	GetWindow(ctx context.Context, size int, after store.Cursor, filter store.WindowFilter) ([]store.WindowRow, error)
}

type Dialogs interface {
	PatchToConfirmed(ctx context.Context, id uuid.UUID) (bool, error)
	SoftDeleteDialog(ctx context.Context, id uuid.UUID) (bool, error)
	TryRestoreSoftDeletedDialog(ctx context.Context, id uuid.UUID) (bool, error)
	TryRemoveDialogExpiresAt(ctx context.Context, id uuid.UUID) (bool, error)
	TryRemoveMarkdownAndHtmlFromSummary(ctx context.Context, id uuid.UUID) (bool, error)
}

type Scheduler interface {
	EnqueueNow(ctx context.Context, spec jobs.Spec) (string, error)
}

type Sweeper struct {
	Store     WindowSource
	Dialogs   Dialogs
	Scheduler Scheduler
}

func New(st WindowSource, d Dialogs, sch Scheduler) *Sweeper {
	return &Sweeper{Store: st, Dialogs: d, Scheduler: sch}
}

type definition struct {
	filter  store.WindowFilter
	selects func(store.WindowRow) bool
	apply   func(ctx context.Context, id uuid.UUID) (bool, error)
}

func (s *Sweeper) definition(kind Kind) (definition, bool) {
	withDialog := store.WindowFilter{WithDialog: true}
	switch kind {
	case ConfirmedMigratedCleanup:
		return definition{
			filter:  store.WindowFilter{MigratedOnly: true, WithDialog: true},
			selects: func(r store.WindowRow) bool { return r.Confirmed },
			apply:   s.Dialogs.PatchToConfirmed,
		}, true
	case MarkdownSummary:
		return definition{
			filter:  withDialog,
			selects: func(r store.WindowRow) bool { return dialog.HasMarkdownOrHTML(r.Summary) },
			apply:   s.Dialogs.TryRemoveMarkdownAndHtmlFromSummary,
		}, true
	case OrphanedDialogs:
		return definition{
			filter:  withDialog,
			selects: func(r store.WindowRow) bool { return r.HasHighestStatus && r.HighestStatus.IsPurged() },
			apply:   s.Dialogs.SoftDeleteDialog,
		}, true
	case PerishingDialogs:
		return definition{
			filter:  withDialog,
			selects: func(r store.WindowRow) bool { return r.AllowSystemDeleteAfter != nil },
			apply:   s.Dialogs.TryRemoveDialogExpiresAt,
		}, true
	case RestoreSoftDeleted:
		return definition{
			filter:  withDialog,
			selects: func(r store.WindowRow) bool { return r.HasHighestStatus && !r.HighestStatus.IsPurged() },
			apply:   s.Dialogs.TryRestoreSoftDeletedDialog,
		}, true
	}
	return definition{}, false
}

// Run executes one sweep synchronously.
func (s *Sweeper) Run(ctx context.Context, kind Kind, windowSize int, dryRun bool) (Summary, error) {
	def, ok := s.definition(kind)
	if !ok {
		return Summary{}, fmt.Errorf("sweep %q: %w", kind, domain.ErrNotFound)
	}
	if windowSize == 0 {
		windowSize = defaultWindow(kind)
	}
	p := &Processor[store.WindowRow]{
		Name:       string(kind),
		WindowSize: windowSize,
		DryRun:     dryRun,
		Source: func(ctx context.Context, size int, after Cursor) ([]store.WindowRow, error) {
			return s.Store.GetWindow(ctx, size, after, def.filter)
		},
		Key:    func(r store.WindowRow) Cursor { return Cursor{LastCreated: r.Created, LastID: r.ID} },
		Select: def.selects,
		Handle: func(ctx context.Context, r store.WindowRow) (Outcome, error) {
			changed, err := def.apply(ctx, r.ID)
			if err != nil {
				return AlreadyOK, err
			}
			if changed {
				return Changed, nil
			}
			return AlreadyOK, nil
		},
	}
	return p.Run(ctx)
}

func defaultWindow(kind Kind) int {
	if kind == MarkdownSummary {
		return DefaultMarkdownWindowSize
	}
	return DefaultWindowSize
}

// RunSweep validates the request and queues the sweep as a background job.
func (s *Sweeper) RunSweep(ctx context.Context, kind Kind, windowSize int, dryRun bool) (string, error) {
	if _, ok := s.definition(kind); !ok {
		return "", fmt.Errorf("sweep %q: %w", kind, domain.ErrNotFound)
	}
	if windowSize < 0 || (windowSize > 0 && windowSize < MinWindowSize) {
		return "", domain.Precondition(domain.ReasonInvalidWindowSize, "window size must be at least %d", MinWindowSize)
	}
	spec, err := jobs.NewSpec(jobs.KindSweep, jobs.SweepPayload{Sweep: string(kind), WindowSize: windowSize, DryRun: dryRun})
	if err != nil {
		return "", err
	}
	return s.Scheduler.EnqueueNow(ctx, spec)
}

// HandleSweep is the sweep.run job.
func (s *Sweeper) HandleSweep(ctx context.Context, payload json.RawMessage) error {
	var p jobs.SweepPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	kind, ok := ParseKind(p.Sweep)
	if !ok {
		return domain.Precondition(domain.ReasonInvalidPayload, "unknown sweep %q", p.Sweep)
	}
	_, err := s.Run(ctx, kind, p.WindowSize, p.DryRun)
	return err
}

func (s *Sweeper) Register(r *jobs.Runner) {
	r.Register(jobs.KindSweep, s.HandleSweep)
}
