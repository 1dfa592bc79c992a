package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/events"
	"correspondence/internal/jobs"
	"correspondence/internal/ledger"
	"correspondence/internal/providers/legacy"
	"correspondence/internal/providers/register"
	"correspondence/internal/store"
)

var t0 = time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)

type memStore struct {
	byID   map[uuid.UUID]*domain.Correspondence
	nextID int64
}

func (m *memStore) GetCorrespondence(_ context.Context, id uuid.UUID) (domain.Correspondence, error) {
	c, ok := m.byID[id]
	if !ok {
		return domain.Correspondence{}, fmt.Errorf("correspondence %s: %w", id, domain.ErrNotFound)
	}
	cp := *c
	cp.Statuses = append([]domain.StatusTransition(nil), c.Statuses...)
	return cp, nil
}

func (m *memStore) MarkPublished(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *memStore) CorrespondenceExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.byID[id]
	return ok, nil
}

func (m *memStore) ListTransitions(_ context.Context, id uuid.UUID) ([]domain.StatusTransition, error) {
	return append([]domain.StatusTransition(nil), m.byID[id].Statuses...), nil
}

func (m *memStore) InsertTransition(_ context.Context, in store.TransitionInsert) (int64, error) {
	m.nextID++
	c := m.byID[in.CorrespondenceID]
	c.Statuses = append(c.Statuses, domain.StatusTransition{
		ID: m.nextID, Status: in.Status, Text: in.Text, ChangedAt: in.ChangedAt, PartyUUID: in.PartyUUID,
	})
	return m.nextID, nil
}

func (m *memStore) statuses(id uuid.UUID) []domain.Status {
	var out []domain.Status
	for _, st := range m.byID[id].Statuses {
		out = append(out, st.Status)
	}
	return out
}

// inlineLock runs the action in-process with the same skip checks as the
// redis coordinator.
type inlineLock struct{ busy bool }

func (l *inlineLock) ExecuteWithConditionalLock(ctx context.Context, _ string,
	shouldSkip func(context.Context) (bool, error), action func(context.Context) error) (bool, bool, error) {
	if skip, err := shouldSkip(ctx); err != nil || skip {
		return skip, false, err
	}
	if l.busy {
		return false, false, nil
	}
	if skip, err := shouldSkip(ctx); err != nil || skip {
		return skip, true, err
	}
	return false, true, action(ctx)
}

type job struct {
	id     string
	spec   jobs.Spec
	at     time.Time
	parent string
}

type fakeScheduler struct {
	jobs      []job
	deleted   []string
	cancelled []jobs.Kind
}

func (f *fakeScheduler) add(spec jobs.Spec, at time.Time, parent string) string {
	id := fmt.Sprintf("job_%d", len(f.jobs)+1)
	f.jobs = append(f.jobs, job{id: id, spec: spec, at: at, parent: parent})
	return id
}

func (f *fakeScheduler) Schedule(_ context.Context, spec jobs.Spec) (string, error) {
	return f.add(spec, spec.RunAt, spec.DependsOn), nil
}

func (f *fakeScheduler) ScheduleAt(_ context.Context, at time.Time, spec jobs.Spec) (string, error) {
	return f.add(spec, at, ""), nil
}

func (f *fakeScheduler) EnqueueNow(_ context.Context, spec jobs.Spec) (string, error) {
	return f.add(spec, time.Time{}, ""), nil
}

func (f *fakeScheduler) Delete(_ context.Context, id string) (bool, error) {
	f.deleted = append(f.deleted, id)
	return true, nil
}

func (f *fakeScheduler) ContinueWith(_ context.Context, parent string, spec jobs.Spec, _ bool) (string, error) {
	return f.add(spec, time.Time{}, parent), nil
}

func (f *fakeScheduler) CancelMatching(_ context.Context, kind jobs.Kind, _ json.RawMessage) (int, error) {
	f.cancelled = append(f.cancelled, kind)
	return 0, nil
}

func (f *fakeScheduler) ofKind(kind jobs.Kind) []job {
	var out []job
	for _, j := range f.jobs {
		if j.spec.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

type fakeParties map[string]register.Party

func (f fakeParties) LookUpParty(_ context.Context, id string) (register.Party, error) {
	p, ok := f[id]
	if !ok {
		return register.Party{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeDialogs struct {
	patchErr  error
	patched   int
	confirmed bool
}

func (f *fakeDialogs) PatchToConfirmed(context.Context, uuid.UUID) (bool, error) {
	if f.patchErr != nil {
		return false, f.patchErr
	}
	f.patched++
	f.confirmed = true
	return true, nil
}

func (f *fakeDialogs) VerifyPatchedToConfirmed(context.Context, uuid.UUID) (bool, error) {
	return f.confirmed, nil
}

type legacyCall struct {
	legacyID int64
	ev       legacy.SyncEventType
}

type fakeLegacy struct{ calls []legacyCall }

func (f *fakeLegacy) SyncEvent(_ context.Context, legacyID int64, _ int, _ time.Time, ev legacy.SyncEventType) error {
	f.calls = append(f.calls, legacyCall{legacyID, ev})
	return nil
}

type fakePublisher struct{ events []events.Event }

func (f *fakePublisher) Publish(_ context.Context, ev events.Event) { f.events = append(f.events, ev) }

func (f *fakePublisher) count(t events.Type) int {
	n := 0
	for _, e := range f.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

const (
	senderOrg    = "974761076"
	recipientOrg = "310000001"
)

type harness struct {
	svc     *CorrespondenceService
	store   *memStore
	sched   *fakeScheduler
	dialogs *fakeDialogs
	legacy  *fakeLegacy
	events  *fakePublisher
	lock    *inlineLock
	id      uuid.UUID
}

func newHarness(statuses ...domain.Status) *harness {
	c := &domain.Correspondence{
		ID:                 uuid.New(),
		ResourceID:         "skd-melding",
		Sender:             "urn:altinn:organization:identifier-no:" + senderOrg,
		Recipient:          "urn:altinn:organization:identifier-no:" + recipientOrg,
		VisibleFrom:        t0.Add(-time.Hour),
		ExternalReferences: []domain.ExternalReference{{Type: domain.ReferenceDialogportenDialogID, Value: "dlg-1"}},
	}
	for i, st := range statuses {
		c.Statuses = append(c.Statuses, domain.StatusTransition{ID: int64(i + 1), Status: st, ChangedAt: t0.Add(time.Duration(i-len(statuses)) * time.Minute)})
	}
	h := &harness{
		store:   &memStore{byID: map[uuid.UUID]*domain.Correspondence{c.ID: c}, nextID: int64(len(statuses))},
		sched:   &fakeScheduler{},
		dialogs: &fakeDialogs{},
		legacy:  &fakeLegacy{},
		events:  &fakePublisher{},
		lock:    &inlineLock{},
		id:      c.ID,
	}
	h.svc = New(Deps{
		Store:     h.store,
		Ledger:    ledger.New(h.store),
		Scheduler: h.sched,
		Locks:     h.lock,
		Parties: fakeParties{
			senderOrg:    {PartyID: 1, PartyUUID: uuid.New(), Name: "Skatteetaten"},
			recipientOrg: {PartyID: 2, PartyUUID: uuid.New(), Name: "Testbedrift AS"},
		},
		Dialogs: h.dialogs,
		Legacy:  h.legacy,
		Events:  h.events,
	}, Options{ConfirmTimeout: time.Second})
	h.svc.Now = func() time.Time { return t0 }
	return h
}

func (h *harness) corr() *domain.Correspondence { return h.store.byID[h.id] }

var (
	recipient = domain.Actor{PartyID: 2, PartyUUID: uuid.New(), Scopes: []string{domain.ScopeRecipient}}
	owner     = domain.Actor{PartyID: 1, PartyUUID: uuid.New(), Scopes: []string{domain.ScopeServiceOwner}}
)
