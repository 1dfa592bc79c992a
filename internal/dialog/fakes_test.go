package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/providers/dialogporten"
)

type memStore struct {
	byID map[uuid.UUID]domain.Correspondence
}

func newMemStore(cs ...domain.Correspondence) *memStore {
	s := &memStore{byID: map[uuid.UUID]domain.Correspondence{}}
	for _, c := range cs {
		s.byID[c.ID] = c
	}
	return s
}

func (s *memStore) GetCorrespondence(_ context.Context, id uuid.UUID) (domain.Correspondence, error) {
	c, ok := s.byID[id]
	if !ok {
		return domain.Correspondence{}, fmt.Errorf("correspondence %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *memStore) DialogReference(ctx context.Context, id uuid.UUID) (string, bool, error) {
	c, err := s.GetCorrespondence(ctx, id)
	if err != nil {
		return "", false, err
	}
	dlg, _ := c.DialogID()
	return dlg, c.IsMigrated(), nil
}

func (s *memStore) AddExternalReference(_ context.Context, id uuid.UUID, ref domain.ExternalReference) error {
	c := s.byID[id]
	c.ExternalReferences = append(c.ExternalReferences, ref)
	s.byID[id] = c
	return nil
}

type memKeys struct {
	mu   sync.Mutex
	keys map[string]uuid.UUID
}

func newMemKeys() *memKeys { return &memKeys{keys: map[string]uuid.UUID{}} }

func (k *memKeys) TryClaim(_ context.Context, corr uuid.UUID, att *uuid.UUID, action domain.Action) (bool, uuid.UUID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key := corr.String() + "|" + string(action)
	if att != nil {
		key += "|" + att.String()
	}
	if id, ok := k.keys[key]; ok {
		return false, id, nil
	}
	id := uuid.New()
	k.keys[key] = id
	return true, id, nil
}

func (k *memKeys) ReleaseClaim(_ context.Context, keyID uuid.UUID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, id := range k.keys {
		if id == keyID {
			delete(k.keys, key)
		}
	}
	return nil
}

type fakeClient struct {
	dialogs     map[string]*dialogporten.Dialog
	created     []dialogporten.CreateRequest
	activities  []dialogporten.Activity
	patched     int
	softDeletes int
	failNext    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{dialogs: map[string]*dialogporten.Dialog{}}
}

func (f *fakeClient) take() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeClient) Create(_ context.Context, req dialogporten.CreateRequest) (string, error) {
	if err := f.take(); err != nil {
		return "", err
	}
	f.created = append(f.created, req)
	f.dialogs[req.ID] = &dialogporten.Dialog{ID: req.ID, Summary: req.Summary, ExpiresAt: req.ExpiresAt}
	return req.ID, nil
}

func (f *fakeClient) Get(_ context.Context, id string) (dialogporten.Dialog, error) {
	d, ok := f.dialogs[id]
	if !ok {
		return dialogporten.Dialog{}, fmt.Errorf("dialog %s: %w", id, domain.ErrNotFound)
	}
	return *d, nil
}

func (f *fakeClient) PatchConfirmed(_ context.Context, id string) error {
	if err := f.take(); err != nil {
		return err
	}
	f.patched++
	f.dialogs[id].Confirmed = true
	return nil
}

func (f *fakeClient) SoftDelete(_ context.Context, id string) (bool, error) {
	d := f.dialogs[id]
	if d.Deleted {
		return false, nil
	}
	f.softDeletes++
	d.Deleted = true
	return true, nil
}

func (f *fakeClient) Restore(_ context.Context, id string) (bool, error) {
	d := f.dialogs[id]
	if !d.Deleted {
		return false, nil
	}
	d.Deleted = false
	return true, nil
}

func (f *fakeClient) CreateActivity(_ context.Context, _ string, a dialogporten.Activity) (bool, error) {
	if err := f.take(); err != nil {
		return false, err
	}
	for _, got := range f.activities {
		if got.ID == a.ID {
			return false, nil
		}
	}
	f.activities = append(f.activities, a)
	return true, nil
}

func (f *fakeClient) RemoveExpiresAt(_ context.Context, id string) error {
	f.dialogs[id].ExpiresAt = nil
	return nil
}

func (f *fakeClient) SetSummary(_ context.Context, id, summary string) error {
	f.dialogs[id].Summary = summary
	return nil
}

var errUpstream = errors.New("upstream 502")

func testCorrespondence(withDialog string) domain.Correspondence {
	c := domain.Correspondence{
		ID:          uuid.New(),
		ResourceID:  "test-resource",
		Sender:      "urn:altinn:organization:identifier-no:991825827",
		Recipient:   "urn:altinn:person:identifier-no:01017012345",
		Content:     domain.Content{Language: "nb", Title: "Tittel", Summary: "**Viktig** melding"},
		VisibleFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if withDialog != "" {
		c.ExternalReferences = []domain.ExternalReference{{Type: domain.ReferenceDialogportenDialogID, Value: withDialog}}
	}
	return c
}
