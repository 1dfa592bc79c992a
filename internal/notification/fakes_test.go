package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/events"
	"correspondence/internal/jobs"
	"correspondence/internal/providers/notifications"
	"correspondence/internal/store"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type memStore struct {
	corr       domain.Correspondence
	templates  []store.TemplateContent
	records    map[uuid.UUID]domain.NotificationRecord
	dispatched map[uuid.UUID]bool
	// lose the next conditional update to a concurrent checker
	loseNextSent bool
}

func newMemStore(c domain.Correspondence) *memStore {
	return &memStore{
		corr: c,
		templates: []store.TemplateContent{{
			Template:             "GenericAltinnMessage",
			Language:             "nb",
			EmailSubject:         "Melding fra $sendersName$",
			EmailBody:            "{textToken}Logg inn for å lese.",
			SmsBody:              "Ny melding fra $sendersName$",
			ReminderEmailSubject: "Påminnelse",
			ReminderEmailBody:    "Du har en ulest melding.",
			ReminderSmsBody:      "Påminnelse om ulest melding",
		}},
		records:    map[uuid.UUID]domain.NotificationRecord{},
		dispatched: map[uuid.UUID]bool{},
	}
}

func (s *memStore) GetCorrespondence(_ context.Context, id uuid.UUID) (domain.Correspondence, error) {
	if id != s.corr.ID {
		return domain.Correspondence{}, domain.ErrNotFound
	}
	c := s.corr
	c.Notifications = nil
	for _, r := range s.records {
		c.Notifications = append(c.Notifications, r)
	}
	c.NotificationRequests = nil
	for _, nr := range s.corr.NotificationRequests {
		nr.Dispatched = s.dispatched[nr.ID]
		c.NotificationRequests = append(c.NotificationRequests, nr)
	}
	return c, nil
}

func (s *memStore) GetTemplates(_ context.Context, template, language string) ([]store.TemplateContent, error) {
	var out []store.TemplateContent
	for _, t := range s.templates {
		if t.Template == template && t.Language == language {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) InsertNotification(_ context.Context, n domain.NotificationRecord) error {
	if _, ok := s.records[n.ID]; !ok {
		s.records[n.ID] = n
	}
	return nil
}

func (s *memStore) MarkNotificationRequestDispatched(_ context.Context, id uuid.UUID) error {
	s.dispatched[id] = true
	return nil
}

func (s *memStore) GetNotification(_ context.Context, id uuid.UUID) (domain.NotificationRecord, error) {
	n, ok := s.records[id]
	if !ok {
		return domain.NotificationRecord{}, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return n, nil
}

func (s *memStore) SetNotificationSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if s.loseNextSent {
		s.loseNextSent = false
		return false, nil
	}
	n := s.records[id]
	if n.NotificationSent != nil {
		return false, nil
	}
	n.NotificationSent = &at
	s.records[id] = n
	return true, nil
}

type fakeClient struct {
	orders   []notifications.OrderRequest
	failWhen func(notifications.OrderRequest) bool
	status   notifications.ShipmentStatus
	polls    int
}

func (f *fakeClient) CreateOrder(_ context.Context, req notifications.OrderRequest) (notifications.OrderResponse, error) {
	if f.failWhen != nil && f.failWhen(req) {
		return notifications.OrderResponse{}, errors.New("notifications: 503")
	}
	f.orders = append(f.orders, req)
	n := len(f.orders)
	return notifications.OrderResponse{OrderID: fmt.Sprintf("order-%d", n), ShipmentID: fmt.Sprintf("shipment-%d", n)}, nil
}

func (f *fakeClient) GetDeliveryStatus(_ context.Context, id string) (notifications.ShipmentStatus, error) {
	f.polls++
	st := f.status
	st.ShipmentID = id
	return st, nil
}

type fakeNames map[string]string

func (f fakeNames) LookUpName(_ context.Context, id string) (string, error) {
	if n, ok := f[id]; ok {
		return n, nil
	}
	return "", domain.ErrNotFound
}

type scheduled struct {
	at   time.Time
	spec jobs.Spec
}

type fakeScheduler struct {
	at  []scheduled
	now []jobs.Spec
	// fail this many ScheduleAt calls before accepting
	failAt int
}

func (f *fakeScheduler) ScheduleAt(_ context.Context, at time.Time, spec jobs.Spec) (string, error) {
	if f.failAt > 0 {
		f.failAt--
		return "", errors.New("db down")
	}
	f.at = append(f.at, scheduled{at: at, spec: spec})
	return fmt.Sprintf("job_%d", len(f.at)), nil
}

func (f *fakeScheduler) EnqueueNow(_ context.Context, spec jobs.Spec) (string, error) {
	f.now = append(f.now, spec)
	return fmt.Sprintf("job_now_%d", len(f.now)), nil
}

type fakePublisher struct{ events []events.Event }

func (f *fakePublisher) Publish(_ context.Context, ev events.Event) { f.events = append(f.events, ev) }

type harness struct {
	o      *Orchestrator
	store  *memStore
	client *fakeClient
	sched  *fakeScheduler
	pub    *fakePublisher
}

func newHarness(reminder bool) *harness {
	c := domain.Correspondence{
		ID:          uuid.New(),
		ResourceID:  "skd-melding",
		Sender:      "urn:altinn:organization:identifier-no:974761076",
		Recipient:   "urn:altinn:organization:identifier-no:310000001",
		Content:     domain.Content{Language: "nb", Title: "Skattemelding"},
		VisibleFrom: t0.Add(-time.Hour),
		NotificationRequests: []domain.NotificationRequest{{
			ID:           uuid.New(),
			Template:     "GenericAltinnMessage",
			Channel:      domain.ChannelEmail,
			EmailBody:    "Hei.",
			SendReminder: reminder,
		}},
	}
	h := &harness{
		store:  newMemStore(c),
		client: &fakeClient{},
		sched:  &fakeScheduler{},
		pub:    &fakePublisher{},
	}
	h.o = New(h.store, h.client, fakeNames{"974761076": "Skatteetaten"}, h.sched, h.pub, Options{
		SendDelay:          5 * time.Minute,
		ReminderDelay:      7 * 24 * time.Hour,
		DeliveryCheckDelay: 10 * time.Minute,
		ConditionBaseURL:   "https://platform.example.no/",
	})
	h.o.Now = func() time.Time { return t0 }
	return h
}

func (h *harness) id() uuid.UUID { return h.store.corr.ID }
