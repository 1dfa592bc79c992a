package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/events"
	"correspondence/internal/jobs"
	"correspondence/internal/observability"
	"correspondence/internal/providers/notifications"
	"correspondence/internal/store"
	"correspondence/internal/util"
)

type Store interface {
	GetCorrespondence(ctx context.Context, id uuid.UUID) (domain.Correspondence, error)
	GetTemplates(ctx context.Context, template, language string) ([]store.TemplateContent, error)
	InsertNotification(ctx context.Context, n domain.NotificationRecord) error
	MarkNotificationRequestDispatched(ctx context.Context, requestID uuid.UUID) error
	GetNotification(ctx context.Context, id uuid.UUID) (domain.NotificationRecord, error)
	SetNotificationSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
}

type Client interface {
	CreateOrder(ctx context.Context, req notifications.OrderRequest) (notifications.OrderResponse, error)
	GetDeliveryStatus(ctx context.Context, shipmentID string) (notifications.ShipmentStatus, error)
}

type NameResolver interface {
	LookUpName(ctx context.Context, identifier string) (string, error)
}

type Scheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, spec jobs.Spec) (string, error)
	EnqueueNow(ctx context.Context, spec jobs.Spec) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

type Options struct {
	SendDelay          time.Duration
	ReminderDelay      time.Duration
	DeliveryCheckDelay time.Duration
	// Give up polling delivery status this long after the requested send time.
	DeliveryCheckWindow time.Duration
	// Base url the notification service calls back to before sending a
	// reminder. Empty disables the condition.
	ConditionBaseURL string
	DefaultLanguage  string
}

type Orchestrator struct {
	Store     Store
	Client    Client
	Names     NameResolver
	Scheduler Scheduler
	Events    Publisher
	Opts      Options
	Now       func() time.Time
}

func New(st Store, c Client, names NameResolver, sch Scheduler, pub Publisher, opts Options) *Orchestrator {
	if opts.SendDelay <= 0 {
		opts.SendDelay = 5 * time.Minute
	}
	if opts.ReminderDelay <= 0 {
		opts.ReminderDelay = time.Hour
	}
	if opts.DeliveryCheckDelay <= 0 {
		opts.DeliveryCheckDelay = 5 * time.Minute
	}
	if opts.DeliveryCheckWindow <= 0 {
		opts.DeliveryCheckWindow = 24 * time.Hour
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "nb"
	}
	return &Orchestrator{Store: st, Client: c, Names: names, Scheduler: sch, Events: pub, Opts: opts, Now: util.NowUTC}
}

type DispatchResult struct {
	Submitted []uuid.UUID
	// already submitted by an earlier attempt
	Skipped int
}

// order is one primary or reminder order built from a request.
type order struct {
	recordID uuid.UUID
	request  domain.NotificationRequest
	reminder bool
	req      notifications.OrderRequest
}

// Dispatch submits the pending notification requests of a correspondence.
// Orders carry deterministic ids, so a retried dispatch skips what already
// went through and the notification service deduplicates the rest.
func (o *Orchestrator) Dispatch(ctx context.Context, id uuid.UUID) (DispatchResult, error) {
	c, err := o.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return DispatchResult{}, err
	}

	existing := make(map[uuid.UUID]bool, len(c.Notifications))
	for _, n := range c.Notifications {
		existing[n.ID] = true
	}

	var (
		res  DispatchResult
		errs []error
	)
	for _, nr := range c.NotificationRequests {
		if nr.Dispatched {
			continue
		}
		orders, err := o.buildOrders(ctx, c, nr)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		failed := false
		for _, ord := range orders {
			if existing[ord.recordID] {
				res.Skipped++
				continue
			}
			if err := o.submit(ctx, c, ord); err != nil {
				slog.Error("notification order failed", "correspondence_id", id, "reminder", ord.reminder, "err", err)
				errs = append(errs, err)
				failed = true
				continue
			}
			res.Submitted = append(res.Submitted, ord.recordID)
		}
		if !failed {
			if err := o.Store.MarkNotificationRequestDispatched(ctx, nr.ID); err != nil {
				return res, err
			}
		}
	}

	if len(errs) > 0 {
		o.Events.Publish(ctx, events.Event{
			Type:        events.NotificationCreationFailed,
			ResourceID:  c.ResourceID,
			ItemID:      c.ID.String(),
			Source:      "correspondence",
			RecipientID: c.Sender,
		})
		return res, domain.Transient("create notification orders", errors.Join(errs...))
	}
	return res, nil
}

func (o *Orchestrator) submit(ctx context.Context, c domain.Correspondence, ord order) error {
	kind := "primary"
	if ord.reminder {
		kind = "reminder"
	}
	resp, err := o.Client.CreateOrder(ctx, ord.req)
	if err != nil {
		observability.NotificationOrders.WithLabelValues(kind, "error").Inc()
		return err
	}
	observability.NotificationOrders.WithLabelValues(kind, "ok").Inc()

	original, _ := json.Marshal(ord.req)
	rec := domain.NotificationRecord{
		ID:                ord.recordID,
		CorrespondenceID:  c.ID,
		Template:          ord.request.Template,
		Channel:           ord.request.Channel,
		OrderID:           resp.OrderID,
		ShipmentID:        resp.ShipmentID,
		RequestedSendTime: ord.req.RequestedSendTime,
		IsReminder:        ord.reminder,
		OriginalRequest:   original,
		Created:           o.Now(),
	}
	// The check goes in before the record: a dispatch retry skips orders
	// that already have a record, so the record must not exist without one.
	spec, err := jobs.NewSpec(jobs.KindDeliveryCheck, jobs.DeliveryCheckPayload{NotificationID: rec.ID})
	if err != nil {
		return err
	}
	if _, err := o.Scheduler.ScheduleAt(ctx, rec.RequestedSendTime.Add(o.Opts.DeliveryCheckDelay), spec); err != nil {
		return fmt.Errorf("schedule delivery check %s: %w", rec.ID, err)
	}
	if err := o.Store.InsertNotification(ctx, rec); err != nil {
		return fmt.Errorf("persist notification %s: %w", rec.ID, err)
	}
	return nil
}

func (o *Orchestrator) buildOrders(ctx context.Context, c domain.Correspondence, nr domain.NotificationRequest) ([]order, error) {
	content, err := o.content(ctx, c, nr)
	if err != nil {
		return nil, err
	}

	recipient, key := recipientOf(c.Recipient)
	if key == "" {
		return nil, fmt.Errorf("recipient %q is neither organization nor person", c.Recipient)
	}

	sendAt := o.Now()
	if c.VisibleFrom.After(sendAt) {
		sendAt = c.VisibleFrom
	}
	sendAt = sendAt.Add(o.Opts.SendDelay)

	primary := order{
		recordID: uuid.NewSHA1(c.ID, []byte(nr.ID.String()+"/"+key)),
		request:  nr,
		req: notifications.OrderRequest{
			SendersReference:  c.SendersReference,
			RequestedSendTime: sendAt,
			ResourceID:        c.ResourceID,
			Channel:           string(nr.Channel),
			Recipient:         recipient,
			IgnoreReservation: c.IgnoreReservation,
			EmailSubject:      content.EmailSubject,
			EmailBody:         content.EmailBody,
			SmsBody:           content.SmsBody,
		},
	}
	primary.req.IdempotencyID = primary.recordID.String()
	out := []order{primary}

	if nr.SendReminder {
		reminder := order{
			recordID: uuid.NewSHA1(c.ID, []byte(nr.ID.String()+"/reminder/"+key)),
			request:  nr,
			reminder: true,
			req:      primary.req,
		}
		reminder.req.IdempotencyID = reminder.recordID.String()
		reminder.req.RequestedSendTime = sendAt.Add(o.Opts.ReminderDelay)
		reminder.req.EmailSubject = content.ReminderEmailSubject
		reminder.req.EmailBody = content.ReminderEmailBody
		reminder.req.SmsBody = content.ReminderSmsBody
		reminder.req.ConditionEndpoint = o.conditionEndpoint(c.ID)
		out = append(out, reminder)
	}
	return out, nil
}

func (o *Orchestrator) conditionEndpoint(id uuid.UUID) string {
	if o.Opts.ConditionBaseURL == "" {
		return ""
	}
	base := strings.TrimRight(o.Opts.ConditionBaseURL, "/")
	return base + "/correspondence/api/v1/correspondence/" + url.PathEscape(id.String()) + "/notification/check"
}

// recipientOf maps a party urn to the order recipient and a stable key.
func recipientOf(party string) (notifications.Recipient, string) {
	id := domain.PartyIdentifier(party)
	switch domain.RecipientKind(party) {
	case domain.RecipientOrganization:
		return notifications.Recipient{OrganizationNumber: id}, "org:" + id
	case domain.RecipientPerson:
		return notifications.Recipient{NationalIdentityNumber: id}, "nin:" + id
	}
	return notifications.Recipient{}, ""
}
