package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"correspondence/internal/domain"
	"correspondence/internal/events"
	"correspondence/internal/jobs"
	"correspondence/internal/providers/notifications"
)

func TestDispatchWithoutReminder(t *testing.T) {
	h := newHarness(false)

	res, err := h.o.Dispatch(context.Background(), h.id())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(res.Submitted) != 1 || len(h.store.records) != 1 {
		t.Fatalf("expected one record, got %d submitted, %d stored", len(res.Submitted), len(h.store.records))
	}
	rec := h.store.records[res.Submitted[0]]
	if rec.IsReminder {
		t.Fatalf("primary order stored as reminder")
	}
	if want := t0.Add(5 * time.Minute); !rec.RequestedSendTime.Equal(want) {
		t.Fatalf("send time = %v, want %v", rec.RequestedSendTime, want)
	}
	if rec.ShipmentID == "" {
		t.Fatalf("shipment id not stored")
	}

	order := h.client.orders[0]
	if order.Recipient.OrganizationNumber != "310000001" {
		t.Fatalf("unexpected recipient %+v", order.Recipient)
	}
	if order.EmailSubject != "Melding fra Skatteetaten" {
		t.Fatalf("subject = %q", order.EmailSubject)
	}
	if order.EmailBody != "Hei. Logg inn for å lese." {
		t.Fatalf("body = %q", order.EmailBody)
	}
	if order.ConditionEndpoint != "" {
		t.Fatalf("primary order must not carry a condition")
	}

	if len(h.sched.at) != 1 || h.sched.at[0].spec.Kind != jobs.KindDeliveryCheck {
		t.Fatalf("expected one delivery check, got %+v", h.sched.at)
	}
	if want := rec.RequestedSendTime.Add(10 * time.Minute); !h.sched.at[0].at.Equal(want) {
		t.Fatalf("check at %v, want %v", h.sched.at[0].at, want)
	}
	if len(h.pub.events) != 0 {
		t.Fatalf("unexpected events %v", h.pub.events)
	}
}

func TestDispatchWithReminder(t *testing.T) {
	h := newHarness(true)

	res, err := h.o.Dispatch(context.Background(), h.id())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(res.Submitted) != 2 {
		t.Fatalf("expected primary and reminder, got %d", len(res.Submitted))
	}
	primary, reminder := h.client.orders[0], h.client.orders[1]
	if got := reminder.RequestedSendTime.Sub(primary.RequestedSendTime); got != 7*24*time.Hour {
		t.Fatalf("reminder offset = %v", got)
	}
	if !strings.HasPrefix(reminder.ConditionEndpoint, "https://platform.example.no/correspondence/api/v1/correspondence/") {
		t.Fatalf("condition endpoint = %q", reminder.ConditionEndpoint)
	}
	if reminder.EmailSubject != "Påminnelse" {
		t.Fatalf("reminder subject = %q", reminder.EmailSubject)
	}
	if primary.IdempotencyID == reminder.IdempotencyID {
		t.Fatalf("orders share idempotency id")
	}

	reminders := 0
	for _, r := range h.store.records {
		if r.IsReminder {
			reminders++
		}
	}
	if reminders != 1 {
		t.Fatalf("expected one reminder record, got %d", reminders)
	}
}

func TestDispatchVisibleFromInFuture(t *testing.T) {
	h := newHarness(false)
	h.store.corr.VisibleFrom = t0.Add(48 * time.Hour)

	if _, err := h.o.Dispatch(context.Background(), h.id()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if want := t0.Add(48*time.Hour + 5*time.Minute); !h.client.orders[0].RequestedSendTime.Equal(want) {
		t.Fatalf("send time = %v, want %v", h.client.orders[0].RequestedSendTime, want)
	}
}

func TestDispatchFailurePublishesOnceAndRetrySkipsSubmitted(t *testing.T) {
	h := newHarness(true)
	h.client.failWhen = func(r notifications.OrderRequest) bool { return r.ConditionEndpoint != "" }
	ctx := context.Background()

	res, err := h.o.Dispatch(ctx, h.id())
	if !errors.Is(err, domain.ErrExternalTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(res.Submitted) != 1 {
		t.Fatalf("primary should have gone through, got %d", len(res.Submitted))
	}
	if len(h.pub.events) != 1 || h.pub.events[0].Type != events.NotificationCreationFailed {
		t.Fatalf("expected one failure event, got %+v", h.pub.events)
	}

	h.client.failWhen = nil
	res, err = h.o.Dispatch(ctx, h.id())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Skipped != 1 || len(res.Submitted) != 1 {
		t.Fatalf("retry result = %+v", res)
	}
	if len(h.client.orders) != 2 || len(h.store.records) != 2 {
		t.Fatalf("expected two orders overall, got %d orders, %d records", len(h.client.orders), len(h.store.records))
	}

	res, err = h.o.Dispatch(ctx, h.id())
	if err != nil || len(res.Submitted) != 0 {
		t.Fatalf("third dispatch should be a no-op: %+v %v", res, err)
	}
}

func TestDispatchRetrySchedulesCheckAfterFailedSchedule(t *testing.T) {
	h := newHarness(false)
	h.sched.failAt = 1
	ctx := context.Background()

	if _, err := h.o.Dispatch(ctx, h.id()); !errors.Is(err, domain.ErrExternalTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(h.store.records) != 0 {
		t.Fatalf("record persisted without a delivery check")
	}

	res, err := h.o.Dispatch(ctx, h.id())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(res.Submitted) != 1 || res.Skipped != 0 {
		t.Fatalf("retry result = %+v", res)
	}
	if len(h.sched.at) != 1 || h.sched.at[0].spec.Kind != jobs.KindDeliveryCheck {
		t.Fatalf("expected one delivery check, got %+v", h.sched.at)
	}
	if len(h.store.records) != 1 {
		t.Fatalf("records = %d", len(h.store.records))
	}
	if h.client.orders[0].IdempotencyID != h.client.orders[1].IdempotencyID {
		t.Fatalf("retried order must reuse its idempotency id")
	}
}

func TestDispatchMissingTemplate(t *testing.T) {
	h := newHarness(false)
	h.store.templates = nil

	_, err := h.o.Dispatch(context.Background(), h.id())
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(h.pub.events) != 1 {
		t.Fatalf("expected failure event")
	}
}

func TestPickTemplatePrefersRecipientType(t *testing.T) {
	h := newHarness(false)
	org := h.store.templates[0]
	org.RecipientType = domain.RecipientOrganization
	org.EmailSubject = "Til virksomheten"
	h.store.templates = append(h.store.templates, org)

	if _, err := h.o.Dispatch(context.Background(), h.id()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := h.client.orders[0].EmailSubject; got != "Til virksomheten" {
		t.Fatalf("subject = %q", got)
	}
}
