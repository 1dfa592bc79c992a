package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/jobs"
	"correspondence/internal/providers/notifications"
)

func dispatched(t *testing.T, h *harness) uuid.UUID {
	t.Helper()
	res, err := h.o.Dispatch(context.Background(), h.id())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	h.sched.at = nil
	return res.Submitted[0]
}

func sentStatus() notifications.ShipmentStatus {
	return notifications.ShipmentStatus{Recipients: []notifications.RecipientStatus{
		{Channel: "email", Destination: "post@example.no", Status: "Email_Delivered", LastUpdate: t0.Add(6 * time.Minute)},
		{Channel: "sms", Destination: "+4799999999", Status: "SMS_Accepted", LastUpdate: t0.Add(7 * time.Minute)},
		{Channel: "email", Destination: "other@example.no", Status: "Email_Failed", LastUpdate: t0.Add(7 * time.Minute)},
	}}
}

func TestCheckDeliveryNotYetSent(t *testing.T) {
	h := newHarness(false)
	id := dispatched(t, h)

	res, err := h.o.CheckDelivery(context.Background(), id)
	if err != nil || res != NotYetSent {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if len(h.sched.now) != 0 {
		t.Fatalf("no activities expected")
	}
}

func TestCheckDeliveryOnce(t *testing.T) {
	h := newHarness(false)
	id := dispatched(t, h)
	h.client.status = sentStatus()
	ctx := context.Background()

	res, err := h.o.CheckDelivery(ctx, id)
	if err != nil || res != Sent {
		t.Fatalf("first: res=%v err=%v", res, err)
	}
	if len(h.sched.now) != 2 {
		t.Fatalf("expected one activity per sent recipient, got %d", len(h.sched.now))
	}
	var p jobs.ActivityPayload
	if err := json.Unmarshal(h.sched.now[0].Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Discriminator != id.String()+"/post@example.no" || p.Reminder {
		t.Fatalf("unexpected payload %+v", p)
	}
	if got := *h.store.records[id].NotificationSent; !got.Equal(t0.Add(6 * time.Minute)) {
		t.Fatalf("sent at %v", got)
	}

	polls := h.client.polls
	res, err = h.o.CheckDelivery(ctx, id)
	if err != nil || res != AlreadySent {
		t.Fatalf("second: res=%v err=%v", res, err)
	}
	if h.client.polls != polls {
		t.Fatalf("already sent must not poll the service")
	}
	if len(h.sched.now) != 2 {
		t.Fatalf("activities emitted twice")
	}
}

func TestCheckDeliveryLosingRace(t *testing.T) {
	h := newHarness(false)
	id := dispatched(t, h)
	h.client.status = sentStatus()
	h.store.loseNextSent = true

	res, err := h.o.CheckDelivery(context.Background(), id)
	if err != nil || res != AlreadySent {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if len(h.sched.now) != 0 {
		t.Fatalf("loser must not emit activities")
	}
}

func TestHandleDeliveryCheckReschedulesUntilWindowEnds(t *testing.T) {
	h := newHarness(false)
	id := dispatched(t, h)
	payload, _ := json.Marshal(jobs.DeliveryCheckPayload{NotificationID: id})
	ctx := context.Background()

	if err := h.o.HandleDeliveryCheck(ctx, payload); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(h.sched.at) != 1 || !h.sched.at[0].at.Equal(t0.Add(10*time.Minute)) {
		t.Fatalf("expected a follow-up check, got %+v", h.sched.at)
	}

	h.o.Now = func() time.Time { return t0.Add(25 * time.Hour) }
	if err := h.o.HandleDeliveryCheck(ctx, payload); err != nil {
		t.Fatalf("late check: %v", err)
	}
	if len(h.sched.at) != 1 {
		t.Fatalf("no follow-up expected after the window")
	}
	if got := StateOf(h.store.records[id], h.o.Now(), h.o.Opts.DeliveryCheckWindow); got != OrderDeliveryUnknown {
		t.Fatalf("state = %s", got)
	}
}

func TestHandleDeliveryCheckStopsOnceRead(t *testing.T) {
	h := newHarness(true)
	res, err := h.o.Dispatch(context.Background(), h.id())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	h.sched.at = nil
	h.store.corr.Statuses = []domain.StatusTransition{
		{Status: domain.StatusPublished, ChangedAt: t0},
		{Status: domain.StatusFetched, ChangedAt: t0.Add(time.Minute)},
		{Status: domain.StatusRead, ChangedAt: t0.Add(2 * time.Minute)},
	}

	reminder := res.Submitted[1]
	payload, _ := json.Marshal(jobs.DeliveryCheckPayload{NotificationID: reminder})
	if err := h.o.HandleDeliveryCheck(context.Background(), payload); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(h.sched.at) != 0 {
		t.Fatalf("suppressed reminder must not be polled again, got %+v", h.sched.at)
	}
	if h.store.records[reminder].NotificationSent != nil {
		t.Fatalf("reminder marked sent")
	}
}

func TestHandleDeliveryCheckUnknownNotification(t *testing.T) {
	h := newHarness(false)
	payload, _ := json.Marshal(jobs.DeliveryCheckPayload{NotificationID: uuid.New()})

	if err := h.o.HandleDeliveryCheck(context.Background(), payload); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(h.sched.at) != 0 || h.client.polls != 0 {
		t.Fatalf("nothing to poll for a missing record")
	}
}

func TestStateOf(t *testing.T) {
	sent := t0.Add(time.Minute)
	base := domain.NotificationRecord{OrderID: "o", ShipmentID: "s", RequestedSendTime: t0}
	cases := []struct {
		name string
		mod  func(*domain.NotificationRecord)
		now  time.Time
		want OrderState
	}{
		{"not submitted", func(n *domain.NotificationRecord) { n.OrderID, n.ShipmentID = "", "" }, t0, OrderInitialized},
		{"submitted", func(*domain.NotificationRecord) {}, t0.Add(time.Hour), OrderSubmitted},
		{"confirmed", func(n *domain.NotificationRecord) { n.NotificationSent = &sent }, t0.Add(48 * time.Hour), OrderDeliveryConfirmed},
		{"unknown", func(*domain.NotificationRecord) {}, t0.Add(25 * time.Hour), OrderDeliveryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := base
			tc.mod(&n)
			if got := StateOf(n, tc.now, 24*time.Hour); got != tc.want {
				t.Fatalf("StateOf = %s, want %s", got, tc.want)
			}
		})
	}
}
