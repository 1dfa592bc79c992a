package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/dialog"
	"correspondence/internal/domain"
	"correspondence/internal/jobs"
	"correspondence/internal/observability"
	"correspondence/internal/providers/notifications"
)

type DeliveryResult int

const (
	NotYetSent DeliveryResult = iota
	Sent
	AlreadySent
)

func (r DeliveryResult) String() string {
	switch r {
	case Sent:
		return "sent"
	case AlreadySent:
		return "already_sent"
	default:
		return "not_yet_sent"
	}
}

type OrderState string

const (
	OrderInitialized       OrderState = "Initialized"
	OrderSubmitted         OrderState = "Submitted"
	OrderDeliveryConfirmed OrderState = "DeliveryConfirmed"
	OrderDeliveryUnknown   OrderState = "DeliveryUnknown"
)

// StateOf derives where a notification order stands.
func StateOf(n domain.NotificationRecord, now time.Time, checkWindow time.Duration) OrderState {
	switch {
	case n.NotificationSent != nil:
		return OrderDeliveryConfirmed
	case n.OrderID == "" && n.ShipmentID == "":
		return OrderInitialized
	case now.After(n.RequestedSendTime.Add(checkWindow)):
		return OrderDeliveryUnknown
	default:
		return OrderSubmitted
	}
}

// CheckDelivery records the first observed delivery of a notification. Only
// the caller that sets notification_sent emits the notification-sent
// activities, so concurrent or repeated checks produce them once.
func (o *Orchestrator) CheckDelivery(ctx context.Context, notificationID uuid.UUID) (DeliveryResult, error) {
	n, err := o.Store.GetNotification(ctx, notificationID)
	if err != nil {
		return NotYetSent, err
	}
	if n.NotificationSent != nil {
		observability.DeliveryChecks.WithLabelValues(AlreadySent.String()).Inc()
		return AlreadySent, nil
	}
	if n.ShipmentID == "" {
		return NotYetSent, fmt.Errorf("notification %s has no shipment: %w", n.ID, domain.ErrNotFound)
	}

	status, err := o.Client.GetDeliveryStatus(ctx, n.ShipmentID)
	if err != nil {
		return NotYetSent, err
	}

	var (
		sent   []notifications.RecipientStatus
		sentAt time.Time
	)
	for _, r := range status.Recipients {
		if !r.Sent() {
			continue
		}
		sent = append(sent, r)
		if sentAt.IsZero() || r.LastUpdate.Before(sentAt) {
			sentAt = r.LastUpdate
		}
	}
	if len(sent) == 0 {
		observability.DeliveryChecks.WithLabelValues(NotYetSent.String()).Inc()
		return NotYetSent, nil
	}

	won, err := o.Store.SetNotificationSent(ctx, n.ID, sentAt)
	if err != nil {
		return NotYetSent, err
	}
	if !won {
		observability.DeliveryChecks.WithLabelValues(AlreadySent.String()).Inc()
		return AlreadySent, nil
	}

	for _, r := range sent {
		spec, err := jobs.NewSpec(jobs.KindDialogActivity, jobs.ActivityPayload{
			CorrespondenceID: n.CorrespondenceID,
			Activity:         string(dialog.ActivityNotificationSent),
			Actor:            string(dialog.ActorServiceOwner),
			At:               r.LastUpdate,
			Discriminator:    n.ID.String() + "/" + r.Destination,
			Tokens:           []string{r.Destination, r.Channel},
			Reminder:         n.IsReminder,
		})
		if err != nil {
			return Sent, err
		}
		if _, err := o.Scheduler.EnqueueNow(ctx, spec); err != nil {
			// notification_sent is already set; a retry would not get here again
			slog.Error("schedule notification-sent activity failed", "notification_id", n.ID, "err", err)
		}
	}
	observability.DeliveryChecks.WithLabelValues(Sent.String()).Inc()
	return Sent, nil
}

// HandleDispatch is the notification.dispatch job.
func (o *Orchestrator) HandleDispatch(ctx context.Context, payload json.RawMessage) error {
	var p jobs.CorrespondencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	res, err := o.Dispatch(ctx, p.CorrespondenceID)
	if err != nil {
		return err
	}
	slog.Info("notifications dispatched", "correspondence_id", p.CorrespondenceID,
		"submitted", len(res.Submitted), "skipped", res.Skipped)
	return nil
}

// HandleDeliveryCheck is the notification.check_delivery job. A check that
// finds nothing sent yet schedules the next one until the check window ends
// or the recipient has read the correspondence.
func (o *Orchestrator) HandleDeliveryCheck(ctx context.Context, payload json.RawMessage) error {
	var p jobs.DeliveryCheckPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Precondition(domain.ReasonInvalidPayload, "%v", err)
	}
	res, err := o.CheckDelivery(ctx, p.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		// a failed dispatch left no record; its retry schedules a new check
		slog.Warn("delivery check for unknown notification", "notification_id", p.NotificationID, "err", err)
		return nil
	}
	if err != nil || res != NotYetSent {
		return err
	}

	n, err := o.Store.GetNotification(ctx, p.NotificationID)
	if err != nil {
		return err
	}
	c, err := o.Store.GetCorrespondence(ctx, n.CorrespondenceID)
	if err != nil {
		return err
	}
	if c.HasReached(domain.StatusRead) || c.HasReached(domain.StatusDeletedByRecipient) || c.HasReached(domain.StatusDeletedByAltinn) {
		slog.Info("correspondence read or purged, notification not sent", "notification_id", n.ID,
			"correspondence_id", c.ID, "reminder", n.IsReminder)
		return nil
	}
	now := o.Now()
	if StateOf(n, now, o.Opts.DeliveryCheckWindow) == OrderDeliveryUnknown {
		slog.Warn("notification delivery unknown, giving up", "notification_id", n.ID)
		return nil
	}
	spec, err := jobs.NewSpec(jobs.KindDeliveryCheck, p)
	if err != nil {
		return err
	}
	_, err = o.Scheduler.ScheduleAt(ctx, now.Add(o.Opts.DeliveryCheckDelay), spec)
	return err
}

func (o *Orchestrator) Register(r *jobs.Runner) {
	r.Register(jobs.KindNotificationDispatch, o.HandleDispatch)
	r.Register(jobs.KindDeliveryCheck, o.HandleDeliveryCheck)
}
