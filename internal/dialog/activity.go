package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
	"correspondence/internal/observability"
	"correspondence/internal/providers/dialogporten"
)

type ActivityKind string

const (
	ActivityInformation      ActivityKind = "information"
	ActivityOpened           ActivityKind = "opened"
	ActivityConfirmed        ActivityKind = "confirmed"
	ActivityPurged           ActivityKind = "purged"
	ActivityNotificationSent ActivityKind = "notification_sent"
)

func (k ActivityKind) action() domain.Action {
	switch k {
	case ActivityOpened:
		return domain.ActionOpenedActivity
	case ActivityConfirmed:
		return domain.ActionConfirmedActivity
	case ActivityPurged:
		return domain.ActionPurgedActivity
	case ActivityNotificationSent:
		return domain.ActionNotificationSentActivity
	default:
		return domain.ActionInformationActivity
	}
}

func (k ActivityKind) externalType() string {
	switch k {
	case ActivityOpened:
		return "CorrespondenceOpened"
	case ActivityConfirmed:
		return "CorrespondenceConfirmed"
	case ActivityPurged:
		return "DialogDeleted"
	default:
		return "Information"
	}
}

type ActorType string

const (
	ActorServiceOwner ActorType = "ServiceOwner"
	ActorRecipient    ActorType = "PartyRepresentative"
)

// CreateActivity adds one activity to the dialog, at most once per kind.
func (co *Coordinator) CreateActivity(ctx context.Context, id uuid.UUID, kind ActivityKind, actor ActorType, at time.Time, tokens ...string) (bool, error) {
	return co.createActivity(ctx, id, kind, actor, at, "", "", tokens)
}

func (co *Coordinator) CreateInformationActivity(ctx context.Context, id uuid.UUID, actor ActorType, text TextType, at time.Time, tokens ...string) (bool, error) {
	return co.createActivity(ctx, id, ActivityInformation, actor, at, string(text), text, tokens)
}

func (co *Coordinator) CreateOpenedActivity(ctx context.Context, id uuid.UUID, actor ActorType, at time.Time) (bool, error) {
	return co.createActivity(ctx, id, ActivityOpened, actor, at, "", "", nil)
}

func (co *Coordinator) CreateConfirmedActivity(ctx context.Context, id uuid.UUID, actor ActorType, at time.Time) (bool, error) {
	return co.createActivity(ctx, id, ActivityConfirmed, actor, at, "", TextConfirmed, nil)
}

func (co *Coordinator) CreateCorrespondencePurgedActivity(ctx context.Context, id uuid.UUID, actor ActorType, actorName string, at time.Time) (bool, error) {
	return co.createActivity(ctx, id, ActivityPurged, actor, at, "", "", []string{actorName})
}

// CreateNotificationSentActivity records one delivered notification. The
// discriminator names the notification and destination so each recipient
// gets its own activity.
func (co *Coordinator) CreateNotificationSentActivity(ctx context.Context, id uuid.UUID, discriminator, destination, channel string, reminder bool, at time.Time) (bool, error) {
	text := TextNotificationSent
	if reminder {
		text = TextNotificationReminderSent
	}
	return co.createActivity(ctx, id, ActivityNotificationSent, ActorServiceOwner, at, discriminator, text, []string{destination, channel})
}

func (co *Coordinator) createActivity(ctx context.Context, id uuid.UUID, kind ActivityKind, actor ActorType, at time.Time, discriminator string, text TextType, tokens []string) (bool, error) {
	c, err := co.Store.GetCorrespondence(ctx, id)
	if err != nil {
		return false, err
	}
	dlg, ok := c.DialogID()
	if !ok {
		if c.IsMigrated() {
			slog.Debug("no dialog on migrated correspondence, skipping activity", "correspondence_id", id, "activity", kind)
			return false, nil
		}
		return false, fmt.Errorf("no dialog on correspondence %s: %w", id, domain.ErrNotFound)
	}

	// A denied claim still sends: the key id is the activity id, so the
	// dialog service rejects a duplicate and an activity lost between claim
	// and call is delivered.
	action := kind.action().With(discriminator)
	claimed, keyID, err := co.Keys.TryClaim(ctx, c.ID, nil, action)
	if err != nil {
		return false, err
	}
	outcome := "claimed"
	if !claimed {
		outcome = "denied"
	}
	observability.IdempotencyClaims.WithLabelValues(string(kind.action()), outcome).Inc()

	a := dialogporten.Activity{
		ID:          keyID.String(),
		Type:        kind.externalType(),
		PerformedBy: string(actor),
		CreatedAt:   at,
	}
	if text != "" {
		a.Description = Describe(text, c.Content.Language, tokens...)
	} else if len(tokens) > 0 {
		a.Description = tokens
	}

	created, err := co.Client.CreateActivity(ctx, dlg, a)
	if err != nil {
		if !claimed {
			return false, err
		}
		if rerr := co.Keys.ReleaseClaim(ctx, keyID); rerr != nil {
			slog.Error("release idempotency key failed", "key_id", keyID, "err", rerr)
		}
		return false, err
	}
	return created, nil
}
