package domain

import (
	"time"

	"github.com/google/uuid"
)

// Action names a side effect that must be applied at most once per
// correspondence (and attachment, when set).
type Action string

const (
	ActionDialogCreated            Action = "dialog.created"
	ActionInformationActivity      Action = "activity.information"
	ActionOpenedActivity           Action = "activity.opened"
	ActionConfirmedActivity        Action = "activity.confirmed"
	ActionPurgedActivity           Action = "activity.purged"
	ActionNotificationSentActivity Action = "activity.notification_sent"
)

// With scopes the action to one occurrence, e.g. one notification recipient.
func (a Action) With(discriminator string) Action {
	if discriminator == "" {
		return a
	}
	return a + Action(":"+discriminator)
}

type IdempotencyKey struct {
	ID               uuid.UUID
	CorrespondenceID uuid.UUID
	AttachmentID     *uuid.UUID
	Action           Action
	Created          time.Time
}

// MaxIdempotencyKeysPerDelete caps a single bulk deletion.
const MaxIdempotencyKeysPerDelete = 1000
