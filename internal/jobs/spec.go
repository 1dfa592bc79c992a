package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPublish              Kind = "correspondence.publish"
	KindDueDate              Kind = "correspondence.due_date"
	KindVerifyConfirmation   Kind = "correspondence.verify_confirmation"
	KindNotificationDispatch Kind = "notification.dispatch"
	KindDeliveryCheck        Kind = "notification.check_delivery"
	KindDialogCreate         Kind = "dialog.create"
	KindDialogActivity       Kind = "dialog.activity"
	KindDialogSoftDelete     Kind = "dialog.soft_delete"
	KindDialogRestore        Kind = "dialog.restore"
	KindLegacySync           Kind = "legacy.sync_event"
	KindSweep                Kind = "sweep.run"
)

// Spec describes one unit of background work. Payload is the JSON encoding of
// one of the payload structs below, matching Kind.
type Spec struct {
	Kind          Kind
	Payload       json.RawMessage
	RunAt         time.Time
	DependsOn     string
	OnlyOnSuccess bool
}

func NewSpec(kind Kind, payload any) (Spec, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Kind: kind, Payload: b}, nil
}

// CorrespondencePayload serves every job keyed by a correspondence alone.
type CorrespondencePayload struct {
	CorrespondenceID uuid.UUID `json:"correspondenceId"`
}

type DeliveryCheckPayload struct {
	NotificationID uuid.UUID `json:"notificationId"`
}

type ActivityPayload struct {
	CorrespondenceID uuid.UUID `json:"correspondenceId"`
	Activity         string    `json:"activity"`
	Actor            string    `json:"actor"`
	At               time.Time `json:"at"`
	Discriminator    string    `json:"discriminator,omitempty"`
	Tokens           []string  `json:"tokens,omitempty"`
	Reminder         bool      `json:"reminder,omitempty"`
}

type LegacySyncPayload struct {
	CorrespondenceID uuid.UUID `json:"correspondenceId"`
	LegacyID         int64     `json:"legacyId"`
	PartyID          int       `json:"partyId"`
	At               time.Time `json:"at"`
	EventType        string    `json:"eventType"`
}

// ConfirmationPayload carries the confirming party so a deferred commit
// records the same actor as the request.
type ConfirmationPayload struct {
	CorrespondenceID uuid.UUID `json:"correspondenceId"`
	PartyID          int       `json:"partyId"`
	PartyUUID        uuid.UUID `json:"partyUuid"`
	At               time.Time `json:"at"`
}

type SweepPayload struct {
	Sweep      string `json:"sweep"`
	WindowSize int    `json:"windowSize"`
	DryRun     bool   `json:"dryRun"`
}

// MatchCorrespondence is the CancelMatching argument for jobs of one correspondence.
func MatchCorrespondence(id uuid.UUID) json.RawMessage {
	b, _ := json.Marshal(CorrespondencePayload{CorrespondenceID: id})
	return b
}
