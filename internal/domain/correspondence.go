package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ReferenceType string

const (
	ReferenceDialogportenDialogID     ReferenceType = "DialogportenDialogId"
	ReferenceDialogportenTransmission ReferenceType = "DialogportenTransmissionId"
	ReferenceGeneric                  ReferenceType = "Generic"
)

type ExternalReference struct {
	Type  ReferenceType
	Value string
}

type Content struct {
	Language string
	Title    string
	Summary  string
	Body     string
}

// Correspondence is the aggregate owned by the orchestration core. Statuses,
// references and notifications are value lists, not back-pointers.
type Correspondence struct {
	ID                      uuid.UUID
	ResourceID              string
	Sender                  string
	Recipient               string
	SendersReference        string
	Content                 Content
	VisibleFrom             time.Time
	DueDateTime             *time.Time
	AllowSystemDeleteAfter  *time.Time
	IsConfirmationNeeded    bool
	IgnoreReservation       bool
	Altinn2CorrespondenceID *int64
	Statuses                []StatusTransition
	ExternalReferences      []ExternalReference
	Notifications           []NotificationRecord
	NotificationRequests    []NotificationRequest
	Properties              map[string]string
	Created                 time.Time
}

func (c Correspondence) HighestStatus() (StatusTransition, bool) { return HighestStatus(c.Statuses) }

func (c Correspondence) LatestStatus() (StatusTransition, bool) { return LatestStatus(c.Statuses) }

func (c Correspondence) HasReached(s Status) bool { return HasReached(c.Statuses, s) }

// Reference returns the first external reference of the given type.
func (c Correspondence) Reference(t ReferenceType) (string, bool) {
	for _, r := range c.ExternalReferences {
		if r.Type == t && r.Value != "" {
			return r.Value, true
		}
	}
	return "", false
}

func (c Correspondence) DialogID() (string, bool) { return c.Reference(ReferenceDialogportenDialogID) }

// IsMigrated is true for correspondences imported from the legacy system.
func (c Correspondence) IsMigrated() bool {
	return c.Altinn2CorrespondenceID != nil && *c.Altinn2CorrespondenceID > 0
}

type RecipientType string

const (
	RecipientOrganization RecipientType = "Organization"
	RecipientPerson       RecipientType = "Person"
	RecipientUnknown      RecipientType = ""
)

const (
	orgURNPrefix    = "urn:altinn:organization:identifier-no:"
	personURNPrefix = "urn:altinn:person:identifier-no:"
)

// RecipientKind classifies a party urn or a bare identifier.
func RecipientKind(party string) RecipientType {
	id := strings.TrimPrefix(strings.TrimPrefix(party, orgURNPrefix), personURNPrefix)
	switch {
	case strings.HasPrefix(party, orgURNPrefix) || (len(id) == 9 && isDigits(id)):
		return RecipientOrganization
	case strings.HasPrefix(party, personURNPrefix) || (len(id) == 11 && isDigits(id)):
		return RecipientPerson
	default:
		return RecipientUnknown
	}
}

// PartyIdentifier strips the urn prefix.
func PartyIdentifier(party string) string {
	return strings.TrimPrefix(strings.TrimPrefix(party, orgURNPrefix), personURNPrefix)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

type NotificationChannel string

const (
	ChannelEmail          NotificationChannel = "Email"
	ChannelSms            NotificationChannel = "Sms"
	ChannelEmailPreferred NotificationChannel = "EmailPreferred"
	ChannelSmsPreferred   NotificationChannel = "SmsPreferred"
)

// NotificationRequest is what the sender asked for at initialization.
type NotificationRequest struct {
	ID                   uuid.UUID
	Template             string
	Channel              NotificationChannel
	EmailSubject         string
	EmailBody            string
	SmsBody              string
	SendReminder         bool
	ReminderEmailSubject string
	ReminderEmailBody    string
	ReminderSmsBody      string
	SendersReference     string
	Dispatched           bool
}

type NotificationRecord struct {
	ID                uuid.UUID
	CorrespondenceID  uuid.UUID
	Template          string
	Channel           NotificationChannel
	OrderID           string
	ShipmentID        string
	RequestedSendTime time.Time
	IsReminder        bool
	NotificationSent  *time.Time
	OriginalRequest   json.RawMessage
	Created           time.Time
}
