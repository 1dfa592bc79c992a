package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/domain"
)

type TransitionInsert struct {
	CorrespondenceID uuid.UUID
	Status           domain.Status
	Text             string
	ChangedAt        time.Time
	PartyUUID        *uuid.UUID
}

// TemplateContent is one recipient-type variant of a notification template.
// RecipientType is empty for the generic variant.
type TemplateContent struct {
	Template             string
	Language             string
	RecipientType        domain.RecipientType
	EmailSubject         string
	EmailBody            string
	SmsBody              string
	ReminderEmailSubject string
	ReminderEmailBody    string
	ReminderSmsBody      string
}

// Cursor is the (created, id) continuation of a windowed scan. The zero value
// starts from the beginning.
type Cursor struct {
	LastCreated time.Time
	LastID      uuid.UUID
}

func (c Cursor) IsZero() bool { return c.LastCreated.IsZero() && c.LastID == uuid.Nil }

type WindowFilter struct {
	MigratedOnly bool
	WithDialog   bool
}

// WindowRow is the projection sweeps look at.
type WindowRow struct {
	ID                      uuid.UUID
	Created                 time.Time
	ResourceID              string
	Summary                 string
	HighestStatus           domain.Status
	HasHighestStatus        bool
	Confirmed               bool
	DialogID                string
	Altinn2CorrespondenceID *int64
	AllowSystemDeleteAfter  *time.Time
}

type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobAwaiting  JobStatus = "awaiting"
	JobEnqueued  JobStatus = "enqueued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobDeleted   JobStatus = "deleted"
)

type JobInsert struct {
	ID            string
	Kind          string
	Payload       json.RawMessage
	RunAt         time.Time
	DependsOn     string
	OnlyOnSuccess bool
	Status        JobStatus
	Now           time.Time
}

type ScheduledJob struct {
	ID            string
	Kind          string
	Payload       json.RawMessage
	RunAt         time.Time
	DependsOn     string
	OnlyOnSuccess bool
	Status        JobStatus
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
