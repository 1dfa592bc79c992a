package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"correspondence/internal/observability"
	sqsqueue "correspondence/internal/queue/sqs"
)

type Type string

const (
	CorrespondenceInitialized            Type = "correspondenceinitialized"
	CorrespondencePublished              Type = "correspondencepublished"
	CorrespondencePublishFailed          Type = "correspondencepublishfailed"
	CorrespondenceReceiverRead           Type = "correspondencereceiverread"
	CorrespondenceReceiverConfirmed      Type = "correspondencereceiverconfirmed"
	CorrespondenceReceiverNeverRead      Type = "correspondencereceiverneverread"
	CorrespondenceReceiverNeverConfirmed Type = "correspondencereceiverneverconfirmed"
	CorrespondenceArchived               Type = "correspondencearchived"
	CorrespondencePurged                 Type = "correspondencepurged"
	NotificationCreationFailed           Type = "notificationcreationfailed"
)

const typePrefix = "no.altinn.correspondence."

// Event is addressed to one party (sender or recipient) through RecipientID.
type Event struct {
	Type        Type
	ResourceID  string
	ItemID      string
	Source      string
	RecipientID string
}

// envelope keeps the message small; SQS has a 256KB message size limit.
type envelope struct {
	ID               string    `json:"id"`
	SpecVersion      string    `json:"specversion"`
	Type             string    `json:"type"`
	Time             time.Time `json:"time"`
	Source           string    `json:"source"`
	Resource         string    `json:"resource,omitempty"`
	ResourceInstance string    `json:"resourceinstance"`
	Subject          string    `json:"subject,omitempty"`
}

// Publisher is the outbound event bus. Publishing is best effort: failures
// are logged and counted, never returned to the flow that raised the event.
type Publisher struct {
	SQS      sqsqueue.API
	QueueURL string
	Now      func() time.Time
}

func NewPublisher(api sqsqueue.API, queueURL string) *Publisher {
	return &Publisher{SQS: api, QueueURL: queueURL, Now: func() time.Time { return time.Now().UTC() }}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) {
	body, err := json.Marshal(envelope{
		ID:               uuid.NewString(),
		SpecVersion:      "1.0",
		Type:             typePrefix + strings.ToLower(string(ev.Type)),
		Time:             p.Now(),
		Source:           ev.Source,
		Resource:         ev.ResourceID,
		ResourceInstance: ev.ItemID,
		Subject:          ev.RecipientID,
	})
	if err != nil {
		slog.Error("encode event failed", "type", ev.Type, "err", err)
		return
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: ptr(string(body)),
	})
	if err != nil {
		observability.EventPublishes.WithLabelValues(string(ev.Type), "error").Inc()
		slog.Error("publish event failed", "type", ev.Type, "item_id", ev.ItemID, "err", err)
		return
	}
	observability.EventPublishes.WithLabelValues(string(ev.Type), "ok").Inc()
}

func ptr(s string) *string { return &s }
