package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the part of the SQS client the queue uses.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// JobMessage is the queue envelope of a scheduled job. The job row stays the
// source of truth; the message only says "run this id now".
type JobMessage struct {
	JobID   string          `json:"jobId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt,omitempty"`
}

type Producer struct {
	SQS      API
	QueueURL string

	// FIFO queues need a group and deduplication id.
	FIFO         bool
	GroupBuckets int
}

func (p *Producer) EnqueueJob(ctx context.Context, msg JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	}
	if p.FIFO {
		in.MessageGroupId = str(messageGroupIDBucketed(msg.Kind, msg.JobID, p.GroupBuckets))
		in.MessageDeduplicationId = str(fmt.Sprintf("%s:%d", msg.JobID, msg.Attempt))
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}

const defaultGroupBuckets = 64

// messageGroupIDBucketed spreads jobs of one kind over a fixed number of FIFO
// groups so a slow job does not block the whole kind.
func messageGroupIDBucketed(kind, key string, buckets int) string {
	if buckets <= 0 {
		buckets = defaultGroupBuckets
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("%s:%d", kind, h.Sum32()%uint32(buckets))
}

func str(s string) *string { return &s }
