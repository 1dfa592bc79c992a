package sqsqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type Consumer struct {
	SQS      API
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// Handler returns nil when the message can be deleted. Any error leaves the
// message on the queue so visibility timeout and the DLQ redrive handle it.
type Handler func(ctx context.Context, msg JobMessage) error

func (c *Consumer) Poll(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := c.receive(ctx)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m, handler)
		}
	}
}

// PollConcurrent processes messages with a worker pool. Messages are deleted only after handler completes.
func (c *Consumer) PollConcurrent(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		return c.Poll(ctx, handler)
	}

	msgs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgs {
				c.handle(ctx, m, handler)
			}
		}()
	}

	go func() {
		defer close(msgs)
		for {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			out, err := c.receive(ctx)
			if err != nil {
				continue
			}
			for _, m := range out {
				select {
				case msgs <- m:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	err := <-errCh
	wg.Wait()
	return err
}

func (c *Consumer) receive(ctx context.Context) ([]types.Message, error) {
	out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.QueueURL,
		MaxNumberOfMessages: c.MaxMessages,
		WaitTimeSeconds:     c.WaitTimeSeconds,
		VisibilityTimeout:   c.VisibilityTimeout,
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("sqs receive message failed", "err", err)
			time.Sleep(500 * time.Millisecond)
		}
		return nil, err
	}
	return out.Messages, nil
}

func (c *Consumer) handle(ctx context.Context, m types.Message, handler Handler) {
	// bad payload => delete to avoid endless redrive
	if m.Body == nil {
		c.delete(ctx, m)
		return
	}
	var msg JobMessage
	if err := json.Unmarshal([]byte(*m.Body), &msg); err != nil || msg.JobID == "" {
		slog.Warn("dropping malformed job message", "err", err)
		c.delete(ctx, m)
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.Error("sqs handler error", "job_id", msg.JobID, "kind", msg.Kind, "err", err)
		return
	}
	c.delete(ctx, m)
}

func (c *Consumer) delete(ctx context.Context, m types.Message) {
	_, err := c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		slog.Warn("sqs delete message failed", "err", err)
	}
}
