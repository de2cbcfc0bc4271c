package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Long-poll limits enforced by SQS.
const (
	MaxBatchSize   = 10
	MaxWaitSeconds = 20
)

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// API is the subset of the SQS client used here.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue receives and acknowledges login messages on a single queue.
type SQSQueue struct {
	client      API
	queueURL    string
	maxMessages int32
	waitSeconds int32
}

// NewSQSQueue validates the batch and wait bounds and returns a consumer for queueURL.
func NewSQSQueue(client API, queueURL string, maxMessages, waitSeconds int) (*SQSQueue, error) {
	if client == nil {
		return nil, errors.New("sqs client required")
	}
	if queueURL == "" {
		return nil, errors.New("queue URL required")
	}
	if maxMessages < 1 || maxMessages > MaxBatchSize {
		return nil, fmt.Errorf("max messages must be within 1..%d", MaxBatchSize)
	}
	if waitSeconds < 0 || waitSeconds > MaxWaitSeconds {
		return nil, fmt.Errorf("wait seconds must be within 0..%d", MaxWaitSeconds)
	}

	return &SQSQueue{
		client:      client,
		queueURL:    queueURL,
		maxMessages: int32(maxMessages),
		waitSeconds: int32(waitSeconds),
	}, nil
}

// Receive long-polls for up to maxMessages. An empty slice means the wait elapsed.
func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: q.maxMessages,
		WaitTimeSeconds:     q.waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Delete acknowledges one message.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return errors.New("receipt handle required")
	}

	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
