package ingest

import (
	"errors"

	"github.com/PratikDhanave/login-pii-pipeline/internal/queue"
)

// ErrMalformedBody wraps JSON decode failures of a message body.
var ErrMalformedBody = errors.New("malformed message body")

// Outcome is the per-message result of one pass through the pipeline.
type Outcome string

const (
	// OutcomeSuccess: row committed and message deleted.
	OutcomeSuccess Outcome = "success"
	// OutcomeSkipped: device_id absent. Not persisted, not deleted.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailedRetryable: store or ack failure. Redelivery may succeed.
	OutcomeFailedRetryable Outcome = "failed_retryable"
	// OutcomeFailedPermanent: the body or its values are unusable. Redelivery will fail again.
	OutcomeFailedPermanent Outcome = "failed_permanent"
)

// Acknowledged reports whether the source message was deleted from the queue.
func (o Outcome) Acknowledged() bool {
	return o == OutcomeSuccess
}

// Result describes what happened to one message.
type Result struct {
	MessageID string
	Outcome   Outcome
	Err       error
}

// BatchResult aggregates the results of one receive call.
type BatchResult struct {
	BatchID  string
	Received int
	Results  []Result
}

// Count returns how many messages in the batch ended with o.
func (b BatchResult) Count(o Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

func resultFor(msg queue.Message, o Outcome, err error) Result {
	return Result{MessageID: msg.ID, Outcome: o, Err: err}
}
