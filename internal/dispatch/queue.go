package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Sender publishes a message body with string attributes. *aws.Publisher satisfies it.
type Sender interface {
	Send(ctx context.Context, messageBody string, attributes map[string]string) error
}

// Queue dispatches jobs to SQS for the worker Lambda.
type Queue struct {
	sender Sender
}

func NewQueue(sender Sender) *Queue {
	return &Queue{sender: sender}
}

func (q *Queue) Dispatch(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	attrs := map[string]string{
		"correlation_id":   job.CorrelationID,
		"order_number":     job.OrderNumber,
		"kind":             string(job.Kind),
		"gateway_order_id": job.Payment.OrderID,
	}
	if job.Payment.ID != "" {
		attrs["dedup_id"] = job.Payment.ID + ":" + string(job.Kind)
	}
	if err := q.sender.Send(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.CorrelationID, err)
	}
	return nil
}

// Decode parses an SQS message body produced by Queue.
func Decode(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
