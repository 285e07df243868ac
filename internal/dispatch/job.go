package dispatch

import (
	"context"
	"time"

	"github.com/imrishuroy/go-payment-reconciler/internal/webhook"
)

// Job is one verified, classified webhook event handed off for reconciliation. It is also the
// SQS message body.
type Job struct {
	CorrelationID string         `json:"correlationId"`
	Kind          webhook.Kind   `json:"kind"`
	OrderNumber   string         `json:"orderNumber,omitempty"` // from notes; empty means resolve by gateway order id
	Payment       webhook.Entity `json:"payment"`
	ReceivedAt    time.Time      `json:"receivedAt"`
}

// Dispatcher hands a job to whatever will process it after the webhook is acknowledged.
// A returned error means the job was not accepted and the gateway has to redeliver.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Handler processes one job.
type Handler func(ctx context.Context, job Job)
