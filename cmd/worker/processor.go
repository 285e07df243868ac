package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/dispatch"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
)

// JobProcessor is the reconciliation pipeline as the worker sees it.
type JobProcessor interface {
	Process(ctx context.Context, job dispatch.Job) (reconcile.Outcome, error)
}

// Processor consumes the job queue fed by the webhook API.
type Processor struct {
	jobs   JobProcessor
	logger *zap.Logger
}

func NewProcessor(jobs JobProcessor, logger *zap.Logger) *Processor {
	return &Processor{jobs: jobs, logger: logger}
}

// Handle processes a batch and reports abandoned jobs as item failures so SQS redelivers
// just those after the visibility timeout. Undecodable bodies are dropped: redelivery cannot
// fix them.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		job, err := dispatch.Decode(rec.Body)
		if err != nil {
			p.logger.Error("dropping undecodable message", zap.String("message_id", rec.MessageId), zap.Error(err))
			continue
		}

		outcome, err := p.process(ctx, job)
		if outcome == reconcile.OutcomeAbandoned {
			p.logger.Warn("job abandoned; returning to queue",
				zap.String("message_id", rec.MessageId),
				zap.String("correlation_id", job.CorrelationID),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) process(ctx context.Context, job dispatch.Job) (outcome reconcile.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.String("correlation_id", job.CorrelationID), zap.Any("panic", r))
			outcome = reconcile.OutcomeAbandoned
		}
	}()
	return p.jobs.Process(ctx, job)
}
