package diagnostics

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Metric names published for operator follow-up.
const (
	MetricAbandoned = "ReconciliationAbandoned"
	MetricInvalid   = "ReconciliationInvalid"
	MetricStale     = "StalePendingOrders"
)

const publishTimeout = 3 * time.Second

// Counter is the metrics sink. *aws.MetricsPublisher satisfies it.
type Counter interface {
	Count(ctx context.Context, metric string, value float64, dims map[string]string) error
}

// Recorder leaves a durable trace for work that could not complete: an error log line and,
// when a Counter is configured, a metric operators can alarm on.
type Recorder struct {
	metrics Counter
	logger  *zap.Logger
}

// New returns a Recorder. metrics may be nil.
func New(metrics Counter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{metrics: metrics, logger: logger}
}

// Abandoned records that stage gave up on orderNumber after exhausting its retries.
func (r *Recorder) Abandoned(ctx context.Context, orderNumber, stage string, err error) {
	r.logger.Error("reconciliation abandoned",
		zap.String("order_number", orderNumber),
		zap.String("stage", stage),
		zap.Error(err))
	r.count(ctx, MetricAbandoned, map[string]string{"Stage": stage})
}

// Invalid records a pending order that failed materialization validation.
func (r *Recorder) Invalid(ctx context.Context, orderNumber string, fields []string) {
	r.logger.Error("pending order failed validation",
		zap.String("order_number", orderNumber),
		zap.Strings("fields", fields))
	r.count(ctx, MetricInvalid, nil)
}

func (r *Recorder) count(ctx context.Context, metric string, dims map[string]string) {
	if r.metrics == nil {
		return
	}
	// the caller's context may already be spent by the failure being recorded
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.metrics.Count(pctx, metric, 1, dims); err != nil {
		r.logger.Warn("publish metric failed", zap.String("metric", metric), zap.Error(err))
	}
}
