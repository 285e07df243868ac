package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/dispatch"
	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/signature"
)

// PendingStore is the pending order store behind the intake and audit routes.
type PendingStore interface {
	Create(ctx context.Context, o pending.Order) error
	ListStale(ctx context.Context, before time.Time) ([]pending.Order, error)
}

// HandlerConfig groups dependencies for the HTTP routes.
type HandlerConfig struct {
	Verifier   *signature.Verifier
	Dispatcher dispatch.Dispatcher
	Pending    PendingStore
	Validator  *validatorv10.Validate
	AdminToken string
	Logger     *zap.Logger
	Now        func() time.Time
}

func (cfg *HandlerConfig) defaults() {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
