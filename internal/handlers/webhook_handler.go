package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/dispatch"
	"github.com/imrishuroy/go-payment-reconciler/internal/signature"
	"github.com/imrishuroy/go-payment-reconciler/internal/webhook"
)

func ack(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": message})
}

// RegisterWebhookRoutes registers POST /webhooks. The gateway retries on any non-2xx, so
// only a bad signature (400) and a failed hand-off (503) leave the 200 path.
func RegisterWebhookRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg.defaults()
	log := cfg.Logger

	r.POST("/webhooks", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unreadable body"})
			return
		}

		result, err := cfg.Verifier.Verify(body, c.GetHeader(signature.Header))
		if err != nil {
			log.Warn("webhook rejected", zap.Error(err), zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid signature"})
			return
		}
		if result == signature.Unverified {
			log.Warn("unsigned webhook accepted", zap.String("client_ip", c.ClientIP()))
		}

		env, err := webhook.Parse(body)
		if err != nil {
			// redelivering the same bytes cannot help
			log.Warn("malformed webhook body", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "malformed payload"})
			return
		}

		kind := webhook.Classify(env)
		if kind == webhook.KindIgnored {
			log.Info("webhook event ignored", zap.String("event", env.Event))
			ack(c, "event ignored")
			return
		}

		payment := env.Payload.Payment.Entity
		if payment.Notes.OrderNumber == "" && payment.OrderID == "" {
			log.Warn("order number unresolved", zap.String("payment_id", payment.ID))
			ack(c, "order number unresolved")
			return
		}

		correlationID := c.GetHeader("X-Request-Id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		job := dispatch.Job{
			CorrelationID: correlationID,
			Kind:          kind,
			OrderNumber:   payment.Notes.OrderNumber,
			Payment:       payment,
			ReceivedAt:    cfg.Now().UTC(),
		}
		if err := cfg.Dispatcher.Dispatch(c.Request.Context(), job); err != nil {
			log.Error("webhook hand-off failed",
				zap.String("correlation_id", correlationID),
				zap.String("payment_id", payment.ID),
				zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "temporarily unavailable"})
			return
		}

		log.Info("webhook accepted",
			zap.String("correlation_id", correlationID),
			zap.String("event", env.Event),
			zap.String("payment_id", payment.ID),
			zap.String("order_number", job.OrderNumber))
		ack(c, "accepted")
	})
}
