package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/validation"
)

const defaultStaleAge = 30 * time.Minute

// RegisterPendingOrderRoutes registers checkout intake and the stale reconciliation audit.
func RegisterPendingOrderRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg.defaults()
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}

	r.POST("/pending-orders", func(c *gin.Context) {
		var req validation.CreatePendingOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		order := req.PendingOrder()
		if err := cfg.Pending.Create(c.Request.Context(), order); err != nil {
			if errors.Is(err, pending.ErrExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "order_number_exists", "orderNumber": order.OrderNumber})
				return
			}
			cfg.Logger.Error("create pending order", zap.String("order_number", order.OrderNumber), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
			return
		}

		c.Header("Location", fmt.Sprintf("/pending-orders/%s", order.OrderNumber))
		c.JSON(http.StatusCreated, gin.H{"orderNumber": order.OrderNumber, "status": order.Status})
	})

	r.GET("/admin/reconciliation/stale", func(c *gin.Context) {
		if !adminAuthorized(cfg.AdminToken, c.GetHeader("X-Admin-Token")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_admin_token"})
			return
		}

		age := defaultStaleAge
		if s := c.Query("older_than"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_older_than"})
				return
			}
			age = d
		}

		stale, err := cfg.Pending.ListStale(c.Request.Context(), cfg.Now().Add(-age))
		if err != nil {
			cfg.Logger.Error("list stale pending orders", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
			return
		}
		if stale == nil {
			stale = []pending.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(stale), "olderThan": age.String(), "orders": stale})
	})
}

// adminAuthorized compares tokens in constant time. An unset token disables the route.
func adminAuthorized(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
