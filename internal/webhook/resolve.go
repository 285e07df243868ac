package webhook

import (
	"context"
	"errors"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
)

// ErrOrderNumberUnresolved means neither the notes nor the gateway order id led to an order.
var ErrOrderNumberUnresolved = errors.New("order number could not be resolved")

// GatewayLookup finds a pending order by the gateway's order id.
type GatewayLookup interface {
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*pending.Order, error)
}

// Runner runs a store call with retries. *retry.Executor satisfies it.
type Runner interface {
	Do(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

type Resolver struct {
	pending GatewayLookup
	runner  Runner
}

func NewResolver(p GatewayLookup, runner Runner) *Resolver {
	return &Resolver{pending: p, runner: runner}
}

// ResolveOrderNumber prefers notes.order_number and falls back to the gateway order id
// lookup. Store failures that outlive the retries are returned as is.
func (r *Resolver) ResolveOrderNumber(ctx context.Context, payment Entity) (string, error) {
	if payment.Notes.OrderNumber != "" {
		return payment.Notes.OrderNumber, nil
	}
	if payment.OrderID == "" {
		return "", ErrOrderNumberUnresolved
	}

	var found *pending.Order
	err := r.runner.Do(ctx, "pending.find_by_gateway_order", func(ctx context.Context) error {
		o, err := r.pending.FindByGatewayOrderID(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		found = o
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == nil || found.OrderNumber == "" {
		return "", ErrOrderNumberUnresolved
	}
	return found.OrderNumber, nil
}
