package idempotency

import "context"

// OrderLookup is the order-store query the guard relies on.
type OrderLookup interface {
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)
}

// Guard answers "was this order number already materialized?". It is the cheap first check;
// the Locker and the order store's conditional create close the window it leaves open.
type Guard struct {
	orders OrderLookup
}

// NewGuard returns a Guard over orders.
func NewGuard(orders OrderLookup) *Guard {
	return &Guard{orders: orders}
}

// Exists reports whether a finalized order exists for orderNumber.
func (g *Guard) Exists(ctx context.Context, orderNumber string) (bool, error) {
	return g.orders.ExistsByOrderNumber(ctx, orderNumber)
}
