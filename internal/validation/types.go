package validation

import "github.com/imrishuroy/go-payment-reconciler/internal/pending"

// CreatePendingOrderRequest is the payload for POST /pending-orders, sent by the storefront at
// checkout before the customer is redirected to the gateway.
type CreatePendingOrderRequest struct {
	OrderNumber     string               `json:"orderNumber" validate:"required"`
	RazorpayOrderID string               `json:"razorpayOrderId,omitempty"`
	CustomerInfo    pending.CustomerInfo `json:"customerInfo"`
	Items           []pending.Item       `json:"items" validate:"required,min=1,dive"`
	Total           float64              `json:"total" validate:"gte=0"`
	ShippingCharges float64              `json:"shippingCharges" validate:"gte=0"`
	Communication   string               `json:"communication,omitempty" validate:"omitempty,oneof=website mobile_app"`
}

// PendingOrder converts the request into the record persisted by the pending store.
func (r CreatePendingOrderRequest) PendingOrder() pending.Order {
	origin := pending.Origin(r.Communication)
	if origin == "" {
		origin = pending.OriginWebsite
	}
	return pending.Order{
		OrderNumber:     r.OrderNumber,
		RazorpayOrderID: r.RazorpayOrderID,
		Status:          pending.StatusPending,
		CustomerInfo:    r.CustomerInfo,
		Items:           r.Items,
		Total:           r.Total,
		ShippingCharges: r.ShippingCharges,
		Communication:   origin,
	}
}
