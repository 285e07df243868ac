package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
)

// Gateway event names the pipeline acts on.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Kind is the classified form of an event.
type Kind string

const (
	KindCaptured Kind = "captured"
	KindFailed   Kind = "failed"
	KindIgnored  Kind = "ignored"
)

// Envelope is the top-level webhook body.
type Envelope struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

type Payload struct {
	Payment struct {
		Entity Entity `json:"entity"`
	} `json:"payment"`
}

// Entity is the payment object. Amount is in minor units.
type Entity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Status           string `json:"status,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Notes            Notes  `json:"notes"`
}

// Notes are the merchant key/values attached at checkout. The gateway sends every value as a
// string and encodes an empty set as [] rather than {}.
type Notes struct {
	OrderNumber     string `json:"order_number,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`
	Items           string `json:"items,omitempty"`
	ItemDetails     string `json:"item_details,omitempty"`
	ShippingCharges string `json:"shipping_charges,omitempty"`
	TotalQuantity   string `json:"total_quantity,omitempty"`
	InvoiceNumber   string `json:"invoice_number,omitempty"`
}

func (n *Notes) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '[' {
		*n = Notes{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	str := func(key string) string {
		switch v := raw[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			return ""
		default:
			// nested values are re-encoded so items can arrive as an array too
			enc, _ := json.Marshal(v)
			return string(enc)
		}
	}
	*n = Notes{
		OrderNumber:     str("order_number"),
		CustomerName:    str("customer_name"),
		CustomerEmail:   str("customer_email"),
		CustomerPhone:   str("customer_phone"),
		ShippingAddress: str("shipping_address"),
		Items:           str("items"),
		ItemDetails:     str("item_details"),
		ShippingCharges: str("shipping_charges"),
		TotalQuantity:   str("total_quantity"),
		InvoiceNumber:   str("invoice_number"),
	}
	return nil
}

// Parse decodes a raw webhook body.
func Parse(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode webhook body: %w", err)
	}
	return env, nil
}

// Classify maps the event name to a Kind. Unknown events are KindIgnored.
func Classify(env Envelope) Kind {
	switch env.Event {
	case EventPaymentCaptured:
		return KindCaptured
	case EventPaymentFailed:
		return KindFailed
	default:
		return KindIgnored
	}
}

// CarriesCheckout reports whether the notes hold enough customer and cart data to rebuild the
// pending order. Mobile checkouts send everything in notes.
func (n Notes) CarriesCheckout() bool {
	return n.OrderNumber != "" && n.CustomerName != "" && n.CustomerPhone != "" &&
		n.ShippingAddress != "" && (n.Items != "" || n.ItemDetails != "")
}

// PendingOrder rebuilds a pending order from notes. amount is the captured amount in minor
// units and becomes the total.
func (n Notes) PendingOrder(gatewayOrderID string, amount int64) (pending.Order, error) {
	items, err := decodeItems(n.Items)
	if err != nil && n.ItemDetails != "" {
		items, err = decodeItems(n.ItemDetails)
	}
	if err != nil {
		return pending.Order{}, fmt.Errorf("notes items: %w", err)
	}

	var shipping float64
	if n.ShippingCharges != "" {
		shipping, err = strconv.ParseFloat(n.ShippingCharges, 64)
		if err != nil {
			return pending.Order{}, fmt.Errorf("notes shipping_charges %q: %w", n.ShippingCharges, err)
		}
	}

	return pending.Order{
		OrderNumber:     n.OrderNumber,
		RazorpayOrderID: gatewayOrderID,
		Status:          pending.StatusPending,
		CustomerInfo: pending.CustomerInfo{
			Name:    n.CustomerName,
			Email:   n.CustomerEmail,
			Phone:   n.CustomerPhone,
			Address: n.ShippingAddress,
		},
		Items:           items,
		Total:           float64(amount) / 100,
		ShippingCharges: shipping,
		Communication:   pending.OriginMobileApp,
	}, nil
}

func decodeItems(s string) ([]pending.Item, error) {
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	var items []pending.Item
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items")
	}
	return items, nil
}
