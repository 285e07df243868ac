package orders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/validation"
)

const (
	fieldSep      = "|"
	invoicePrefix = "DH"
)

// ValidationError is returned when a pending order lacks data required to build an order.
// It is never worth retrying: the stored data will not change by itself.
type ValidationError struct {
	OrderNumber string
	Fields      []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pending order %q cannot be materialized: %s", e.OrderNumber, strings.Join(e.Fields, ", "))
}

// Materializer turns a pending order plus a captured payment into an Order. It does no I/O
// and never mutates the pending order.
type Materializer struct {
	validate *validatorv10.Validate
	nowFunc  func() time.Time
}

// NewMaterializer returns a Materializer using v for field checks. A nil v gets a default
// validator.
func NewMaterializer(v *validatorv10.Validate) *Materializer {
	if v == nil {
		v = validation.New()
	}
	return &Materializer{validate: v, nowFunc: time.Now}
}

// Materialize validates p and builds the order record for it.
func (m *Materializer) Materialize(p pending.Order, ev PaymentEvent) (Order, error) {
	if err := m.validate.Struct(p); err != nil {
		return Order{}, &ValidationError{OrderNumber: p.OrderNumber, Fields: validation.Fields(err)}
	}

	now := m.nowFunc()
	invoice := ev.InvoiceNumber
	if invoice == "" {
		invoice = InvoiceNumber(now)
	}

	names := make([]string, len(p.Items))
	prices := make([]string, len(p.Items))
	skus := make([]string, len(p.Items))
	prodIDs := make([]string, len(p.Items))
	quantities := make([]string, len(p.Items))
	for i, it := range p.Items {
		// a "|" inside a value would shift every later segment
		name := sanitize(it.Name)
		names[i] = name
		prices[i] = fmt.Sprintf("%s: %s x %d", name, formatAmount(it.Price), it.Quantity)
		skus[i] = sanitize(it.SKUID)
		prodIDs[i] = sanitize(it.ID)
		quantities[i] = strconv.Itoa(it.Quantity)
	}

	address := Address(p.CustomerInfo)
	communication := string(p.Communication)
	if communication == "" {
		communication = string(pending.OriginWebsite)
	}

	return Order{
		OrderNumber:     p.OrderNumber,
		InvoiceNumber:   invoice,
		Name:            strings.Join(names, fieldSep),
		Price:           strings.Join(prices, fieldSep),
		SKUID:           strings.Join(skus, fieldSep),
		ProductID:       strings.Join(prodIDs, fieldSep),
		Quantity:        strings.Join(quantities, fieldSep),
		TotalValue:      p.Total,
		Total:           p.Total,
		ShippingCharges: p.ShippingCharges,
		ShippingRate:    p.ShippingCharges,
		CustomerName:    p.CustomerInfo.Name,
		PhoneNum:        p.CustomerInfo.Phone,
		Email:           p.CustomerInfo.Email,
		ShippingAddress: address,
		BillingAddress:  address,
		Payment:         PaymentMethod,
		Communication:   communication,
		Remarks:         "Payment ID: " + ev.PaymentID,
		CreatedAt:       now,
	}, nil
}

// InvoiceNumber synthesizes an invoice number from the last 7 digits of the millisecond
// timestamp.
func InvoiceNumber(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 7 {
		ms = ms[len(ms)-7:]
	}
	return invoicePrefix + ms
}

// Address renders customer address fields on one line: "address, city, state - pincode".
func Address(c pending.CustomerInfo) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{c.Address, c.City, c.State} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	out := strings.Join(parts, ", ")
	if pin := strings.TrimSpace(c.Pincode); pin != "" {
		out += " - " + pin
	}
	return out
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, fieldSep, "/")
}
