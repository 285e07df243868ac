package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
)

const capturedBody = `{
  "event": "payment.captured",
  "payload": {"payment": {"entity": {
    "id": "pay_1", "order_id": "order_G1", "amount": 50000, "status": "captured",
    "notes": {"order_number": "DH-1001", "shipping_charges": 40}
  }}}
}`

func TestParseAndClassify(t *testing.T) {
	env, err := Parse([]byte(capturedBody))
	require.NoError(t, err)

	assert.Equal(t, KindCaptured, Classify(env))
	e := env.Payload.Payment.Entity
	assert.Equal(t, "pay_1", e.ID)
	assert.Equal(t, "order_G1", e.OrderID)
	assert.Equal(t, int64(50000), e.Amount)
	assert.Equal(t, "DH-1001", e.Notes.OrderNumber)
	assert.Equal(t, "40", e.Notes.ShippingCharges, "numeric note values are kept as text")
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"payment.captured":   KindCaptured,
		"payment.failed":     KindFailed,
		"payment.authorized": KindIgnored,
		"refund.created":     KindIgnored,
		"":                   KindIgnored,
	}
	for event, want := range cases {
		assert.Equal(t, want, Classify(Envelope{Event: event}), event)
	}
}

func TestParse_EmptyNotesArray(t *testing.T) {
	env, err := Parse([]byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_X","notes":[]}}}}`))
	require.NoError(t, err)
	assert.Equal(t, Notes{}, env.Payload.Payment.Entity.Notes)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"event": "payment.captured", "payload": `))
	assert.Error(t, err)
}

func TestNotesPendingOrder(t *testing.T) {
	n := Notes{
		OrderNumber:     "DH-2001",
		CustomerName:    "A",
		CustomerPhone:   "9876543210",
		ShippingAddress: "X",
		Items:           `[{"name":"Aloe Gel","price":250,"quantity":2,"skuid":"AG01"}]`,
		ShippingCharges: "0",
	}
	require.True(t, n.CarriesCheckout())

	p, err := n.PendingOrder("order_G2", 50000)
	require.NoError(t, err)
	assert.Equal(t, "DH-2001", p.OrderNumber)
	assert.Equal(t, "order_G2", p.RazorpayOrderID)
	assert.Equal(t, pending.OriginMobileApp, p.Communication)
	assert.Equal(t, pending.StatusPending, p.Status)
	assert.Equal(t, 500.0, p.Total)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "AG01", p.Items[0].SKUID)
	assert.Equal(t, 2, p.Items[0].Quantity)
}

func TestNotesPendingOrder_ItemsAsArray(t *testing.T) {
	env, err := Parse([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_3","amount":100,
	  "notes":{"order_number":"DH-3","customer_name":"B","customer_phone":"1","shipping_address":"Y",
	  "items":[{"name":"Soap","price":1,"quantity":1}]}}}}}`))
	require.NoError(t, err)

	p, err := env.Payload.Payment.Entity.Notes.PendingOrder("", 100)
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Soap", p.Items[0].Name)
}

func TestNotesPendingOrder_BadItems(t *testing.T) {
	n := Notes{OrderNumber: "DH-4", Items: "Aloe Gel x 2"}
	_, err := n.PendingOrder("", 100)
	assert.Error(t, err)
	assert.False(t, n.CarriesCheckout())
}
