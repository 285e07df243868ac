package pending

import "time"

// Status is the lifecycle state of a pending order.
type Status string

// Pending order statuses
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a capture can no longer reopen s. A failed order is not terminal:
// a later payment attempt on the same order supersedes it.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Origin tags where the checkout happened; it picks the notification and addressing variant.
type Origin string

const (
	OriginWebsite   Origin = "website"
	OriginMobileApp Origin = "mobile_app"
)

// CustomerInfo is the shipping contact captured at checkout.
type CustomerInfo struct {
	Name    string `dynamodbav:"name" json:"name" validate:"required"`
	Email   string `dynamodbav:"email,omitempty" json:"email"`
	Phone   string `dynamodbav:"phone" json:"phone" validate:"required"`
	Address string `dynamodbav:"address" json:"address" validate:"required"`
	City    string `dynamodbav:"city,omitempty" json:"city"`
	State   string `dynamodbav:"state,omitempty" json:"state"`
	Pincode string `dynamodbav:"pincode,omitempty" json:"pincode"`
}

// Item is one cart line.
type Item struct {
	ID       string  `dynamodbav:"id" json:"id"`
	SKUID    string  `dynamodbav:"skuid" json:"skuid"`
	Name     string  `dynamodbav:"name" json:"name" validate:"required"`
	Price    float64 `dynamodbav:"price" json:"price" validate:"gte=0"`
	Quantity int     `dynamodbav:"quantity" json:"quantity" validate:"min=1"`
}

// Order is the checkout-time intent persisted before payment. OrderNumber is the
// merchant-generated immutable key.
type Order struct {
	OrderNumber     string       `dynamodbav:"order_number" json:"orderNumber" gorm:"primaryKey;size:64" validate:"required"` // PK
	RazorpayOrderID string       `dynamodbav:"razorpay_order_id,omitempty" json:"razorpayOrderId,omitempty" gorm:"size:64;index"`
	Status          Status       `dynamodbav:"status" json:"status" gorm:"size:16;index;not null"`
	CustomerInfo    CustomerInfo `dynamodbav:"customer_info" json:"customerInfo" gorm:"embedded;embeddedPrefix:customer_"`
	Items           []Item       `dynamodbav:"items" json:"items" gorm:"serializer:json" validate:"min=1,dive"`
	Total           float64      `dynamodbav:"total" json:"total" validate:"gte=0"`
	ShippingCharges float64      `dynamodbav:"shipping_charges" json:"shippingCharges" validate:"gte=0"`
	Communication   Origin       `dynamodbav:"communication" json:"communication"`
	PaymentID       string       `dynamodbav:"payment_id,omitempty" json:"paymentId,omitempty"`
	InvoiceNumber   string       `dynamodbav:"invoice_number,omitempty" json:"invoiceNumber,omitempty"`
	FailureReason   string       `dynamodbav:"failure_reason,omitempty" json:"failureReason,omitempty"`
	CreatedAt       time.Time    `dynamodbav:"created_at,unixtime" json:"createdAt" gorm:"index"`
	UpdatedAt       time.Time    `dynamodbav:"updated_at,unixtime" json:"updatedAt"`
}

// TableName pins the SQL table name.
func (Order) TableName() string { return "pending_orders" }

// Terminal carries the fields written together with a terminal status.
type Terminal struct {
	PaymentID     string
	InvoiceNumber string
	FailureReason string
}
