package orders

import "time"

// PaymentMethod is stamped on every order created from a gateway capture.
const PaymentMethod = "Online Payment"

// Order is the finalized sale record. Item fields are "|"-joined and index-aligned with the
// pending order's items at materialization time. Field names follow the storefront's
// content API.
type Order struct {
	OrderNumber     string    `dynamodbav:"ordernum" json:"ordernum" gorm:"column:ordernum;primaryKey;size:64"` // PK, unique
	InvoiceNumber   string    `dynamodbav:"invoicenum" json:"invoicenum" gorm:"column:invoicenum;size:32"`
	Name            string    `dynamodbav:"Name" json:"Name" gorm:"column:name;type:text"`
	Price           string    `dynamodbav:"price" json:"price" gorm:"column:price;type:text"`
	SKUID           string    `dynamodbav:"skuid" json:"skuid" gorm:"column:skuid;type:text"`
	ProductID       string    `dynamodbav:"prodid" json:"prodid" gorm:"column:prodid;type:text"`
	Quantity        string    `dynamodbav:"quantity" json:"quantity" gorm:"column:quantity;type:text"`
	TotalValue      float64   `dynamodbav:"totalValue" json:"totalValue" gorm:"column:total_value"`
	Total           float64   `dynamodbav:"total" json:"total" gorm:"column:total"`
	ShippingCharges float64   `dynamodbav:"shippingCharges" json:"shippingCharges" gorm:"column:shipping_charges"`
	ShippingRate    float64   `dynamodbav:"shippingRate" json:"shippingRate" gorm:"column:shipping_rate"`
	CustomerName    string    `dynamodbav:"customername" json:"customername" gorm:"column:customername"`
	PhoneNum        string    `dynamodbav:"phoneNum" json:"phoneNum" gorm:"column:phone_num"`
	Email           string    `dynamodbav:"email,omitempty" json:"email" gorm:"column:email"`
	ShippingAddress string    `dynamodbav:"shippingAddress" json:"shippingAddress" gorm:"column:shipping_address;type:text"`
	BillingAddress  string    `dynamodbav:"billingAddress" json:"billingAddress" gorm:"column:billing_address;type:text"`
	Payment         string    `dynamodbav:"payment" json:"payment" gorm:"column:payment"`
	Communication   string    `dynamodbav:"communication" json:"communication" gorm:"column:communication"`
	Remarks         string    `dynamodbav:"remarks" json:"remarks" gorm:"column:remarks"`
	CreatedAt       time.Time `dynamodbav:"createdAt" json:"createdAt" gorm:"column:created_at"`
}

// TableName pins the SQL table name.
func (Order) TableName() string { return "orders" }

// PaymentEvent is the part of a gateway capture the materializer reads.
type PaymentEvent struct {
	PaymentID      string
	GatewayOrderID string
	Amount         int64 // minor units (paise)
	InvoiceNumber  string
}
