// Package order defines the order domain model and the status machines
// governing fulfillment and payment.
package order

import (
	"time"

	"github.com/google/uuid"
)

// Order is a placed order. Prices are snapshotted at checkout: later
// catalog changes never alter TotalAmount or the item prices. Only
// Status, PaymentStatus and UpdatedAt change after creation.
type Order struct {
	ID             uuid.UUID         `json:"id"`
	StoreID        string            `json:"store_id"`
	UserID         uuid.UUID         `json:"user_id"`
	OrderNumber    string            `json:"order_number"`
	Status         Status            `json:"status"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	PaymentStatus  PaymentStatus     `json:"payment_status"`
	TotalAmount    int64             `json:"total_amount"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Items          []Item            `json:"items,omitempty"`
}

// Item is one order line, immutable once created.
// TotalPrice = UnitPrice * Quantity holds as an invariant.
type Item struct {
	OrderID    uuid.UUID `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int32     `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"`
	TotalPrice int64     `json:"total_price"`
}

// PaymentMethod selects how the shopper settles the order.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMobileMoney    PaymentMethod = "mobile_money"
	PaymentCard           PaymentMethod = "card"
)

// RequiresReference reports whether the method needs a payment
// confirmation reference at checkout. Pay-on-delivery is exempt.
func (m PaymentMethod) RequiresReference() bool {
	return m != PaymentCashOnDelivery
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentMobileMoney, PaymentCard:
		return true
	}
	return false
}
