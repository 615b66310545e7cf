// Package events holds the wire format of storefront domain events.
package events

import (
	"encoding/json"
	"time"

	"github.com/armorline/storefront/pkg/messaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

// OrderCreatedEvent is published after an order header and its lines
// have been persisted. Consumers use it to notify the back office.
// Carrier holds the publisher's trace context for consumers to resume.
type OrderCreatedEvent struct {
	Carrier     propagation.MapCarrier `json:"carrier,omitempty"`
	OrderID     uuid.UUID              `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	UserID      uuid.UUID              `json:"user_id"`
	StoreID     string                 `json:"store_id"`
	TotalAmount int64                  `json:"total_amount"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (o OrderCreatedEvent) Subject() string {
	return messaging.OrdersCreatedSubject
}

func (o OrderCreatedEvent) Payload() ([]byte, error) {
	return json.Marshal(o)
}
