// Package messaging defines the event publishing contracts used across the storefront.
package messaging

import (
	"context"
)

const OrdersCreatedSubject = "orders.created"

// OrdersStream is the JetStream stream holding order lifecycle events.
const OrdersStream = "ORDERS"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
