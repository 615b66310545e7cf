// Package store provides an interface for order storage operations.
package store

import (
	"context"

	"github.com/armorline/storefront/internal/order"
	"github.com/google/uuid"
)

// OrderStore is an interface for order storage operations.
// It abstracts the underlying data store, allowing for different implementations.
type OrderStore interface {
	// CreateOrder persists the order header and all of its items in a
	// single transaction. Returns ErrDuplicateIdempotencyKey when an
	// order with the same idempotency key already exists.
	CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error)

	// FindByID retrieves a single order with its items.
	// Returns ErrOrderNotFound if no order exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error)

	// FindByIdempotencyKey retrieves the order created under the given
	// idempotency key, with items. Returns ErrOrderNotFound when none exists.
	FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)

	// FindOrdersByUserID returns a user's orders newest-first, each with
	// its items attached. Returns an empty slice if none exist.
	FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]order.Order, error)

	// UpdateStatus writes both lifecycle fields and the update timestamp.
	// Returns ErrOrderNotFound if no order exists with the given ID.
	UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status, paymentStatus order.PaymentStatus) (*order.Order, error)
}
