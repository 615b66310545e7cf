// Package service implements the order-related business logic: the
// checkout sequence, order queries, and the administrative status path.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/armorline/storefront/internal/cart"
	"github.com/armorline/storefront/internal/checkout"
	"github.com/armorline/storefront/internal/identity"
	"github.com/armorline/storefront/internal/order"
	ordererrors "github.com/armorline/storefront/internal/order/errors"
	"github.com/armorline/storefront/internal/order/store"
	"github.com/armorline/storefront/pkg/messaging"
	"github.com/armorline/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

// OrderService defines the methods for managing orders.
type OrderService interface {
	// Checkout resolves the acting identity, builds an order draft from
	// the identity's cart, persists it, and clears the cart. A repeated
	// submission with the same idempotency key returns the original order.
	Checkout(ctx context.Context, req CheckoutDto) (*OrderDto, error)

	// FindByID retrieves a single order. Returns ErrOrderNotFound if no
	// order exists, ErrAccessDenied if it belongs to another user.
	FindByID(ctx context.Context, userID, id uuid.UUID) (*OrderDto, error)

	// FindOrdersByUserID returns the user's orders newest-first.
	FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]OrderDto, error)

	// UpdateStatus sets both lifecycle fields. In strict mode the
	// transition tables are enforced; otherwise any valid enum value is
	// accepted, matching the historical behavior of the back office.
	UpdateStatus(ctx context.Context, req StatusUpdateDto) (*OrderDto, error)

	// StatusChoices returns the forward-only transitions the admin
	// surface offers from an order's current state.
	StatusChoices(ctx context.Context, id uuid.UUID) (*StatusChoicesDto, error)
}

// Service implements OrderService.
type Service struct {
	orderStore    store.OrderStore
	builder       *checkout.Builder
	carts         *cart.Service
	resolver      *identity.Resolver
	publisher     messaging.Publisher
	strict        bool
	ordersCounter metric.Int64Counter
	logger        *slog.Logger
}

func NewService(orderStore store.OrderStore, builder *checkout.Builder, carts *cart.Service,
	resolver *identity.Resolver, publisher messaging.Publisher, strict bool, logger *slog.Logger) *Service {
	meter := otel.Meter("storefront")
	ordersCounter, err := meter.Int64Counter("orders_created", metric.WithDescription("Total number of created orders"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_created counter: %v", err))
	}
	return &Service{
		orderStore:    orderStore,
		builder:       builder,
		carts:         carts,
		resolver:      resolver,
		publisher:     publisher,
		strict:        strict,
		ordersCounter: ordersCounter,
		logger:        logger.With("component", "orders"),
	}
}

// CheckoutDto carries the shopper's checkout form.
type CheckoutDto struct {
	PaymentMethod    string            `json:"payment_method" validate:"required"`
	PaymentReference string            `json:"payment_reference"`
	DeliveryAddress  string            `json:"delivery_address"`
	TermsAccepted    bool              `json:"terms_accepted"`
	IdempotencyKey   string            `json:"-"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// OrderDto is the API representation of an order.
type OrderDto struct {
	ID            uuid.UUID         `json:"id"`
	StoreID       string            `json:"store_id"`
	UserID        uuid.UUID         `json:"user_id"`
	OrderNumber   string            `json:"order_number"`
	Status        string            `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	PaymentStatus string            `json:"payment_status"`
	TotalAmount   int64             `json:"total_amount"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	Items         []OrderItemDto    `json:"items,omitempty"`
}

type OrderItemDto struct {
	OrderID    uuid.UUID `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int32     `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"`
	TotalPrice int64     `json:"total_price"`
}

// StatusUpdateDto is the administrative status write.
type StatusUpdateDto struct {
	ID            uuid.UUID `json:"-"`
	Status        string    `json:"status" validate:"required"`
	PaymentStatus string    `json:"payment_status" validate:"required"`
}

// StatusChoicesDto lists the transitions offered from the current state.
type StatusChoicesDto struct {
	Status          string   `json:"status"`
	PaymentStatus   string   `json:"payment_status"`
	NextStatuses    []string `json:"next_statuses"`
	NextPaymentKeys []string `json:"next_payment_statuses"`
}

func (s *Service) Checkout(ctx context.Context, req CheckoutDto) (*OrderDto, error) {
	userID, err := s.resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoIdentity) || errors.Is(err, identity.ErrInvalidToken) {
			return nil, checkout.ErrInvalidIdentity
		}
		return nil, err
	}

	// A replayed submission short-circuits to the original order before
	// any new work happens.
	if req.IdempotencyKey != "" {
		existing, err := s.orderStore.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			s.logger.InfoContext(ctx, "checkout replay detected", "order_id", existing.ID, "idempotency_key", req.IdempotencyKey)
			return toDto(existing), nil
		}
		if !errors.Is(err, ordererrors.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %w", checkout.ErrOrderPersistenceFailure, err)
		}
	}

	shopperCart, err := s.carts.Get(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	draft, err := s.builder.Build(ctx, checkout.Input{
		Identity:         userID.String(),
		Lines:            shopperCart.Lines,
		PaymentMethod:    order.PaymentMethod(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		DeliveryAddress:  req.DeliveryAddress,
		TermsAccepted:    req.TermsAccepted,
		IdempotencyKey:   req.IdempotencyKey,
		Metadata:         req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	created, err := s.orderStore.CreateOrder(ctx, &order.Order{
		StoreID:        draft.StoreID,
		UserID:         draft.UserID,
		OrderNumber:    draft.OrderNumber,
		Status:         draft.Status,
		PaymentMethod:  draft.PaymentMethod,
		PaymentStatus:  draft.PaymentStatus,
		TotalAmount:    draft.TotalAmount,
		IdempotencyKey: draft.IdempotencyKey,
		Metadata:       draft.Metadata,
		Items:          draft.Items,
	})
	if err != nil {
		if errors.Is(err, ordererrors.ErrDuplicateIdempotencyKey) {
			// Two submissions raced; the first writer's order wins.
			existing, findErr := s.orderStore.FindByIdempotencyKey(ctx, draft.IdempotencyKey)
			if findErr == nil {
				return toDto(existing), nil
			}
		}
		return nil, fmt.Errorf("%w: %w", checkout.ErrOrderPersistenceFailure, err)
	}

	// Notification fan-out is best-effort: a publish failure never rolls
	// back a placed order.
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.OrderCreatedEvent{
		Carrier:     carrier,
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		UserID:      created.UserID,
		StoreID:     created.StoreID,
		TotalAmount: created.TotalAmount,
		CreatedAt:   created.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish OrderCreatedEvent", "order_id", created.ID, "error", err)
	}

	// Same for the cart clear: the order is placed either way, and the
	// shopper sees the order confirmation regardless.
	if err := s.carts.Clear(ctx, userID.String()); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after checkout", "user_id", userID, "error", err)
	}

	s.ordersCounter.Add(ctx, 1)

	s.logger.InfoContext(ctx, "order placed", "order_id", created.ID, "order_number", created.OrderNumber, "total", created.TotalAmount)
	return toDto(created), nil
}

func (s *Service) FindByID(ctx context.Context, userID, id uuid.UUID) (*OrderDto, error) {
	found, err := s.orderStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if found.UserID != userID {
		return nil, ordererrors.ErrAccessDenied
	}
	return toDto(found), nil
}

func (s *Service) FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]OrderDto, error) {
	orders, err := s.orderStore.FindOrdersByUserID(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	dtos := make([]OrderDto, len(orders))
	for i := range orders {
		dtos[i] = *toDto(&orders[i])
	}
	return dtos, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req StatusUpdateDto) (*OrderDto, error) {
	newStatus := order.Status(req.Status)
	newPayment := order.PaymentStatus(req.PaymentStatus)
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ordererrors.ErrInvalidTransition, req.Status)
	}
	if !newPayment.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ordererrors.ErrInvalidTransition, req.PaymentStatus)
	}

	if s.strict {
		current, err := s.orderStore.FindByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if !current.Status.CanTransition(newStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ordererrors.ErrInvalidTransition, current.Status, newStatus)
		}
		if !current.PaymentStatus.CanTransition(newPayment) {
			return nil, fmt.Errorf("%w: payment %s -> %s", ordererrors.ErrInvalidTransition, current.PaymentStatus, newPayment)
		}
	}

	updated, err := s.orderStore.UpdateStatus(ctx, req.ID, newStatus, newPayment)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "order status updated", "order_id", updated.ID, "status", updated.Status, "payment_status", updated.PaymentStatus)
	return toDto(updated), nil
}

func (s *Service) StatusChoices(ctx context.Context, id uuid.UUID) (*StatusChoicesDto, error) {
	found, err := s.orderStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	choices := &StatusChoicesDto{
		Status:        string(found.Status),
		PaymentStatus: string(found.PaymentStatus),
	}
	for _, next := range found.Status.NextStatuses() {
		choices.NextStatuses = append(choices.NextStatuses, string(next))
	}
	for _, next := range found.PaymentStatus.NextPaymentStatuses() {
		choices.NextPaymentKeys = append(choices.NextPaymentKeys, string(next))
	}
	return choices, nil
}

// toDto converts an order.Order to an OrderDto.
func toDto(o *order.Order) *OrderDto {
	if o == nil {
		return nil
	}
	items := make([]OrderItemDto, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDto{
			OrderID:    item.OrderID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return &OrderDto{
		ID:            o.ID,
		StoreID:       o.StoreID,
		UserID:        o.UserID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		TotalAmount:   o.TotalAmount,
		Metadata:      o.Metadata,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
		Items:         items,
	}
}
