// Package checkout transforms a cart into an order draft: identity
// validation, payment-method branching, and the price snapshot that
// fixes the order's totals for good.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/armorline/storefront/internal/cart"
	"github.com/armorline/storefront/internal/catalog"
	"github.com/armorline/storefront/internal/identity"
	"github.com/armorline/storefront/internal/order"
	"github.com/google/uuid"
)

// Input is everything the builder needs to produce a draft. Identity is
// the raw resolved token; the builder revalidates it rather than
// trusting the caller.
type Input struct {
	Identity         string
	Lines            []cart.Line
	PaymentMethod    order.PaymentMethod
	PaymentReference string
	DeliveryAddress  string
	TermsAccepted    bool
	IdempotencyKey   string
	Metadata         map[string]string
}

// Draft is a fully priced, not yet persisted order. Status and payment
// status always start at pending.
type Draft struct {
	UserID         uuid.UUID
	StoreID        string
	OrderNumber    string
	Status         order.Status
	PaymentMethod  order.PaymentMethod
	PaymentStatus  order.PaymentStatus
	Items          []order.Item
	SubTotal       int64
	ShippingFee    int64
	TotalAmount    int64
	IdempotencyKey string
	Metadata       map[string]string
}

// Builder joins carts against the catalog at checkout time and applies
// the fixed shipping surcharge.
type Builder struct {
	catalog     catalog.Provider
	storeID     string
	shippingFee int64
	logger      *slog.Logger
}

func NewBuilder(provider catalog.Provider, storeID string, shippingFee int64, logger *slog.Logger) *Builder {
	return &Builder{
		catalog:     provider,
		storeID:     storeID,
		shippingFee: shippingFee,
		logger:      logger.With("component", "checkout"),
	}
}

// Build validates the input and produces an order draft. Each precondition
// failure maps to its own sentinel error; none of them mutate any state.
// Cart lines whose product no longer exists are dropped from the snapshot;
// a cart emptied by such drops fails as an empty cart.
func (b *Builder) Build(ctx context.Context, in Input) (*Draft, error) {
	userID, err := identity.Validate(in.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, in.Identity)
	}
	if len(in.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return nil, ErrMissingAddress
	}
	if !in.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, in.PaymentMethod)
	}
	if in.PaymentMethod.RequiresReference() && strings.TrimSpace(in.PaymentReference) == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingPaymentReference, in.PaymentMethod)
	}

	items, dropped, err := b.snapshot(ctx, in.Lines)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		b.logger.WarnContext(ctx, "dropped unresolvable cart lines", "products", dropped)
	}
	if len(items) == 0 {
		// Stale lines emptied the cart; surface it as an empty cart.
		return nil, fmt.Errorf("%w: %w", ErrEmptyCart, ErrLineItemUnresolvable)
	}

	var subTotal int64
	for _, item := range items {
		subTotal += item.TotalPrice
	}

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	return &Draft{
		UserID:         userID,
		StoreID:        b.storeID,
		OrderNumber:    NewOrderNumber(time.Now()),
		Status:         order.StatusPending,
		PaymentMethod:  in.PaymentMethod,
		PaymentStatus:  order.PaymentPending,
		Items:          items,
		SubTotal:       subTotal,
		ShippingFee:    b.shippingFee,
		TotalAmount:    subTotal + b.shippingFee,
		IdempotencyKey: key,
		Metadata:       metadata(in),
	}, nil
}

// snapshot resolves cart lines against the catalog once; the prices it
// captures are the price of record for the resulting order.
func (b *Builder) snapshot(ctx context.Context, lines []cart.Line) ([]order.Item, []string, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := b.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve cart against catalog: %w", err)
	}

	items := make([]order.Item, 0, len(lines))
	var dropped []string
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			dropped = append(dropped, line.ProductID)
			continue
		}
		items = append(items, order.Item{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  product.Price,
			TotalPrice: product.Price * int64(line.Quantity),
		})
	}
	return items, dropped, nil
}

func metadata(in Input) map[string]string {
	md := make(map[string]string, len(in.Metadata)+2)
	for k, v := range in.Metadata {
		md[k] = v
	}
	md["delivery_address"] = in.DeliveryAddress
	if in.PaymentReference != "" {
		md["payment_reference"] = in.PaymentReference
	}
	return md
}

// NewOrderNumber derives a human-readable, unique-enough order token
// from a timestamp and a short random suffix. Immutable once assigned.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), suffix)
}
