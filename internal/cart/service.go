package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/armorline/storefront/internal/cart/storage"
)

// Service owns all cart mutations. Every operation loads the identity
// bucket's persisted cart, applies the change, writes it back, and
// broadcasts a change signal. Two concurrent views of the same cart can
// race; the last writer wins, which is the accepted consistency model.
type Service struct {
	store        storage.Store
	bus          *Bus
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewService(store storage.Store, bus *Bus, pollInterval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		bus:          bus,
		pollInterval: pollInterval,
		logger:       logger.With("component", "cart"),
	}
}

// Watch returns a live mirror of the identity bucket's cart, driven by
// the service's bus and poll interval. The caller owns the mirror's
// lifecycle and must drive it with Run.
func (s *Service) Watch(identity string) *Mirror {
	return NewMirror(s.store, s.bus, s.pollInterval, identity)
}

// Get returns the identity bucket's cart. An absent bucket is an empty
// cart, not an error.
func (s *Service) Get(ctx context.Context, identity string) (*Cart, error) {
	data, err := s.store.Load(ctx, Key(identity))
	if errors.Is(err, storage.ErrNotFound) {
		return &Cart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	cart, err := unmarshalCart(data)
	if err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return cart, nil
}

// Add increments the quantity of an existing line by one, or inserts a
// new line with quantity one.
func (s *Service) Add(ctx context.Context, identity, productID string) (*Cart, error) {
	cart, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if i := cart.find(productID); i >= 0 {
		cart.Lines[i].Quantity++
	} else {
		cart.Lines = append(cart.Lines, Line{ProductID: productID, Quantity: 1})
	}
	return cart, s.persist(ctx, identity, cart)
}

// Decrement lowers a line's quantity by one, removing the line when the
// quantity reaches zero. Decrementing a missing line is a no-op.
func (s *Service) Decrement(ctx context.Context, identity, productID string) (*Cart, error) {
	cart, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	i := cart.find(productID)
	if i < 0 {
		return cart, nil
	}
	if cart.Lines[i].Quantity > 1 {
		cart.Lines[i].Quantity--
	} else {
		cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
	}
	return cart, s.persist(ctx, identity, cart)
}

// Remove deletes the line for productID if present; no-op otherwise.
func (s *Service) Remove(ctx context.Context, identity, productID string) (*Cart, error) {
	cart, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	i := cart.find(productID)
	if i < 0 {
		return cart, nil
	}
	cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
	return cart, s.persist(ctx, identity, cart)
}

// Clear empties the identity bucket's cart and persists the empty state.
func (s *Service) Clear(ctx context.Context, identity string) error {
	return s.persist(ctx, identity, &Cart{})
}

func (s *Service) persist(ctx context.Context, identity string, cart *Cart) error {
	key := Key(identity)
	data, err := cart.marshal()
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.bus.Broadcast(key)
	s.logger.DebugContext(ctx, "cart persisted", "key", key, "lines", len(cart.Lines))
	return nil
}
