// Package identity resolves and validates the acting user's identity
// token for cart ownership and order attribution.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/armorline/storefront/internal/cart/storage"
	"github.com/google/uuid"
)

// CurrentUserKey is the storage key of the locally persisted identity
// record, the fallback source when no session identity exists.
const CurrentUserKey = "identity:current"

var (
	// ErrNoIdentity means neither the session nor the local record
	// yielded a usable identity token.
	ErrNoIdentity = errors.New("no identity resolved")

	// ErrInvalidToken means a token was resolved but is not a
	// well-formed RFC 4122 UUID. Treated the same as absence for
	// order creation: fail closed.
	ErrInvalidToken = errors.New("identity token is not a valid UUID")
)

// SessionProvider yields the authenticated session's identity token, if any.
type SessionProvider interface {
	CurrentIdentity(ctx context.Context) (string, bool)
}

// Record is the locally persisted "current user" fallback.
type Record struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Resolver determines the acting identity: the session provider first,
// then the locally persisted record.
type Resolver struct {
	session SessionProvider
	store   storage.Store
	logger  *slog.Logger
}

func NewResolver(session SessionProvider, store storage.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		session: session,
		store:   store,
		logger:  logger.With("component", "identity"),
	}
}

// Resolve returns the acting user's validated identity token.
// A token that resolves but fails validation is reported as
// ErrInvalidToken; total absence as ErrNoIdentity.
func (r *Resolver) Resolve(ctx context.Context) (uuid.UUID, error) {
	if token, ok := r.session.CurrentIdentity(ctx); ok {
		return Validate(token)
	}

	data, err := r.store.Load(ctx, CurrentUserKey)
	if errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, ErrNoIdentity
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load identity record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		r.logger.WarnContext(ctx, "malformed identity record", "error", err)
		return uuid.Nil, ErrNoIdentity
	}
	if record.ID == "" {
		return uuid.Nil, ErrNoIdentity
	}
	return Validate(record.ID)
}

// SaveRecord persists the local fallback identity record.
func (r *Resolver) SaveRecord(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode identity record: %w", err)
	}
	return r.store.Save(ctx, CurrentUserKey, data)
}

// ClearRecord removes the local fallback identity record.
func (r *Resolver) ClearRecord(ctx context.Context) error {
	return r.store.Remove(ctx, CurrentUserKey)
}

// Validate checks the canonical RFC 4122 shape: 8-4-4-4-12 hex groups,
// version 1 through 5, variant 10xx. Anything else fails closed.
func Validate(token string) (uuid.UUID, error) {
	if len(token) != 36 {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(token)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	if v := id.Version(); v < 1 || v > 5 {
		return uuid.Nil, ErrInvalidToken
	}
	if id.Variant() != uuid.RFC4122 {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
