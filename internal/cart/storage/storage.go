// Package storage provides the key-value persistence contract for cart
// and session state. Values are opaque JSON blobs; keys are namespaced
// per identity bucket.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no value exists under the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value store behind the cart and the locally
// persisted identity record.
type Store interface {
	// Load returns the value stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save writes the value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error

	// Remove deletes the value under key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
