package catalog

import (
	"context"
	"sync"
)

// MemoryProvider serves a fixed catalog from memory. Used by tests and
// local development; prices can be changed mid-test to exercise the
// price-snapshot guarantee.
type MemoryProvider struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryProvider(products ...Product) *MemoryProvider {
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &MemoryProvider{products: byID}
}

func (m *MemoryProvider) List(_ context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryProvider) FindByIDs(_ context.Context, ids []string) (map[string]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

// SetPrice updates a product's price in place.
func (m *MemoryProvider) SetPrice(id string, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		p.Price = price
		m.products[id] = p
	}
}

// Delete removes a product, making its cart lines unresolvable.
func (m *MemoryProvider) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}
