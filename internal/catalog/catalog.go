// Package catalog exposes read access to the product catalog. The cart
// and the checkout builder only ever need a product's id and price; the
// rest of the row serves the storefront's listing endpoints.
package catalog

import (
	"context"
)

// Product is one catalog row. Price is in minor currency units.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int32  `json:"stock"`
	Category string `json:"category"`
	ImageURL string `json:"image_url,omitempty"`
}

// Provider is the catalog read contract.
type Provider interface {
	// List returns the full catalog.
	List(ctx context.Context) ([]Product, error)

	// FindByIDs resolves the given product ids. Unknown ids are simply
	// absent from the result; resolution gaps are the caller's concern.
	FindByIDs(ctx context.Context, ids []string) (map[string]Product, error)
}

// Prices flattens a resolution result into a price table for cart totals.
func Prices(products map[string]Product) map[string]int64 {
	prices := make(map[string]int64, len(products))
	for id, p := range products {
		prices[id] = p.Price
	}
	return prices
}
