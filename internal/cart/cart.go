// Package cart holds the shopper's in-progress selection: line items keyed
// by product, persisted per identity bucket, with a change signal fanned out
// to every live view of the same cart.
package cart

import (
	"encoding/json"
	"time"
)

// AnonymousBucket owns the cart of shoppers with no resolved identity.
const AnonymousBucket = "anonymous"

const keyPrefix = "cart:"

// Line is one product-quantity pair. Quantity is always >= 1; a line
// whose quantity would drop to zero is removed instead.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// Cart is the persisted shape of one identity bucket's selection.
type Cart struct {
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the storage key of an identity bucket's cart. An empty
// identity maps to the shared anonymous bucket.
func Key(identity string) string {
	if identity == "" {
		return keyPrefix + AnonymousBucket
	}
	return keyPrefix + identity
}

// Total sums quantity times unit price over lines resolvable against the
// given price table. Unresolvable lines are excluded; callers deciding
// whether an order may be built must check resolution separately.
func (c *Cart) Total(prices map[string]int64) int64 {
	var total int64
	for _, line := range c.Lines {
		price, ok := prices[line.ProductID]
		if !ok {
			continue
		}
		total += price * int64(line.Quantity)
	}
	return total
}

// find returns the index of the line for productID, or -1.
func (c *Cart) find(productID string) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) marshal() ([]byte, error) {
	c.UpdatedAt = time.Now().UTC()
	return json.Marshal(c)
}

func unmarshalCart(data []byte) (*Cart, error) {
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
