// Package order owns the mutable ordering state: the open cart, the
// pending-item staging area for multi-item utterances, and the immutable
// order record produced by checkout.
//
// All prices are integer cents. The cart subtotal is always computed from
// line totals, never stored, so the subtotal invariant cannot drift.
package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/session"
)

// ItemAddon is an addon selected on a cart or pending item.
type ItemAddon struct {
	AddonID uuid.UUID `json:"addon_id"`
	Name    string    `json:"name"`
	Price   int64     `json:"price_cents"`
}

// CartItem is one line of an open cart.
type CartItem struct {
	ID        uuid.UUID   `json:"id"`
	ProductID uuid.UUID   `json:"product_id"`
	Name      string      `json:"name"`
	UnitPrice int64       `json:"unit_price_cents"`
	Quantity  int         `json:"quantity"`
	Notes     string      `json:"notes,omitempty"`
	Addons    []ItemAddon `json:"addons,omitempty"`
}

// LineTotal is (unit price + addon prices) × quantity.
func (i CartItem) LineTotal() int64 {
	unit := i.UnitPrice
	for _, a := range i.Addons {
		unit += a.Price
	}
	return unit * int64(i.Quantity)
}

// Cart is the open cart for one conversation. A cart belongs to exactly one
// (restaurant, phone) conversation at a time and stays open until
// finalize_order succeeds.
type Cart struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Phone        string
	Items        []CartItem
	Closed       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subtotal is the sum of all line totals.
func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.LineTotal()
	}
	return sum
}

// ItemByID returns the cart item with the given ID.
func (c *Cart) ItemByID(id uuid.UUID) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// PendingItem is a staged, unconfirmed cart addition. Expired entries are
// dropped before being shown or confirmed; expiry is a policy decision, not
// an error.
type PendingItem struct {
	ID        uuid.UUID   `json:"id"`
	ProductID uuid.UUID   `json:"product_id"`
	Name      string      `json:"name"`
	UnitPrice int64       `json:"unit_price_cents"`
	Quantity  int         `json:"quantity"`
	Notes     string      `json:"notes,omitempty"`
	Addons    []ItemAddon `json:"addons,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// ToCartItem converts a confirmed pending item into a cart line.
func (p PendingItem) ToCartItem() CartItem {
	return CartItem{
		ID:        uuid.New(),
		ProductID: p.ProductID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Quantity:  p.Quantity,
		Notes:     p.Notes,
		Addons:    p.Addons,
	}
}

// Order is the immutable record produced when a cart is finalized.
// Ownership of the items transfers from the cart, which is closed.
type Order struct {
	ID            uuid.UUID
	CartID        uuid.UUID
	RestaurantID  uuid.UUID
	Phone         string
	Items         []CartItem
	Subtotal      int64
	DeliveryFee   int64
	Total         int64
	Address       string
	PaymentMethod string
	CreatedAt     time.Time
}

// Key aliases the conversation key; carts and pending items share the same
// (restaurant, phone) addressing as conversations.
type Key = session.Key
