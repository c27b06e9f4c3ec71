package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrCartNotFound indicates the cart does not exist.
	ErrCartNotFound = errors.New("cart not found")

	// ErrCartClosed indicates a mutation was attempted on a finalized cart.
	ErrCartClosed = errors.New("cart is closed")

	// ErrItemNotFound indicates the cart item does not exist.
	ErrItemNotFound = errors.New("cart item not found")

	// ErrEmptyCart indicates finalize was attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
)

// Store persists carts, pending items, and finalized orders.
// The engine re-reads cart state fresh each turn; conflicting concurrent
// mutations surface as per-call errors, never as turn aborts.
type Store interface {
	// CreateCart opens a new cart for the conversation key.
	CreateCart(ctx context.Context, key Key) (*Cart, error)

	// Cart loads a cart with all its items.
	Cart(ctx context.Context, id uuid.UUID) (*Cart, error)

	// AddItem appends a line to an open cart and returns the updated cart.
	AddItem(ctx context.Context, cartID uuid.UUID, item CartItem) (*Cart, error)

	// RemoveItem deletes a line from an open cart.
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (*Cart, error)

	// UpdateQuantity sets the quantity of a line (must stay >= 1).
	UpdateQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*Cart, error)

	// StagePending appends staged items for the key.
	StagePending(ctx context.Context, key Key, items []PendingItem) error

	// PendingItems returns unexpired staged items for the key, dropping
	// expired ones as a side effect.
	PendingItems(ctx context.Context, key Key, now time.Time) ([]PendingItem, error)

	// ClearPending removes all staged items for the key.
	ClearPending(ctx context.Context, key Key) error

	// CreateOrder persists the finalized order and closes its cart.
	CreateOrder(ctx context.Context, o *Order) error
}

// MemoryStore is an in-memory Store for tests and the local REPL.
type MemoryStore struct {
	mu      sync.Mutex
	carts   map[uuid.UUID]*Cart
	pending map[Key][]PendingItem
	orders  map[uuid.UUID]*Order
	clock   func() time.Time
}

// NewMemoryStore creates an empty in-memory order store.
// clock may be nil, in which case time.Now is used.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		carts:   make(map[uuid.UUID]*Cart),
		pending: make(map[Key][]PendingItem),
		orders:  make(map[uuid.UUID]*Order),
		clock:   clock,
	}
}

// CreateCart implements Store.
func (s *MemoryStore) CreateCart(_ context.Context, key Key) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	c := &Cart{
		ID:           uuid.New(),
		RestaurantID: key.RestaurantID,
		Phone:        key.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.carts[c.ID] = c
	return copyCart(c), nil
}

// Cart implements Store.
func (s *MemoryStore) Cart(_ context.Context, id uuid.UUID) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", id, ErrCartNotFound)
	}
	return copyCart(c), nil
}

// AddItem implements Store.
func (s *MemoryStore) AddItem(_ context.Context, cartID uuid.UUID, item CartItem) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.openCart(cartID)
	if err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = s.clock()
	return copyCart(c), nil
}

// RemoveItem implements Store.
func (s *MemoryStore) RemoveItem(_ context.Context, cartID, itemID uuid.UUID) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.openCart(cartID)
	if err != nil {
		return nil, err
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = s.clock()
			return copyCart(c), nil
		}
	}
	return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
}

// UpdateQuantity implements Store.
func (s *MemoryStore) UpdateQuantity(_ context.Context, cartID, itemID uuid.UUID, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1, got %d", quantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.openCart(cartID)
	if err != nil {
		return nil, err
	}
	item, ok := c.ItemByID(itemID)
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	item.Quantity = quantity
	c.UpdatedAt = s.clock()
	return copyCart(c), nil
}

// StagePending implements Store.
func (s *MemoryStore) StagePending(_ context.Context, key Key, items []PendingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	s.pending[key] = append(s.pending[key], items...)
	return nil
}

// PendingItems implements Store.
func (s *MemoryStore) PendingItems(_ context.Context, key Key, now time.Time) ([]PendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[key][:0]
	for _, p := range s.pending[key] {
		if p.ExpiresAt.After(now) {
			kept = append(kept, p)
		}
	}
	s.pending[key] = kept
	out := make([]PendingItem, len(kept))
	copy(out, kept)
	return out, nil
}

// ClearPending implements Store.
func (s *MemoryStore) ClearPending(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

// CreateOrder implements Store.
func (s *MemoryStore) CreateOrder(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[o.CartID]
	if !ok {
		return fmt.Errorf("cart %s: %w", o.CartID, ErrCartNotFound)
	}
	if c.Closed {
		return fmt.Errorf("cart %s: %w", o.CartID, ErrCartClosed)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("cart %s: %w", o.CartID, ErrEmptyCart)
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = s.clock()
	c.Closed = true
	s.orders[o.ID] = o
	return nil
}

// Order returns a finalized order by ID (test helper surface).
func (s *MemoryStore) Order(id uuid.UUID) (*Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *MemoryStore) openCart(id uuid.UUID) (*Cart, error) {
	c, ok := s.carts[id]
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", id, ErrCartNotFound)
	}
	if c.Closed {
		return nil, fmt.Errorf("cart %s: %w", id, ErrCartClosed)
	}
	return c, nil
}

func copyCart(c *Cart) *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}
