package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists carts, pending items, and orders in PostgreSQL.
// Addon selections are stored as JSONB on the item rows; the engine only
// ever needs them whole.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an order store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateCart implements Store.
func (s *PostgresStore) CreateCart(ctx context.Context, key Key) (*Cart, error) {
	c := &Cart{
		ID:           uuid.New(),
		RestaurantID: key.RestaurantID,
		Phone:        key.Phone,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO carts (id, restaurant_id, customer_phone, closed, created_at, updated_at)
		 VALUES ($1, $2, $3, false, now(), now())
		 RETURNING created_at, updated_at`,
		c.ID, c.RestaurantID, c.Phone).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating cart: %w", err)
	}
	return c, nil
}

// Cart implements Store.
func (s *PostgresStore) Cart(ctx context.Context, id uuid.UUID) (*Cart, error) {
	c := &Cart{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT restaurant_id, customer_phone, closed, created_at, updated_at
		 FROM carts WHERE id = $1`, id).
		Scan(&c.RestaurantID, &c.Phone, &c.Closed, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cart %s: %w", id, ErrCartNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cart: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, name, unit_price_cents, quantity, notes, addons
		 FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("querying cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item       CartItem
			addonsJSON []byte
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name,
			&item.UnitPrice, &item.Quantity, &item.Notes, &addonsJSON); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		if len(addonsJSON) > 0 {
			if err := json.Unmarshal(addonsJSON, &item.Addons); err != nil {
				return nil, fmt.Errorf("unmarshaling addons: %w", err)
			}
		}
		c.Items = append(c.Items, item)
	}
	return c, rows.Err()
}

// AddItem implements Store.
func (s *PostgresStore) AddItem(ctx context.Context, cartID uuid.UUID, item CartItem) (*Cart, error) {
	if err := s.requireOpen(ctx, cartID); err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	addonsJSON, err := json.Marshal(item.Addons)
	if err != nil {
		return nil, fmt.Errorf("marshaling addons: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, name, unit_price_cents, quantity, notes, addons, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		item.ID, cartID, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.Notes, addonsJSON)
	if err != nil {
		return nil, fmt.Errorf("inserting cart item: %w", err)
	}
	if err := s.touch(ctx, cartID); err != nil {
		return nil, err
	}
	return s.Cart(ctx, cartID)
}

// RemoveItem implements Store.
func (s *PostgresStore) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (*Cart, error) {
	if err := s.requireOpen(ctx, cartID); err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return nil, fmt.Errorf("deleting cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	if err := s.touch(ctx, cartID); err != nil {
		return nil, err
	}
	return s.Cart(ctx, cartID)
}

// UpdateQuantity implements Store.
func (s *PostgresStore) UpdateQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1, got %d", quantity)
	}
	if err := s.requireOpen(ctx, cartID); err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3`,
		quantity, itemID, cartID)
	if err != nil {
		return nil, fmt.Errorf("updating quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	if err := s.touch(ctx, cartID); err != nil {
		return nil, err
	}
	return s.Cart(ctx, cartID)
}

// StagePending implements Store.
func (s *PostgresStore) StagePending(ctx context.Context, key Key, items []PendingItem) error {
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		addonsJSON, err := json.Marshal(item.Addons)
		if err != nil {
			return fmt.Errorf("marshaling addons: %w", err)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO pending_items (id, restaurant_id, customer_phone, product_id, name,
			                            unit_price_cents, quantity, notes, addons, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, key.RestaurantID, key.Phone, item.ProductID, item.Name,
			item.UnitPrice, item.Quantity, item.Notes, addonsJSON, item.ExpiresAt)
		if err != nil {
			return fmt.Errorf("inserting pending item: %w", err)
		}
	}
	return nil
}

// PendingItems implements Store. Expired entries are deleted first so they
// can never be shown or confirmed.
func (s *PostgresStore) PendingItems(ctx context.Context, key Key, now time.Time) ([]PendingItem, error) {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_items
		 WHERE restaurant_id = $1 AND customer_phone = $2 AND expires_at <= $3`,
		key.RestaurantID, key.Phone, now)
	if err != nil {
		return nil, fmt.Errorf("expiring pending items: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, name, unit_price_cents, quantity, notes, addons, expires_at
		 FROM pending_items
		 WHERE restaurant_id = $1 AND customer_phone = $2
		 ORDER BY expires_at`, key.RestaurantID, key.Phone)
	if err != nil {
		return nil, fmt.Errorf("querying pending items: %w", err)
	}
	defer rows.Close()

	var items []PendingItem
	for rows.Next() {
		var (
			item       PendingItem
			addonsJSON []byte
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.UnitPrice,
			&item.Quantity, &item.Notes, &addonsJSON, &item.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning pending item: %w", err)
		}
		if len(addonsJSON) > 0 {
			if err := json.Unmarshal(addonsJSON, &item.Addons); err != nil {
				return nil, fmt.Errorf("unmarshaling addons: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClearPending implements Store.
func (s *PostgresStore) ClearPending(ctx context.Context, key Key) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_items WHERE restaurant_id = $1 AND customer_phone = $2`,
		key.RestaurantID, key.Phone)
	if err != nil {
		return fmt.Errorf("clearing pending items: %w", err)
	}
	return nil
}

// CreateOrder implements Store. The order insert and the cart close happen
// in one transaction; closing uses a conditional update so a cart can only
// be finalized once.
func (s *PostgresStore) CreateOrder(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("cart %s: %w", o.CartID, ErrEmptyCart)
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE carts SET closed = true, updated_at = now()
		 WHERE id = $1 AND closed = false`, o.CartID)
	if err != nil {
		return fmt.Errorf("closing cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart %s: %w", o.CartID, ErrCartClosed)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, cart_id, restaurant_id, customer_phone, items,
		                     subtotal_cents, delivery_fee_cents, total_cents,
		                     address, payment_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 RETURNING created_at`,
		o.ID, o.CartID, o.RestaurantID, o.Phone, itemsJSON,
		o.Subtotal, o.DeliveryFee, o.Total, o.Address, o.PaymentMethod).
		Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}
	return nil
}

func (s *PostgresStore) requireOpen(ctx context.Context, cartID uuid.UUID) error {
	var closed bool
	err := s.pool.QueryRow(ctx, `SELECT closed FROM carts WHERE id = $1`, cartID).Scan(&closed)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("cart %s: %w", cartID, ErrCartNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading cart: %w", err)
	}
	if closed {
		return fmt.Errorf("cart %s: %w", cartID, ErrCartClosed)
	}
	return nil
}

func (s *PostgresStore) touch(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("touching cart: %w", err)
	}
	return nil
}
