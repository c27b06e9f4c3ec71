package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMenuNotFound indicates no menu exists for the requested restaurant.
var ErrMenuNotFound = errors.New("menu not found")

// Store provides read access to menu snapshots.
// Interfaces are defined by the consumer; this one is shared because the
// search index, prompt compiler, and order tools all read the same shape.
type Store interface {
	Menu(ctx context.Context, restaurantID uuid.UUID) (*Menu, error)
}

// MemoryStore is an in-memory Store for tests and the local REPL.
type MemoryStore struct {
	mu    sync.RWMutex
	menus map[uuid.UUID]*Menu
}

// NewMemoryStore creates an empty in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{menus: make(map[uuid.UUID]*Menu)}
}

// Put registers or replaces the menu for a restaurant.
func (s *MemoryStore) Put(menu *Menu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus[menu.RestaurantID] = menu
}

// Menu returns the menu snapshot for a restaurant.
func (s *MemoryStore) Menu(_ context.Context, restaurantID uuid.UUID) (*Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.menus[restaurantID]
	if !ok {
		return nil, fmt.Errorf("restaurant %s: %w", restaurantID, ErrMenuNotFound)
	}
	return m, nil
}

// PostgresStore loads menu snapshots from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a catalog store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Menu loads the full menu snapshot for a restaurant: restaurant row,
// categories in display order, products per category, addons per product.
func (s *PostgresStore) Menu(ctx context.Context, restaurantID uuid.UUID) (*Menu, error) {
	menu := &Menu{RestaurantID: restaurantID}

	row := s.pool.QueryRow(ctx,
		`SELECT name, currency FROM restaurants WHERE id = $1`, restaurantID)
	if err := row.Scan(&menu.RestaurantName, &menu.Currency); err != nil {
		return nil, fmt.Errorf("restaurant %s: %w", restaurantID, ErrMenuNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, display_order
		 FROM menu_categories
		 WHERE restaurant_id = $1
		 ORDER BY display_order, name`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		menu.Categories = append(menu.Categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}

	for i := range menu.Categories {
		products, err := s.productsForCategory(ctx, menu.Categories[i].ID)
		if err != nil {
			return nil, err
		}
		menu.Categories[i].Products = products
	}

	return menu, nil
}

func (s *PostgresStore) productsForCategory(ctx context.Context, categoryID uuid.UUID) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, category_id, name, description, price_cents,
		        keywords, ingredients, available, display_order
		 FROM products
		 WHERE category_id = $1
		 ORDER BY display_order, name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price,
			&p.Keywords, &p.Ingredients, &p.Available, &p.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}

	for i := range products {
		addons, err := s.addonsForProduct(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Addons = addons
	}
	return products, nil
}

func (s *PostgresStore) addonsForProduct(ctx context.Context, productID uuid.UUID) ([]Addon, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, price_cents, available
		 FROM product_addons
		 WHERE product_id = $1
		 ORDER BY name`, productID)
	if err != nil {
		return nil, fmt.Errorf("querying addons: %w", err)
	}
	defer rows.Close()

	var addons []Addon
	for rows.Next() {
		var a Addon
		if err := rows.Scan(&a.ID, &a.Name, &a.Price, &a.Available); err != nil {
			return nil, fmt.Errorf("scanning addon: %w", err)
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}
