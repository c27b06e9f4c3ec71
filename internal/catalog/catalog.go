// Package catalog defines the read-only menu snapshot consumed by the
// search index, the prompt compiler, and the order tools.
//
// Prices are integer cents. The catalog is loaded once per turn and treated
// as immutable for the duration of that turn; menu management itself is
// owned by the dashboard and is not part of this service.
package catalog

import (
	"fmt"

	"github.com/google/uuid"
)

// Addon is an optional extra attached to a product (e.g. "extra cheese").
type Addon struct {
	ID        uuid.UUID
	Name      string
	Price     int64 // cents
	Available bool
}

// Product is a single orderable menu item.
type Product struct {
	ID           uuid.UUID
	CategoryID   uuid.UUID
	Name         string
	Description  string
	Price        int64 // cents
	Keywords     []string
	Ingredients  []string
	Available    bool
	DisplayOrder int
	Addons       []Addon
}

// HasAddons reports whether any addon on the product is currently available.
func (p *Product) HasAddons() bool {
	for _, a := range p.Addons {
		if a.Available {
			return true
		}
	}
	return false
}

// AddonByID returns the addon with the given ID, if present on the product.
func (p *Product) AddonByID(id uuid.UUID) (*Addon, bool) {
	for i := range p.Addons {
		if p.Addons[i].ID == id {
			return &p.Addons[i], true
		}
	}
	return nil, false
}

// Category groups products for display.
type Category struct {
	ID           uuid.UUID
	Name         string
	DisplayOrder int
	Products     []Product
}

// Menu is the full menu snapshot for one restaurant.
type Menu struct {
	RestaurantID   uuid.UUID
	RestaurantName string
	Currency       string // symbol, e.g. "€"
	Categories     []Category
}

// Products returns all products across categories in display order.
func (m *Menu) Products() []Product {
	var out []Product
	for _, c := range m.Categories {
		out = append(out, c.Products...)
	}
	return out
}

// ProductByID looks up a product anywhere in the menu.
func (m *Menu) ProductByID(id uuid.UUID) (*Product, bool) {
	for ci := range m.Categories {
		for pi := range m.Categories[ci].Products {
			if m.Categories[ci].Products[pi].ID == id {
				return &m.Categories[ci].Products[pi], true
			}
		}
	}
	return nil, false
}

// FormatPrice renders cents using the menu currency symbol ("€9.50").
func (m *Menu) FormatPrice(cents int64) string {
	symbol := m.Currency
	if symbol == "" {
		symbol = "€"
	}
	return FormatPrice(symbol, cents)
}

// FormatPrice renders integer cents as "<symbol><units>.<cents>".
func FormatPrice(symbol string, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, cents/100, cents%100)
}
