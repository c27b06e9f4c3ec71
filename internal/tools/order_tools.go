package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/search"
)

// Tool names, the single source of truth for the registry and the
// orchestration config validator.
const (
	NameSearchMenu      = "search_menu"
	NameAddToCart       = "add_to_cart"
	NameRemoveFromCart  = "remove_from_cart"
	NameUpdateQuantity  = "update_quantity"
	NameShowCart        = "show_cart"
	NameStagePending    = "stage_pending_items"
	NameConfirmPending  = "confirm_pending_items"
	NameClearPending    = "clear_pending_items"
	NameValidateAddress = "validate_and_set_delivery_address"
	NameSetPayment      = "set_payment_method"
	NameFinalizeOrder   = "finalize_order"
	NameResetConv       = "reset_conversation"
)

// ErrMultipleNotAllowed indicates multi-item staging is disabled for the
// restaurant.
var ErrMultipleNotAllowed = errors.New("staging multiple items is not allowed")

// ErrCheckoutIncomplete indicates finalize was attempted before address or
// payment were collected.
var ErrCheckoutIncomplete = errors.New("checkout information incomplete")

// NewOrderTools builds the full set of order tool definitions.
func NewOrderTools() []*Definition {
	return []*Definition{
		newSearchMenuTool(),
		newAddToCartTool(),
		newRemoveFromCartTool(),
		newUpdateQuantityTool(),
		newShowCartTool(),
		newStagePendingTool(),
		newConfirmPendingTool(),
		newClearPendingTool(),
		newValidateAddressTool(),
		newSetPaymentTool(),
		newFinalizeOrderTool(),
		newResetConversationTool(),
	}
}

// NewDefaultRegistry builds a registry with all order tools.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewOrderTools()...)
}

type searchMenuInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Category   string `json:"category,omitempty"`
}

type searchResult struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       string  `json:"price"`
	HasAddons   bool    `json:"has_addons"`
	Similarity  float64 `json:"similarity"`
}

type searchMenuOutput struct {
	Results []searchResult `json:"results"`
}

func newSearchMenuTool() *Definition {
	return NewTool(NameSearchMenu,
		"Search the menu for products matching the customer's words. Handles typos and synonyms. Always use this to resolve product names before adding to the cart.",
		func(_ context.Context, tc *Context, in searchMenuInput) (searchMenuOutput, error) {
			max := in.MaxResults
			if max <= 0 || max > 10 {
				max = 5
			}
			matches := tc.Search.Search(in.Query, search.Options{
				MaxResults:    max,
				Category:      in.Category,
				MinSimilarity: 0.4,
			})
			out := searchMenuOutput{Results: make([]searchResult, 0, len(matches))}
			for _, m := range matches {
				out.Results = append(out.Results, searchResult{
					ProductID:   m.Product.ID.String(),
					Name:        m.Product.Name,
					Description: m.Product.Description,
					Price:       tc.Menu.FormatPrice(m.Product.Price),
					HasAddons:   m.Product.HasAddons(),
					Similarity:  m.Similarity,
				})
			}
			return out, nil
		})
}

type addToCartInput struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity,omitempty"`
	AddonIDs  []string `json:"addon_ids,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type cartView struct {
	Items    []cartItemView `json:"items"`
	Subtotal string         `json:"subtotal"`
}

type cartItemView struct {
	ItemID    string   `json:"item_id"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Addons    []string `json:"addons,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	LineTotal string   `json:"line_total"`
}

func newAddToCartTool() *Definition {
	return NewTool(NameAddToCart,
		"Add a product to the customer's cart. Requires a product_id resolved via search_menu. Addon IDs must belong to the product.",
		func(ctx context.Context, tc *Context, in addToCartInput) (cartView, error) {
			product, addons, err := resolveProduct(tc, in.ProductID, in.AddonIDs)
			if err != nil {
				return cartView{}, err
			}

			cart, err := ensureCart(ctx, tc)
			if err != nil {
				return cartView{}, err
			}

			item := order.CartItem{
				ProductID: product.ID,
				Name:      product.Name,
				UnitPrice: product.Price,
				Quantity:  in.Quantity,
				Notes:     in.Notes,
				Addons:    addons,
			}
			cart, err = tc.Orders.AddItem(ctx, cart.ID, item)
			if err != nil {
				return cartView{}, fmt.Errorf("adding item: %w", err)
			}

			tc.Effects.Added = append(tc.Effects.Added, AddedItem{
				ProductID: product.ID,
				HasAddons: product.HasAddons(),
				Chosen:    len(addons) > 0,
			})
			return viewCart(tc, cart), nil
		})
}

type removeFromCartInput struct {
	ItemID string `json:"item_id"`
}

func newRemoveFromCartTool() *Definition {
	return NewTool(NameRemoveFromCart,
		"Remove an item from the cart by its item_id (shown by show_cart).",
		func(ctx context.Context, tc *Context, in removeFromCartInput) (cartView, error) {
			cartID, err := requireCart(tc)
			if err != nil {
				return cartView{}, err
			}
			itemID, err := uuid.Parse(in.ItemID)
			if err != nil {
				return cartView{}, fmt.Errorf("invalid item_id %q: %w", in.ItemID, err)
			}
			cart, err := tc.Orders.RemoveItem(ctx, cartID, itemID)
			if err != nil {
				return cartView{}, err
			}
			tc.Effects.Removed = true
			return viewCart(tc, cart), nil
		})
}

type updateQuantityInput struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func newUpdateQuantityTool() *Definition {
	return NewTool(NameUpdateQuantity,
		"Change the quantity of a cart item. Quantity must be at least 1; use remove_from_cart to delete an item.",
		func(ctx context.Context, tc *Context, in updateQuantityInput) (cartView, error) {
			cartID, err := requireCart(tc)
			if err != nil {
				return cartView{}, err
			}
			itemID, err := uuid.Parse(in.ItemID)
			if err != nil {
				return cartView{}, fmt.Errorf("invalid item_id %q: %w", in.ItemID, err)
			}
			cart, err := tc.Orders.UpdateQuantity(ctx, cartID, itemID, in.Quantity)
			if err != nil {
				return cartView{}, err
			}
			tc.Effects.QuantityUpdated = true
			return viewCart(tc, cart), nil
		})
}

type emptyInput struct{}

func newShowCartTool() *Definition {
	return NewTool(NameShowCart,
		"Show the current cart contents with quantities, addons, and subtotal.",
		func(ctx context.Context, tc *Context, _ emptyInput) (cartView, error) {
			if tc.Conversation.CartID == nil {
				tc.Effects.CartShown = true
				return cartView{Subtotal: tc.Menu.FormatPrice(0)}, nil
			}
			cart, err := tc.Orders.Cart(ctx, *tc.Conversation.CartID)
			if err != nil {
				return cartView{}, err
			}
			tc.Effects.CartShown = true
			return viewCart(tc, cart), nil
		})
}

type pendingItemInput struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity,omitempty"`
	AddonIDs  []string `json:"addon_ids,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type stagePendingInput struct {
	Items []pendingItemInput `json:"items"`
}

type stagePendingOutput struct {
	Staged    []string `json:"staged"`
	ExpiresIn string   `json:"expires_in"`
}

func newStagePendingTool() *Definition {
	return NewTool(NameStagePending,
		"Stage items the customer mentioned in one message (e.g. 'two pizzas and a coke') for later confirmation. Staged items are not in the cart until confirm_pending_items.",
		func(ctx context.Context, tc *Context, in stagePendingInput) (stagePendingOutput, error) {
			if len(in.Items) == 0 {
				return stagePendingOutput{}, errors.New("no items to stage")
			}
			if len(in.Items) > 1 && !tc.Behavior.PendingItems.AllowMultiple {
				return stagePendingOutput{}, ErrMultipleNotAllowed
			}

			ttl := time.Duration(tc.Behavior.PendingItems.ExpirationMinutes) * time.Minute
			if ttl <= 0 {
				ttl = 15 * time.Minute
			}
			expires := tc.Now().Add(ttl)

			staged := make([]order.PendingItem, 0, len(in.Items))
			names := make([]string, 0, len(in.Items))
			for _, pi := range in.Items {
				product, addons, err := resolveProduct(tc, pi.ProductID, pi.AddonIDs)
				if err != nil {
					return stagePendingOutput{}, err
				}
				qty := pi.Quantity
				if qty < 1 {
					qty = 1
				}
				staged = append(staged, order.PendingItem{
					ProductID: product.ID,
					Name:      product.Name,
					UnitPrice: product.Price,
					Quantity:  qty,
					Notes:     pi.Notes,
					Addons:    addons,
					ExpiresAt: expires,
				})
				names = append(names, fmt.Sprintf("%dx %s", qty, product.Name))
			}

			if err := tc.Orders.StagePending(ctx, tc.Key, staged); err != nil {
				return stagePendingOutput{}, fmt.Errorf("staging items: %w", err)
			}
			tc.Effects.Staged = true
			return stagePendingOutput{Staged: names, ExpiresIn: ttl.String()}, nil
		})
}

func newConfirmPendingTool() *Definition {
	return NewTool(NameConfirmPending,
		"Move all staged pending items into the cart. Confirmation is all-or-nothing; remove individual items first if needed.",
		func(ctx context.Context, tc *Context, _ emptyInput) (cartView, error) {
			pending, err := tc.Orders.PendingItems(ctx, tc.Key, tc.Now())
			if err != nil {
				return cartView{}, err
			}
			if len(pending) == 0 {
				return cartView{}, errors.New("no pending items to confirm")
			}

			cart, err := ensureCart(ctx, tc)
			if err != nil {
				return cartView{}, err
			}
			for _, p := range pending {
				cart, err = tc.Orders.AddItem(ctx, cart.ID, p.ToCartItem())
				if err != nil {
					return cartView{}, fmt.Errorf("confirming %q: %w", p.Name, err)
				}
			}
			if err := tc.Orders.ClearPending(ctx, tc.Key); err != nil {
				return cartView{}, err
			}
			tc.Effects.Confirmed = true
			return viewCart(tc, cart), nil
		})
}

type clearPendingOutput struct {
	Cleared bool `json:"cleared"`
}

func newClearPendingTool() *Definition {
	return NewTool(NameClearPending,
		"Discard all staged pending items without adding them to the cart.",
		func(ctx context.Context, tc *Context, _ emptyInput) (clearPendingOutput, error) {
			if err := tc.Orders.ClearPending(ctx, tc.Key); err != nil {
				return clearPendingOutput{}, err
			}
			tc.Effects.PendingCleared = true
			return clearPendingOutput{Cleared: true}, nil
		})
}

type validateAddressInput struct {
	Address string `json:"address"`
}

func newValidateAddressTool() *Definition {
	return NewTool(NameValidateAddress,
		"Validate the customer's delivery address against the delivery zone and, if valid, set it on the order along with the delivery fee.",
		func(ctx context.Context, tc *Context, in validateAddressInput) (AddressResult, error) {
			if in.Address == "" {
				return AddressResult{}, errors.New("address is empty")
			}
			res, err := tc.Validator.Validate(ctx, tc.Key.RestaurantID.String(), in.Address)
			if err != nil {
				return AddressResult{}, fmt.Errorf("validating address: %w", err)
			}
			if !res.Valid {
				tc.Effects.AddressRejected = true
				return *res, nil
			}
			formatted := res.FormattedAddress
			if formatted == "" {
				formatted = in.Address
			}
			tc.Conversation.Address = formatted
			tc.Conversation.DeliveryFee = res.Fee
			tc.Effects.AddressValidated = true
			return *res, nil
		})
}

type setPaymentInput struct {
	Method string `json:"method"` // e.g. cash, card, mbway
}

type setPaymentOutput struct {
	Method string `json:"method"`
}

func newSetPaymentTool() *Definition {
	return NewTool(NameSetPayment,
		"Record how the customer will pay for the order.",
		func(_ context.Context, tc *Context, in setPaymentInput) (setPaymentOutput, error) {
			if in.Method == "" {
				return setPaymentOutput{}, errors.New("payment method is empty")
			}
			tc.Conversation.PaymentMethod = in.Method
			tc.Effects.PaymentSet = true
			return setPaymentOutput{Method: in.Method}, nil
		})
}

type finalizeOutput struct {
	OrderID  string `json:"order_id"`
	Subtotal string `json:"subtotal"`
	Fee      string `json:"delivery_fee"`
	Total    string `json:"total"`
	Address  string `json:"address"`
	Payment  string `json:"payment_method"`
}

func newFinalizeOrderTool() *Definition {
	return NewTool(NameFinalizeOrder,
		"Place the order. Only call after the customer explicitly confirmed the full order, address, and payment method.",
		func(ctx context.Context, tc *Context, _ emptyInput) (finalizeOutput, error) {
			cartID, err := requireCart(tc)
			if err != nil {
				return finalizeOutput{}, err
			}
			if tc.Conversation.Address == "" || tc.Conversation.PaymentMethod == "" {
				return finalizeOutput{}, fmt.Errorf("%w: address and payment method must be set first",
					ErrCheckoutIncomplete)
			}
			cart, err := tc.Orders.Cart(ctx, cartID)
			if err != nil {
				return finalizeOutput{}, err
			}

			subtotal := cart.Subtotal()
			o := &order.Order{
				CartID:        cart.ID,
				RestaurantID:  tc.Key.RestaurantID,
				Phone:         tc.Key.Phone,
				Items:         cart.Items,
				Subtotal:      subtotal,
				DeliveryFee:   tc.Conversation.DeliveryFee,
				Total:         subtotal + tc.Conversation.DeliveryFee,
				Address:       tc.Conversation.Address,
				PaymentMethod: tc.Conversation.PaymentMethod,
			}
			if err := tc.Orders.CreateOrder(ctx, o); err != nil {
				return finalizeOutput{}, fmt.Errorf("creating order: %w", err)
			}

			tc.Effects.Finalized = true
			tc.Effects.OrderID = o.ID
			return finalizeOutput{
				OrderID:  o.ID.String(),
				Subtotal: tc.Menu.FormatPrice(o.Subtotal),
				Fee:      tc.Menu.FormatPrice(o.DeliveryFee),
				Total:    tc.Menu.FormatPrice(o.Total),
				Address:  o.Address,
				Payment:  o.PaymentMethod,
			}, nil
		})
}

type resetOutput struct {
	Reset bool `json:"reset"`
}

func newResetConversationTool() *Definition {
	return NewTool(NameResetConv,
		"Start over: clear the conversation state, detach the cart, and drop staged items. Use when the customer asks to restart.",
		func(ctx context.Context, tc *Context, _ emptyInput) (resetOutput, error) {
			if err := tc.Orders.ClearPending(ctx, tc.Key); err != nil {
				return resetOutput{}, err
			}
			if err := tc.Sessions.Reset(ctx, tc.Key); err != nil {
				return resetOutput{}, err
			}
			tc.Effects.Reset = true
			return resetOutput{Reset: true}, nil
		})
}

// resolveProduct looks the product up in the menu and validates addon IDs
// against it.
func resolveProduct(tc *Context, productID string, addonIDs []string) (*catalog.Product, []order.ItemAddon, error) {
	pid, err := uuid.Parse(productID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid product_id %q: %w", productID, err)
	}
	product, ok := tc.Menu.ProductByID(pid)
	if !ok {
		return nil, nil, fmt.Errorf("product %s not found in menu", productID)
	}
	if !product.Available {
		return nil, nil, fmt.Errorf("product %q is unavailable", product.Name)
	}

	addons := make([]order.ItemAddon, 0, len(addonIDs))
	for _, raw := range addonIDs {
		aid, err := uuid.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid addon_id %q: %w", raw, err)
		}
		addon, ok := product.AddonByID(aid)
		if !ok {
			return nil, nil, fmt.Errorf("addon %s does not belong to %q", raw, product.Name)
		}
		addons = append(addons, order.ItemAddon{
			AddonID: addon.ID,
			Name:    addon.Name,
			Price:   addon.Price,
		})
	}
	return product, addons, nil
}

// ensureCart lazily creates the conversation's cart on first use.
func ensureCart(ctx context.Context, tc *Context) (*order.Cart, error) {
	if tc.Conversation.CartID != nil {
		return tc.Orders.Cart(ctx, *tc.Conversation.CartID)
	}
	cart, err := tc.Orders.CreateCart(ctx, tc.Key)
	if err != nil {
		return nil, fmt.Errorf("creating cart: %w", err)
	}
	tc.Conversation.CartID = &cart.ID
	return cart, nil
}

func requireCart(tc *Context) (uuid.UUID, error) {
	if tc.Conversation.CartID == nil {
		return uuid.Nil, fmt.Errorf("conversation has no cart: %w", order.ErrCartNotFound)
	}
	return *tc.Conversation.CartID, nil
}

func viewCart(tc *Context, cart *order.Cart) cartView {
	v := cartView{
		Items:    make([]cartItemView, 0, len(cart.Items)),
		Subtotal: tc.Menu.FormatPrice(cart.Subtotal()),
	}
	for _, item := range cart.Items {
		iv := cartItemView{
			ItemID:    item.ID.String(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			Notes:     item.Notes,
			LineTotal: tc.Menu.FormatPrice(item.LineTotal()),
		}
		for _, a := range item.Addons {
			iv.Addons = append(iv.Addons, a.Name)
		}
		v.Items = append(v.Items, iv)
	}
	return v
}
