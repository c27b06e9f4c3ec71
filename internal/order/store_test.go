package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() Key {
	return Key{RestaurantID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Phone: "+351912345678"}
}

func TestCartLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	cart, err := store.CreateCart(ctx, testKey())
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.False(t, cart.Closed)

	cart, err = store.AddItem(ctx, cart.ID, CartItem{
		ProductID: uuid.New(),
		Name:      "Pizza Margherita",
		UnitPrice: 950,
		Quantity:  2,
		Addons:    []ItemAddon{{AddonID: uuid.New(), Name: "Extra queijo", Price: 150}},
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64((950+150)*2), cart.Items[0].LineTotal())
	assert.Equal(t, int64(2200), cart.Subtotal())

	cart, err = store.AddItem(ctx, cart.ID, CartItem{
		ProductID: uuid.New(),
		Name:      "Coca-Cola",
		UnitPrice: 250,
		Quantity:  1,
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, int64(2450), cart.Subtotal())

	cart, err = store.UpdateQuantity(ctx, cart.ID, cart.Items[1].ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2950), cart.Subtotal())

	cart, err = store.RemoveItem(ctx, cart.ID, cart.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Coca-Cola", cart.Items[0].Name)
}

func TestUpdateQuantityRejectsBelowOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	cart, err := store.CreateCart(ctx, testKey())
	require.NoError(t, err)
	cart, err = store.AddItem(ctx, cart.ID, CartItem{Name: "Pizza", UnitPrice: 900, Quantity: 1})
	require.NoError(t, err)

	_, err = store.UpdateQuantity(ctx, cart.ID, cart.Items[0].ID, 0)
	assert.Error(t, err)
}

func TestRemoveItemNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	cart, err := store.CreateCart(ctx, testKey())
	require.NoError(t, err)

	_, err = store.RemoveItem(ctx, cart.ID, uuid.New())
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestPendingItemExpiry(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return base })
	key := testKey()

	err := store.StagePending(ctx, key, []PendingItem{{
		Name:      "Pizza Calabresa",
		UnitPrice: 1050,
		Quantity:  1,
		ExpiresAt: base.Add(15 * time.Minute),
	}})
	require.NoError(t, err)

	// Fourteen minutes in, the item is still live.
	items, err := store.PendingItems(ctx, key, base.Add(14*time.Minute))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Pizza Calabresa", items[0].Name)

	// Sixteen minutes in, it has expired and is gone for good.
	items, err = store.PendingItems(ctx, key, base.Add(16*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, items)

	// Even asking again at an earlier time does not resurrect it.
	items, err = store.PendingItems(ctx, key, base.Add(14*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClearPending(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore(nil)
	key := testKey()

	err := store.StagePending(ctx, key, []PendingItem{
		{Name: "Pizza", UnitPrice: 900, Quantity: 1, ExpiresAt: now.Add(time.Hour)},
		{Name: "Cola", UnitPrice: 250, Quantity: 2, ExpiresAt: now.Add(time.Hour)},
	})
	require.NoError(t, err)

	require.NoError(t, store.ClearPending(ctx, key))

	items, err := store.PendingItems(ctx, key, now)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPendingToCartItem(t *testing.T) {
	p := PendingItem{
		ProductID: uuid.New(),
		Name:      "Pizza Margherita",
		UnitPrice: 950,
		Quantity:  2,
		Notes:     "sem manjericao",
		Addons:    []ItemAddon{{Name: "Extra queijo", Price: 150}},
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	item := p.ToCartItem()
	assert.NotEqual(t, uuid.Nil, item.ID)
	assert.Equal(t, p.ProductID, item.ProductID)
	assert.Equal(t, p.UnitPrice, item.UnitPrice)
	assert.Equal(t, p.Quantity, item.Quantity)
	assert.Equal(t, p.Notes, item.Notes)
	assert.Equal(t, int64(2200), item.LineTotal())
}

func TestCreateOrderClosesCart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	key := testKey()

	cart, err := store.CreateCart(ctx, key)
	require.NoError(t, err)
	cart, err = store.AddItem(ctx, cart.ID, CartItem{Name: "Pizza", UnitPrice: 950, Quantity: 1})
	require.NoError(t, err)

	o := &Order{
		CartID:        cart.ID,
		RestaurantID:  key.RestaurantID,
		Phone:         key.Phone,
		Items:         cart.Items,
		Subtotal:      cart.Subtotal(),
		DeliveryFee:   300,
		Total:         cart.Subtotal() + 300,
		Address:       "Rua das Flores 12, Lisboa",
		PaymentMethod: "mbway",
	}
	require.NoError(t, err)
	require.NoError(t, store.CreateOrder(ctx, o))
	assert.NotEqual(t, uuid.Nil, o.ID)

	got, ok := store.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1250), got.Total)

	// The cart is closed; further mutation and a second finalize both fail.
	_, err = store.AddItem(ctx, cart.ID, CartItem{Name: "Cola", UnitPrice: 250, Quantity: 1})
	assert.ErrorIs(t, err, ErrCartClosed)

	err = store.CreateOrder(ctx, &Order{CartID: cart.ID, Items: cart.Items})
	assert.ErrorIs(t, err, ErrCartClosed)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	cart, err := store.CreateCart(ctx, testKey())
	require.NoError(t, err)

	err = store.CreateOrder(ctx, &Order{CartID: cart.ID})
	assert.ErrorIs(t, err, ErrEmptyCart)
}
