package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/intent"
	"github.com/garcomlabs/garcom/internal/llm"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/policy"
	"github.com/garcomlabs/garcom/internal/session"
	"github.com/garcomlabs/garcom/internal/testutil"
	"github.com/garcomlabs/garcom/internal/tools"
)

var (
	restaurantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	margheritaID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	colaID       = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	cheeseID     = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
)

func testMenu() *catalog.Menu {
	return &catalog.Menu{
		RestaurantID:   restaurantID,
		RestaurantName: "Pizzaria Bella",
		Currency:       "€",
		Categories: []catalog.Category{
			{
				ID:   uuid.MustParse("cccccccc-0000-0000-0000-000000000001"),
				Name: "Pizzas",
				Products: []catalog.Product{
					{
						ID:        margheritaID,
						Name:      "Pizza Margherita",
						Price:     950,
						Available: true,
						Addons:    []catalog.Addon{{ID: cheeseID, Name: "Extra queijo", Price: 150, Available: true}},
					},
				},
			},
			{
				ID:   uuid.MustParse("cccccccc-0000-0000-0000-000000000002"),
				Name: "Bebidas",
				Products: []catalog.Product{
					{ID: colaID, Name: "Coca-Cola", Price: 250, Available: true},
				},
			},
		},
	}
}

func testOrchestration() config.OrchestrationConfig {
	return config.OrchestrationConfig{
		Intents: map[string]config.IntentPolicy{
			intent.IntentGreeting: {
				AllowedTools: []string{tools.NameSearchMenu, tools.NameShowCart},
				DecisionHint: "Greet warmly and offer the menu.",
			},
			intent.IntentBrowseMenu: {
				AllowedTools: []string{tools.NameSearchMenu, tools.NameShowCart},
			},
			intent.IntentOrderItem: {
				AllowedTools: []string{tools.NameSearchMenu, tools.NameAddToCart, tools.NameStagePending, tools.NameShowCart},
			},
			intent.IntentModifyCart: {
				AllowedTools: []string{tools.NameShowCart, tools.NameRemoveFromCart, tools.NameUpdateQuantity},
			},
			intent.IntentConfirm: {
				AllowedTools: []string{tools.NameConfirmPending, tools.NameAddToCart, tools.NameSetPayment, tools.NameFinalizeOrder},
			},
			intent.IntentCheckout: {
				AllowedTools: []string{tools.NameValidateAddress, tools.NameSetPayment, tools.NameFinalizeOrder, tools.NameShowCart},
			},
			intent.IntentCancel: {
				AllowedTools: []string{tools.NameResetConv, tools.NameClearPending},
			},
		},
	}
}

type harness struct {
	engine   *Engine
	provider *testutil.MockProvider
	sessions *session.MemoryStore
	orders   *order.MemoryStore
	key      session.Key
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{now: time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	catalogs := catalog.NewMemoryStore()
	catalogs.Put(testMenu())

	provider := testutil.NewMockProvider("Posso ajudar com mais alguma coisa?")
	registry := tools.NewDefaultRegistry()
	pol := policy.New(testOrchestration(), registry, log.NewNop())
	sessions := session.NewMemoryStore(clock)
	orders := order.NewMemoryStore(clock)

	e, err := New(Config{
		Provider:   provider,
		Classifier: intent.KeywordClassifier{},
		Policy:     pol,
		Registry:   registry,
		Sessions:   sessions,
		Orders:     orders,
		Catalog:    catalogs,
		Validator:  &FixedFeeValidator{Fee: 300, ETAMinutes: 35},
		Behavior: config.BehaviorConfig{
			PendingItems:      config.PendingItemsConfig{AllowMultiple: true, ExpirationMinutes: 15},
			SessionTTLMinutes: 120,
		},
		Language: "pt-PT",
		Clock:    clock,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)

	h.engine = e
	h.provider = provider
	h.sessions = sessions
	h.orders = orders
	h.key = session.Key{RestaurantID: restaurantID, Phone: "+351912345678"}
	return h
}

func TestProcessTurnAddsItemAndAdvancesState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("margherita",
		"Uma Pizza Margherita, 9,50 €. Deseja extra queijo?",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": margheritaID.String(),
			"quantity":   1,
		}})

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero uma pizza margherita")
	require.NoError(t, err)

	// The product offers addons and none were chosen yet.
	assert.Equal(t, session.StateChoosingAddons, result.StateAfter)
	assert.Empty(t, result.Rejected)
	require.Len(t, result.SideEffects.Added, 1)

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, session.StateChoosingAddons, conv.State)
	require.NotNil(t, conv.CartID)

	cart, err := h.orders.Cart(ctx, *conv.CartID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(950), cart.Subtotal())
}

func TestProcessTurnAddonFreeProductConfirmsDirectly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("coca",
		"Uma Coca-Cola adicionada.",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": colaID.String(),
		}})

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero uma coca-cola")
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmingItem, result.StateAfter)
}

func TestProcessTurnRejectsToolOutsideAllowList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A greeting turn only allows search_menu and show_cart; the scripted
	// model misbehaves and requests a cart mutation anyway.
	h.provider.AddToolResponse("boa noite",
		"Boa noite! Já adicionei uma pizza ao seu carrinho.",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": margheritaID.String(),
		}})

	result, err := h.engine.ProcessTurn(ctx, h.key, "boa noite")
	require.NoError(t, err)

	assert.Equal(t, []string{tools.NameAddToCart}, result.Rejected)
	assert.Empty(t, result.SideEffects.Added, "rejected call must not execute")
	assert.Equal(t, session.StateBrowsingMenu, result.StateAfter, "first contact leaves idle")

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Nil(t, conv.CartID)
}

func TestProcessTurnOnlyOffersAllowedToolSchema(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.ProcessTurn(ctx, h.key, "boa noite")
	require.NoError(t, err)

	call := h.provider.LastCall()
	require.NotNil(t, call)
	assert.ElementsMatch(t, []string{tools.NameSearchMenu, tools.NameShowCart}, call.ToolNames)
	assert.Contains(t, call.System, "Greet warmly and offer the menu.")
}

func TestProcessTurnUnknownIntentFailsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.ProcessTurn(ctx, h.key, "xyzzy")
	require.NoError(t, err)

	call := h.provider.LastCall()
	require.NotNil(t, call)
	assert.ElementsMatch(t, []string{tools.NameSearchMenu, tools.NameShowCart}, call.ToolNames)
}

func TestProcessTurnFullOrderFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("coca",
		"Coca-Cola adicionada. Deseja finalizar?",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": colaID.String(),
		}})
	h.provider.AddToolResponse("morada",
		"Morada confirmada. Taxa de entrega: 3,00 €. Como deseja pagar?",
		llm.ToolCall{Name: tools.NameValidateAddress, Input: map[string]any{
			"address": "Rua das Flores 123, 2º Esq, Lisboa",
		}})
	h.provider.AddToolResponse("mbway",
		"Pagamento por MB WAY registado. Confirma o pedido?",
		llm.ToolCall{Name: tools.NameSetPayment, Input: map[string]any{
			"method": "mbway",
		}})
	h.provider.AddToolResponse("confirmo",
		"Pedido confirmado! Entrega em cerca de 35 minutos.",
		llm.ToolCall{Name: tools.NameFinalizeOrder, Input: map[string]any{}})

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero uma coca-cola")
	require.NoError(t, err)
	require.Equal(t, session.StateConfirmingItem, result.StateAfter)

	result, err = h.engine.ProcessTurn(ctx, h.key, "quero finalizar, a minha morada é Rua das Flores")
	require.NoError(t, err)
	require.Equal(t, session.StateCollectingPayment, result.StateAfter)
	require.True(t, result.SideEffects.AddressValidated)

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, "Rua das Flores 123, 2º Esq, Lisboa", conv.Address)
	assert.Equal(t, int64(300), conv.DeliveryFee)

	result, err = h.engine.ProcessTurn(ctx, h.key, "pago com mbway")
	require.NoError(t, err)
	require.Equal(t, session.StateConfirmingOrder, result.StateAfter)

	result, err = h.engine.ProcessTurn(ctx, h.key, "sim, confirmo")
	require.NoError(t, err)
	assert.Equal(t, session.StateOrderCompleted, result.StateAfter)
	assert.True(t, result.SideEffects.Finalized)
	assert.NotEqual(t, uuid.Nil, result.SideEffects.OrderID)

	// The conversation resets to idle for the next order.
	conv, err = h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, conv.State)
	assert.Nil(t, conv.CartID)
	assert.Empty(t, conv.Address)
}

func TestProcessTurnModelFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.ProcessTurn(ctx, h.key, "boa noite")
	require.NoError(t, err)

	h.provider.FailWith(errors.New("model unavailable"))
	_, err = h.engine.ProcessTurn(ctx, h.key, "quero uma pizza")
	require.Error(t, err)

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, conv.State)
}

func TestProcessTurnToolFailureKeepsReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("quero",
		"Adicionei ao carrinho.",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": uuid.New().String(), // not on the menu
		}})

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero uma francesinha")
	require.NoError(t, err)
	assert.Equal(t, "Adicionei ao carrinho.", result.Reply)
	assert.Empty(t, result.SideEffects.Added)
	assert.Empty(t, result.Rejected, "an allowed call that fails is not a contract violation")
}

func TestProcessTurnDetectsOfferedProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddResponse("sugestão", "Temos a Pizza Margherita por €9.50, quer provar?")

	result, err := h.engine.ProcessTurn(ctx, h.key, "alguma sugestão?")
	require.NoError(t, err)
	require.NotNil(t, result.Offered)
	assert.Equal(t, margheritaID, result.Offered.ID)
}

func TestProcessTurnResetOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("coca", "Adicionado.",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": colaID.String(),
		}})
	h.provider.AddToolResponse("cancelar", "Pedido cancelado. Até à próxima!",
		llm.ToolCall{Name: tools.NameResetConv, Input: map[string]any{}})

	_, err := h.engine.ProcessTurn(ctx, h.key, "quero uma coca-cola")
	require.NoError(t, err)

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero cancelar tudo")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, result.StateAfter)
	assert.True(t, result.SideEffects.Reset)

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, conv.State)
	assert.Nil(t, conv.CartID)
}

func TestProcessTurnStagedMultiItemFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("margherita e uma coca",
		"Uma Pizza Margherita e uma Coca-Cola, confirma?",
		llm.ToolCall{Name: tools.NameStagePending, Input: map[string]any{
			"items": []any{
				map[string]any{"product_id": margheritaID.String()},
				map[string]any{"product_id": colaID.String()},
			},
		}})
	h.provider.AddToolResponse("sim",
		"Adicionado ao carrinho!",
		llm.ToolCall{Name: tools.NameConfirmPending, Input: map[string]any{}})

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero uma pizza margherita e uma coca-cola")
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmingItem, result.StateAfter)
	assert.True(t, result.SideEffects.Staged)

	result, err = h.engine.ProcessTurn(ctx, h.key, "sim")
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, result.StateAfter)
	assert.True(t, result.SideEffects.Confirmed)

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	require.NotNil(t, conv.CartID)
	cart, err := h.orders.Cart(ctx, *conv.CartID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, int64(1200), cart.Subtotal())
}

func TestProcessTurnBareConfirmationAdvancesToCheckout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("coca", "Uma Coca-Cola, 2,50 €. Confirma?",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": colaID.String(),
		}})
	h.provider.AddResponse("confirmar", "Perfeito! Qual é a morada de entrega?")

	result, err := h.engine.ProcessTurn(ctx, h.key, "quero uma coca-cola")
	require.NoError(t, err)
	require.Equal(t, session.StateConfirmingItem, result.StateAfter)

	// A bare "confirmar" with the item already in the cart moves the
	// order on to address collection even without a tool call.
	result, err = h.engine.ProcessTurn(ctx, h.key, "confirmar")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollectingAddress, result.StateAfter)
	assert.Empty(t, result.Rejected)
}

func TestProcessTurnStaleSessionRestartsFromIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.AddToolResponse("margherita", "Adicionada.",
		llm.ToolCall{Name: tools.NameAddToCart, Input: map[string]any{
			"product_id": margheritaID.String(),
		}})

	_, err := h.engine.ProcessTurn(ctx, h.key, "quero uma pizza margherita")
	require.NoError(t, err)

	// The customer walks away for three hours, past the two-hour TTL.
	h.now = h.now.Add(3 * time.Hour)

	result, err := h.engine.ProcessTurn(ctx, h.key, "boa noite")
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, result.StateAfter)

	conv, err := h.sessions.GetOrCreate(ctx, h.key)
	require.NoError(t, err)
	assert.Nil(t, conv.CartID)
}

func TestRunnerAdaptsEngineToDebounce(t *testing.T) {
	h := newHarness(t)
	runner := NewRunner(h.engine)

	reply, err := runner.Run(context.Background(), h.key, "boa noite")
	require.NoError(t, err)
	assert.Equal(t, "Posso ajudar com mais alguma coisa?", reply)
}
