// Package engine implements the order session engine: one compiled turn in,
// one reply out, with every state change flowing through tool execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/intent"
	"github.com/garcomlabs/garcom/internal/llm"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/offer"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/policy"
	"github.com/garcomlabs/garcom/internal/prompt"
	"github.com/garcomlabs/garcom/internal/search"
	"github.com/garcomlabs/garcom/internal/session"
	"github.com/garcomlabs/garcom/internal/tools"
)

// TurnResult is the outcome of processing one compiled turn.
type TurnResult struct {
	// Reply is the model's prose answer for the customer.
	Reply string

	// StateAfter is the dialogue state the conversation ended the turn in.
	StateAfter session.State

	// SideEffects records which cart and session mutations happened.
	SideEffects tools.Effects

	// Rejected lists tool calls the model requested outside its allow-list
	// or that were unknown to the registry. They were skipped, not run.
	Rejected []string

	// Offered is the product the reply actively offers, when detected.
	Offered *catalog.Product
}

// Config wires the engine's collaborators. Provider, Classifier, Policy,
// Registry, Sessions, Orders, and Catalog are required.
type Config struct {
	Provider   llm.Provider
	Classifier intent.Classifier
	Policy     *policy.Policy
	Registry   *tools.Registry
	Sessions   session.Store
	Orders     order.Store
	Catalog    catalog.Store
	Validator  tools.AddressValidator
	Behavior   config.BehaviorConfig
	Language   string
	Clock      func() time.Time
	Logger     log.Logger
}

// Engine runs the per-turn protocol: load conversation, classify intent,
// resolve the tool allow-list, generate, execute tool calls, derive the
// next state, persist.
type Engine struct {
	provider   llm.Provider
	classifier intent.Classifier
	policy     *policy.Policy
	registry   *tools.Registry
	sessions   session.Store
	orders     order.Store
	catalog    catalog.Store
	validator  tools.AddressValidator
	behavior   config.BehaviorConfig
	detector   *offer.Detector
	language   string
	clock      func() time.Time
	logger     log.Logger
}

// New creates an engine from the given collaborators.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Provider == nil:
		return nil, errors.New("engine: provider is required")
	case cfg.Classifier == nil:
		return nil, errors.New("engine: classifier is required")
	case cfg.Policy == nil:
		return nil, errors.New("engine: policy is required")
	case cfg.Registry == nil:
		return nil, errors.New("engine: tool registry is required")
	case cfg.Sessions == nil:
		return nil, errors.New("engine: session store is required")
	case cfg.Orders == nil:
		return nil, errors.New("engine: order store is required")
	case cfg.Catalog == nil:
		return nil, errors.New("engine: catalog store is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Engine{
		provider:   cfg.Provider,
		classifier: cfg.Classifier,
		policy:     cfg.Policy,
		registry:   cfg.Registry,
		sessions:   cfg.Sessions,
		orders:     cfg.Orders,
		catalog:    cfg.Catalog,
		validator:  cfg.Validator,
		behavior:   cfg.Behavior,
		detector:   offer.NewDetector(),
		language:   cfg.Language,
		clock:      clock,
		logger:     logger.With("component", "engine"),
	}, nil
}

// ProcessTurn runs one compiled turn for the conversation key. A model
// failure aborts the turn with the state unchanged; tool execution failures
// are contained to the failing call.
func (e *Engine) ProcessTurn(ctx context.Context, key session.Key, turn string) (*TurnResult, error) {
	conv, err := e.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	conv, err = e.resetIfStale(ctx, key, conv)
	if err != nil {
		return nil, err
	}
	stateBefore := conv.State

	menu, err := e.catalog.Menu(ctx, key.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("loading menu: %w", err)
	}

	turnIntent, err := e.classifier.Classify(ctx, turn, conv.State)
	if err != nil {
		e.logger.Warn("intent classification failed, treating as unknown",
			"key", key.String(), "error", err)
		turnIntent = intent.IntentUnknown
	}
	resolution := e.policy.ResolveAllowedTools(turnIntent)

	cart, pending, err := e.loadCartState(ctx, key, conv)
	if err != nil {
		return nil, err
	}

	system := prompt.Compile(prompt.Input{
		State:          conv.State,
		RestaurantName: menu.RestaurantName,
		Language:       e.language,
		Currency:       menu.Currency,
		Menu:           menu,
		Cart:           cart,
		Pending:        pending,
		DeliveryFee:    conv.DeliveryFee,
		Hint:           resolution.Hint,
	})

	resp, err := e.provider.Generate(ctx, &llm.Request{
		System:    system,
		Turn:      turn,
		ToolNames: resolution.Names(),
	})
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	tc := &tools.Context{
		Key:          key,
		Conversation: conv,
		Menu:         menu,
		Search:       search.NewIndex(menu),
		Sessions:     e.sessions,
		Orders:       e.orders,
		Validator:    e.validator,
		Behavior:     e.behavior,
		Clock:        e.clock,
		Logger:       e.logger,
	}
	rejected := e.executeToolCalls(ctx, tc, resolution, resp.ToolCalls)

	stateAfter := e.deriveState(ctx, stateBefore, turnIntent, &tc.Effects, tc)
	if err := e.persist(ctx, key, conv, stateAfter, &tc.Effects); err != nil {
		return nil, err
	}

	result := &TurnResult{
		Reply:       resp.Text,
		StateAfter:  stateAfter,
		SideEffects: tc.Effects,
		Rejected:    rejected,
	}
	if resp.Text != "" {
		if offered := e.detector.DetectOfferedProduct(resp.Text, menu.Products()); offered != nil {
			result.Offered = offered
			e.logger.Info("product offered in reply",
				"key", key.String(),
				"product_id", offered.ID,
				"product", offered.Name)
		}
	}

	e.logger.Info("turn processed",
		"key", key.String(),
		"intent", turnIntent,
		"state_before", stateBefore,
		"state_after", stateAfter,
		"tool_calls", len(resp.ToolCalls),
		"rejected", len(rejected))

	return result, nil
}

// resetIfStale restarts a conversation from idle when it sat untouched past
// the configured TTL. The abandoned cart stays in storage but is detached so
// the customer starts the new session clean.
func (e *Engine) resetIfStale(ctx context.Context, key session.Key, conv *session.Conversation) (*session.Conversation, error) {
	ttl := time.Duration(e.behavior.SessionTTLMinutes) * time.Minute
	if ttl <= 0 || conv.State == session.StateIdle {
		return conv, nil
	}
	idle := e.clock().Sub(conv.UpdatedAt)
	if idle <= ttl {
		return conv, nil
	}

	e.logger.Info("stale conversation reset",
		"key", key.String(),
		"state", conv.State,
		"idle", idle.Round(time.Second))
	if err := e.sessions.Reset(ctx, key); err != nil {
		return nil, fmt.Errorf("resetting stale conversation: %w", err)
	}
	fresh, err := e.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reloading conversation: %w", err)
	}
	return fresh, nil
}

// loadCartState reads the cart (when attached) and the live pending items
// so the prompt reflects exactly what the customer has built so far.
func (e *Engine) loadCartState(ctx context.Context, key session.Key, conv *session.Conversation) (*order.Cart, []order.PendingItem, error) {
	var cart *order.Cart
	if conv.CartID != nil {
		c, err := e.orders.Cart(ctx, *conv.CartID)
		switch {
		case errors.Is(err, order.ErrCartNotFound):
			// Stale reference, drop it and carry on with no cart.
			conv.CartID = nil
		case err != nil:
			return nil, nil, fmt.Errorf("loading cart: %w", err)
		default:
			cart = c
		}
	}

	pending, err := e.orders.PendingItems(ctx, key, e.clock())
	if err != nil {
		return nil, nil, fmt.Errorf("loading pending items: %w", err)
	}
	return cart, pending, nil
}

// executeToolCalls runs the model's requested calls under the turn's
// allow-list. Out-of-set or unknown calls are contract violations: skipped
// and reported, never executed. A failing call does not stop later calls.
func (e *Engine) executeToolCalls(ctx context.Context, tc *tools.Context, res *policy.Resolution, calls []llm.ToolCall) []string {
	var rejected []string
	for _, call := range calls {
		if !res.Allowed(call.Name) {
			e.logger.Warn("model requested tool outside allow-list",
				"key", tc.Key.String(), "tool", call.Name)
			rejected = append(rejected, call.Name)
			continue
		}
		def, ok := e.registry.Lookup(call.Name)
		if !ok {
			e.logger.Warn("model requested unknown tool",
				"key", tc.Key.String(), "tool", call.Name)
			rejected = append(rejected, call.Name)
			continue
		}

		if _, err := def.Execute(ctx, tc, call.Input); err != nil {
			e.logger.Warn("tool execution failed",
				"key", tc.Key.String(), "tool", call.Name, "error", err)
		}
	}
	return rejected
}

// deriveState maps the turn's executed effects, with the classified intent
// as a tiebreaker, onto the next dialogue state. Tool effects are ground
// truth: a derived state is applied even when it skips intermediate states.
func (e *Engine) deriveState(ctx context.Context, current session.State, turnIntent string, eff *tools.Effects, tc *tools.Context) session.State {
	next := current

	switch {
	case eff.Reset:
		next = session.StateIdle

	case eff.Finalized:
		next = session.StateOrderCompleted

	case eff.PaymentSet:
		next = session.StateConfirmingOrder

	case eff.AddressValidated:
		next = session.StateCollectingPayment

	case eff.AddressRejected:
		next = session.StateCollectingAddress

	case eff.Confirmed:
		// Staged items landed in the cart. Checkout intent moves straight
		// to address collection, anything else invites more browsing.
		if turnIntent == intent.IntentCheckout {
			next = session.StateCollectingAddress
		} else {
			next = session.StateBrowsingMenu
		}

	case eff.Staged:
		next = session.StateConfirmingItem

	case len(eff.Added) > 0:
		last := eff.Added[len(eff.Added)-1]
		if last.HasAddons && !last.Chosen {
			next = session.StateChoosingAddons
		} else {
			next = session.StateConfirmingItem
		}

	case turnIntent == intent.IntentCheckout && cartHasItems(ctx, tc):
		next = session.StateCollectingAddress

	case turnIntent == intent.IntentConfirm &&
		current == session.StateConfirmingItem && cartHasItems(ctx, tc):
		// Bare agreement on the offered item moves the order to checkout.
		next = session.StateCollectingAddress

	case turnIntent == intent.IntentCancel && current == session.StateConfirmingOrder:
		// Order rejected at the final confirmation.
		next = session.StateBrowsingMenu

	case current == session.StateIdle:
		// First contact wakes the conversation up.
		next = session.StateBrowsingMenu
	}

	if next != current && !current.CanTransition(next) {
		e.logger.Debug("state transition skips intermediate states",
			"from", current, "to", next)
	}
	return next
}

func cartHasItems(ctx context.Context, tc *tools.Context) bool {
	if tc.Conversation.CartID == nil {
		return false
	}
	cart, err := tc.Orders.Cart(ctx, *tc.Conversation.CartID)
	if err != nil {
		return false
	}
	return len(cart.Items) > 0
}

// persist writes the turn's conversation changes. A reset already wrote the
// idle row inside the tool; a finalized order resets for the next one.
func (e *Engine) persist(ctx context.Context, key session.Key, conv *session.Conversation, next session.State, eff *tools.Effects) error {
	if eff.Reset {
		return nil
	}
	if eff.Finalized {
		// order_completed always returns to idle for the next order.
		if err := e.sessions.Reset(ctx, key); err != nil {
			return fmt.Errorf("resetting conversation after order: %w", err)
		}
		return nil
	}

	conv.State = next
	if err := e.sessions.Update(ctx, conv); err != nil {
		return fmt.Errorf("persisting conversation: %w", err)
	}
	return nil
}
