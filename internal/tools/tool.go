// Package tools provides the order tool registry exposed to the LLM.
//
// Tools carry metadata (name, description, input schema) and execution
// logic. The engine executes tool calls itself after the model returns
// them, so the Genkit registration only supplies schemas; the run
// functions registered there are never invoked.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/search"
	"github.com/garcomlabs/garcom/internal/session"
)

// AddressResult is what the delivery-zone validator returns for an address.
type AddressResult struct {
	Valid            bool    `json:"valid"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Fee              int64   `json:"fee_cents,omitempty"`
	ETAMinutes       int     `json:"eta_minutes,omitempty"`
	DistanceKM       float64 `json:"distance_km,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// AddressValidator resolves and validates a delivery address against the
// restaurant's delivery zone. Geocoding details are the implementation's
// concern.
type AddressValidator interface {
	Validate(ctx context.Context, restaurantID string, address string) (*AddressResult, error)
}

// Context carries the per-turn dependencies and mutable state a tool
// handler may touch. The engine builds one per turn; handlers mutate
// Conversation in memory and record what they did in Effects, and the
// engine persists both once the turn completes.
type Context struct {
	Key          session.Key
	Conversation *session.Conversation
	Menu         *catalog.Menu
	Search       *search.Index
	Sessions     session.Store
	Orders       order.Store
	Validator    AddressValidator
	Behavior     config.BehaviorConfig
	Clock        func() time.Time
	Logger       log.Logger

	Effects Effects
}

// Now returns the turn's notion of current time.
func (tc *Context) Now() time.Time {
	if tc.Clock != nil {
		return tc.Clock()
	}
	return time.Now()
}

// Handler is the type-erased execution function of a tool.
type Handler func(ctx context.Context, tc *Context, input any) (any, error)

// Definition is a registered tool: metadata plus execution logic. The
// attach closure registers the tool's typed schema with Genkit.
type Definition struct {
	name        string
	description string
	handler     Handler
	attach      func(g *genkit.Genkit, description string)
}

// Name returns the tool's unique identifier.
func (d *Definition) Name() string { return d.name }

// Description returns the text the LLM uses to decide when to call the tool.
func (d *Definition) Description() string { return d.description }

// Execute runs the tool against the turn context.
func (d *Definition) Execute(ctx context.Context, tc *Context, input any) (any, error) {
	return d.handler(ctx, tc, input)
}

// NewTool creates a tool with type-safe input and output handling.
// Type erasure happens internally so heterogeneous tools can share one
// registry; the model passes map[string]any, converted via JSON.
func NewTool[In, Out any](
	name string,
	description string,
	handler func(ctx context.Context, tc *Context, input In) (Out, error),
) *Definition {
	var zeroIn In

	erased := func(ctx context.Context, tc *Context, input any) (any, error) {
		if typed, ok := input.(In); ok {
			return handler(ctx, tc, typed)
		}

		jsonBytes, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("marshaling input: %w", err)
		}
		var typed In
		if err := json.Unmarshal(jsonBytes, &typed); err != nil {
			return nil, fmt.Errorf("invalid input: expected %T, got %T: %w", zeroIn, input, err)
		}
		return handler(ctx, tc, typed)
	}

	attach := func(g *genkit.Genkit, desc string) {
		// Schema-only registration. WithReturnToolRequests keeps Genkit
		// from ever calling this run function; the engine owns execution.
		genkit.DefineTool(g, name, desc,
			func(_ *ai.ToolContext, _ In) (Out, error) {
				var zero Out
				return zero, fmt.Errorf("tool %s must be executed by the session engine", name)
			})
	}

	return &Definition{
		name:        name,
		description: description,
		handler:     erased,
		attach:      attach,
	}
}
