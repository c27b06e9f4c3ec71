package config

// BehaviorConfig holds restaurant-level toggles read at session start.
type BehaviorConfig struct {
	// AutoLoadProfile loads the stored customer profile into the prompt.
	AutoLoadProfile bool `mapstructure:"auto_load_profile" json:"auto_load_profile"`

	// AutoUpdateProfile writes back profile changes learned during a turn.
	AutoUpdateProfile bool `mapstructure:"auto_update_profile" json:"auto_update_profile"`

	// PendingItems controls the multi-item staging area.
	PendingItems PendingItemsConfig `mapstructure:"pending_items" json:"pending_items"`

	// SessionTTLMinutes is the idle lifetime of a non-idle conversation.
	// A conversation untouched for longer restarts from idle on the next
	// inbound burst. Zero disables the check.
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes" json:"session_ttl_minutes"`
}

// PendingItemsConfig controls staged, unconfirmed cart additions.
type PendingItemsConfig struct {
	// AllowMultiple permits staging several items from one utterance.
	AllowMultiple bool `mapstructure:"allow_multiple" json:"allow_multiple"`

	// ExpirationMinutes is how long staged items live, in [1, 1440].
	ExpirationMinutes int `mapstructure:"expiration_minutes" json:"expiration_minutes"`
}

// IntentPolicy is the orchestration entry for one classified intent.
type IntentPolicy struct {
	// AllowedTools lists the tool names the LLM may be offered for this
	// intent. Names must exist in the tool registry.
	AllowedTools []string `mapstructure:"allowed_tools" json:"allowed_tools"`

	// DecisionHint is free text injected into the prompt for this intent.
	DecisionHint string `mapstructure:"decision_hint" json:"decision_hint"`
}

// OrchestrationConfig maps classified intents to tool allow-lists.
// An intent absent from the map falls back to a minimal default set at
// resolution time; it never falls open to all tools.
type OrchestrationConfig struct {
	Intents map[string]IntentPolicy `mapstructure:"intents" json:"intents"`

	// ToolOverrides replaces registry tool descriptions per restaurant.
	// Unknown names are dropped with a warning when the policy is built.
	ToolOverrides map[string]string `mapstructure:"tool_overrides" json:"tool_overrides"`
}

// DefaultOrchestration returns the built-in intent-to-tools mapping used
// when the configuration file defines none. Tool names mirror the registry.
func DefaultOrchestration() OrchestrationConfig {
	return OrchestrationConfig{
		Intents: map[string]IntentPolicy{
			"greeting": {
				AllowedTools: []string{"search_menu", "show_cart"},
				DecisionHint: "Greet the customer warmly and invite them to order.",
			},
			"browse_menu": {
				AllowedTools: []string{"search_menu", "show_cart"},
				DecisionHint: "Present matching products with prices; never invent items.",
			},
			"order_item": {
				AllowedTools: []string{"search_menu", "add_to_cart", "stage_pending_items", "show_cart"},
				DecisionHint: "Resolve the product via search before adding. Stage multiple items for confirmation.",
			},
			"modify_cart": {
				AllowedTools: []string{"show_cart", "remove_from_cart", "update_quantity"},
				DecisionHint: "Show the cart after every change.",
			},
			"confirm": {
				AllowedTools: []string{"confirm_pending_items", "add_to_cart", "set_payment_method", "finalize_order"},
				DecisionHint: "Apply what the customer just agreed to; do not add anything new.",
			},
			"checkout": {
				AllowedTools: []string{"validate_and_set_delivery_address", "set_payment_method", "finalize_order", "show_cart"},
				DecisionHint: "Collect address, then payment, then confirm the full order before finalizing.",
			},
			"cancel": {
				AllowedTools: []string{"reset_conversation", "clear_pending_items"},
				DecisionHint: "Confirm the cancellation politely and offer to start over.",
			},
		},
	}
}

// ValidateTools checks every tool name referenced by the orchestration
// config against the registry. It runs at configuration-save time so an
// unknown tool never surfaces as a runtime surprise.
func (o *OrchestrationConfig) ValidateTools(known func(name string) bool) error {
	for intent, policy := range o.Intents {
		if intent == "" {
			return ErrInvalidIntent
		}
		for _, tool := range policy.AllowedTools {
			if !known(tool) {
				return &UnknownToolError{Intent: intent, Tool: tool}
			}
		}
	}
	return nil
}
