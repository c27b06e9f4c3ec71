package policy

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/tools"
)

func testPolicy() *Policy {
	cfg := config.OrchestrationConfig{Intents: map[string]config.IntentPolicy{
		"order_item": {
			AllowedTools: []string{tools.NameSearchMenu, tools.NameAddToCart, tools.NameShowCart},
			DecisionHint: "The customer wants to order something.",
		},
		"checkout": {
			AllowedTools: []string{
				tools.NameShowCart,
				tools.NameValidateAddress,
				tools.NameSetPayment,
				tools.NameFinalizeOrder,
			},
		},
		"broken": {
			AllowedTools: []string{tools.NameSearchMenu, "imaginary_tool"},
		},
	}}
	return New(cfg, tools.NewDefaultRegistry(), log.NewNop())
}

func TestResolveAllowedTools(t *testing.T) {
	p := testPolicy()

	res := p.ResolveAllowedTools("order_item")
	want := []string{tools.NameSearchMenu, tools.NameAddToCart, tools.NameShowCart}
	if diff := cmp.Diff(want, res.Names()); diff != "" {
		t.Errorf("ResolveAllowedTools(order_item) mismatch (-want +got):\n%s", diff)
	}
	if res.Hint != "The customer wants to order something." {
		t.Errorf("hint = %q", res.Hint)
	}

	if !res.Allowed(tools.NameAddToCart) {
		t.Error("add_to_cart should be allowed for order_item")
	}
	if res.Allowed(tools.NameFinalizeOrder) {
		t.Error("finalize_order must not be allowed for order_item")
	}
}

func TestResolveUnknownIntentFailsClosed(t *testing.T) {
	p := testPolicy()

	res := p.ResolveAllowedTools("smalltalk")
	want := []string{tools.NameSearchMenu, tools.NameShowCart}
	if diff := cmp.Diff(want, res.Names()); diff != "" {
		t.Errorf("unknown intent tool set mismatch (-want +got):\n%s", diff)
	}
	if res.Allowed(tools.NameAddToCart) {
		t.Error("unknown intent must never expose mutating tools")
	}
}

func TestUnknownToolDroppedAtBuild(t *testing.T) {
	p := testPolicy()

	res := p.ResolveAllowedTools("broken")
	want := []string{tools.NameSearchMenu}
	if diff := cmp.Diff(want, res.Names()); diff != "" {
		t.Errorf("broken intent tool set mismatch (-want +got):\n%s", diff)
	}
}
