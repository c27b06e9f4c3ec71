package prompt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/session"
)

func testInput(state session.State) Input {
	return Input{
		State:          state,
		RestaurantName: "Pizzaria Bella",
		Language:       "pt-PT",
		Menu: &catalog.Menu{
			RestaurantName: "Pizzaria Bella",
			Categories: []catalog.Category{{
				Name: "Pizzas",
				Products: []catalog.Product{
					{
						Name:        "Pizza Margherita",
						Price:       950,
						Description: "molho de tomate, mozzarella",
						Available:   true,
						Addons:      []catalog.Addon{{Name: "Extra queijo", Price: 150, Available: true}},
					},
					{Name: "Pizza Quatro Queijos", Price: 1200, Available: false},
				},
			}},
		},
	}
}

func TestCompileDeterministic(t *testing.T) {
	in := testInput(session.StateBrowsingMenu)
	first := Compile(in)
	second := Compile(in)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Compile() not deterministic (-first +second):\n%s", diff)
	}
}

func TestCompileBaseRules(t *testing.T) {
	out := Compile(testInput(session.StateIdle))

	for _, want := range []string{
		"Pizzaria Bella",
		"Always reply in pt-PT.",
		"Never invent products, prices, or availability.",
		"Pizza Margherita: €9.50",
		"Extra queijo: €1.50",
		"Current conversation state: idle",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Compile() missing %q", want)
		}
	}

	// Unavailable products never reach the model.
	if strings.Contains(out, "Quatro Queijos") {
		t.Error("Compile() included an unavailable product")
	}
}

func TestCompileStateGuidance(t *testing.T) {
	tests := []struct {
		state session.State
		want  string
	}{
		{session.StateIdle, "stage_pending_items"},
		{session.StateBrowsingMenu, "search_menu"},
		{session.StateChoosingAddons, "add_to_cart"},
		{session.StateConfirmingItem, "show_cart"},
		{session.StateCollectingAddress, "validate_and_set_delivery_address"},
		{session.StateCollectingPayment, "set_payment_method"},
		{session.StateConfirmingOrder, "finalize_order"},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			out := Compile(testInput(tt.state))
			if !strings.Contains(out, tt.want) {
				t.Errorf("Compile(%s) missing tool mention %q", tt.state, tt.want)
			}
			if !strings.Contains(out, "Current conversation state: "+string(tt.state)) {
				t.Errorf("Compile(%s) missing state header", tt.state)
			}
		})
	}
}

func TestCompileLegalNextStates(t *testing.T) {
	out := Compile(testInput(session.StateConfirmingOrder))
	if !strings.Contains(out, "Legal next states: order_completed, browsing_menu, collecting_payment.") {
		t.Errorf("Compile() missing legal next states, got:\n%s", out)
	}
}

func TestCompileCartAndTotals(t *testing.T) {
	in := testInput(session.StateConfirmingOrder)
	in.DeliveryFee = 300
	in.Cart = &order.Cart{
		ID: uuid.New(),
		Items: []order.CartItem{
			{
				Name:      "Pizza Margherita",
				UnitPrice: 950,
				Quantity:  2,
				Notes:     "sem manjericao",
				Addons:    []order.ItemAddon{{Name: "Extra queijo", Price: 150}},
			},
		},
	}

	out := Compile(in)
	for _, want := range []string{
		"2x Pizza Margherita + Extra queijo (sem manjericao) = €22.00",
		"Subtotal: €22.00",
		"Delivery fee: €3.00",
		"Total: €25.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Compile() missing %q, got:\n%s", want, out)
		}
	}
}

func TestCompilePendingAndHint(t *testing.T) {
	in := testInput(session.StateBrowsingMenu)
	in.Pending = []order.PendingItem{{Name: "Pizza Calabresa", Quantity: 2}}
	in.Hint = "Customer is ready to check out."

	out := Compile(in)
	if !strings.Contains(out, "Items awaiting confirmation:") ||
		!strings.Contains(out, "2x Pizza Calabresa") {
		t.Errorf("Compile() missing pending section:\n%s", out)
	}
	if !strings.Contains(out, "Guidance for this turn: Customer is ready to check out.") {
		t.Errorf("Compile() missing hint:\n%s", out)
	}
}

func TestCompileEmptyMenuAndCart(t *testing.T) {
	out := Compile(Input{State: session.StateIdle, RestaurantName: "Bella"})
	if !strings.Contains(out, "Menu: (no menu loaded)") {
		t.Error("Compile() missing empty-menu marker")
	}
	if !strings.Contains(out, "Cart: empty.") {
		t.Error("Compile() missing empty-cart marker")
	}
}
