// Package prompt compiles the system instructions for one dialogue turn.
//
// Compile is a pure function of its input. Given the same state, menu, and
// cart it always produces the same text, which is what makes it the easiest
// seam in the engine to test exhaustively.
package prompt

import (
	"fmt"
	"strings"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/session"
)

// Input carries everything the compiler may embed in the instructions.
type Input struct {
	State          session.State
	RestaurantName string
	Language       string // BCP 47 tag or plain name, e.g. "pt-PT"
	Currency       string // symbol prefixed to prices, defaults to "€"
	Menu           *catalog.Menu
	Cart           *order.Cart
	Pending        []order.PendingItem
	DeliveryFee    int64
	Hint           string // decision hint from the orchestration policy
}

// Compile renders the full system instructions for the given turn.
func Compile(in Input) string {
	if in.Currency == "" {
		in.Currency = "€"
	}
	if in.Language == "" {
		in.Language = "pt-PT"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "You are the ordering assistant for %s.\n\n", in.RestaurantName)

	b.WriteString("Rules that apply in every state:\n")
	fmt.Fprintf(&b, "- Always reply in %s.\n", in.Language)
	b.WriteString("- Never invent products, prices, or availability. Use only the menu below.\n")
	b.WriteString("- If a customer asks for something not on the menu, say so and suggest the closest item via search_menu.\n")
	b.WriteString("- Quote prices exactly as listed.\n\n")

	writeMenu(&b, in)
	writeCart(&b, in)
	writePending(&b, in)

	b.WriteString("Current conversation state: ")
	b.WriteString(string(in.State))
	b.WriteString("\n\n")
	b.WriteString(stateGuidance(in.State))

	if next := in.State.NextStates(); len(next) > 0 {
		b.WriteString("\nLegal next states: ")
		names := make([]string, len(next))
		for i, s := range next {
			names[i] = string(s)
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(".\n")
	}

	if in.Hint != "" {
		b.WriteString("\nGuidance for this turn: ")
		b.WriteString(in.Hint)
		b.WriteString("\n")
	}

	return b.String()
}

func writeMenu(b *strings.Builder, in Input) {
	if in.Menu == nil || len(in.Menu.Categories) == 0 {
		b.WriteString("Menu: (no menu loaded)\n\n")
		return
	}
	b.WriteString("Menu:\n")
	for _, cat := range in.Menu.Categories {
		fmt.Fprintf(b, "## %s\n", cat.Name)
		for _, p := range cat.Products {
			if !p.Available {
				continue
			}
			fmt.Fprintf(b, "- %s: %s", p.Name, catalog.FormatPrice(in.Currency, p.Price))
			if p.Description != "" {
				fmt.Fprintf(b, " (%s)", p.Description)
			}
			b.WriteString("\n")
			for _, a := range p.Addons {
				fmt.Fprintf(b, "  + %s: %s\n", a.Name, catalog.FormatPrice(in.Currency, a.Price))
			}
		}
	}
	b.WriteString("\n")
}

func writeCart(b *strings.Builder, in Input) {
	if in.Cart == nil || len(in.Cart.Items) == 0 {
		b.WriteString("Cart: empty.\n\n")
		return
	}
	b.WriteString("Cart:\n")
	for _, item := range in.Cart.Items {
		fmt.Fprintf(b, "- %dx %s", item.Quantity, item.Name)
		for _, a := range item.Addons {
			fmt.Fprintf(b, " + %s", a.Name)
		}
		if item.Notes != "" {
			fmt.Fprintf(b, " (%s)", item.Notes)
		}
		fmt.Fprintf(b, " = %s\n", catalog.FormatPrice(in.Currency, item.LineTotal()))
	}
	fmt.Fprintf(b, "Subtotal: %s\n", catalog.FormatPrice(in.Currency, in.Cart.Subtotal()))
	if in.DeliveryFee > 0 {
		fmt.Fprintf(b, "Delivery fee: %s\n", catalog.FormatPrice(in.Currency, in.DeliveryFee))
		fmt.Fprintf(b, "Total: %s\n", catalog.FormatPrice(in.Currency, in.Cart.Subtotal()+in.DeliveryFee))
	}
	b.WriteString("\n")
}

func writePending(b *strings.Builder, in Input) {
	if len(in.Pending) == 0 {
		return
	}
	b.WriteString("Items awaiting confirmation:\n")
	for _, p := range in.Pending {
		fmt.Fprintf(b, "- %dx %s\n", p.Quantity, p.Name)
	}
	b.WriteString("\n")
}

func stateGuidance(s session.State) string {
	switch s {
	case session.StateIdle:
		return "Greet the customer and present the menu highlights. " +
			"When they name a product, call search_menu to resolve it. " +
			"If they list several items at once, call stage_pending_items."
	case session.StateBrowsingMenu:
		return "Help the customer choose. Use search_menu for every product the " +
			"customer names; never guess at names or prices. When they decide, " +
			"call add_to_cart with the resolved product."
	case session.StateAddingItem:
		return "The customer has chosen a product. If it has addons, list them " +
			"and ask which they want. Otherwise call add_to_cart now."
	case session.StateChoosingAddons:
		return "Resolve the addon selection, then call add_to_cart with the " +
			"chosen addons. If the customer declines addons, add the item plain."
	case session.StateConfirmingItem:
		return "Confirm the item just added and show the running subtotal with " +
			"show_cart. Ask whether they want anything else or to check out. " +
			"Do not call checkout tools yet."
	case session.StateCollectingAddress:
		return "Ask for the full delivery address. When the customer provides " +
			"one, call validate_and_set_delivery_address with the exact text. " +
			"If validation fails, relay the reason and ask again."
	case session.StateCollectingPayment:
		return "Ask how the customer wants to pay and call set_payment_method " +
			"with their choice. Offer only the methods the restaurant accepts."
	case session.StateConfirmingOrder:
		return "Read back the complete order with address, payment method, and " +
			"total. On an explicit yes, call finalize_order. On a no, ask what " +
			"to change and go back to the cart. Never finalize without an " +
			"explicit confirmation."
	case session.StateOrderCompleted:
		return "The order is placed. Thank the customer, give the order summary, " +
			"and let them know they can start a new order anytime."
	default:
		return "Help the customer with their order using the tools available."
	}
}
