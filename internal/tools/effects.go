package tools

import "github.com/google/uuid"

// AddedItem records one successful add_to_cart execution.
type AddedItem struct {
	ProductID uuid.UUID
	HasAddons bool // the product offers addons
	Chosen    bool // addons were part of this call
}

// Effects accumulates what the tool calls of one turn actually did.
// The engine derives the next conversation state from them; a tool that
// fails records nothing.
type Effects struct {
	Added            []AddedItem
	Removed          bool
	QuantityUpdated  bool
	CartShown        bool
	Staged           bool
	Confirmed        bool
	PendingCleared   bool
	AddressValidated bool
	AddressRejected  bool
	PaymentSet       bool
	Finalized        bool
	OrderID          uuid.UUID
	Reset            bool
}

// Any reports whether at least one state-relevant effect occurred.
func (e *Effects) Any() bool {
	return len(e.Added) > 0 || e.Removed || e.QuantityUpdated || e.CartShown ||
		e.Staged || e.Confirmed || e.PendingCleared || e.AddressValidated ||
		e.AddressRejected || e.PaymentSet || e.Finalized || e.Reset
}
