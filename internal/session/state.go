// Package session tracks the dialogue state of one customer conversation.
//
// One conversation exists per (restaurant, customer phone) pair. States form
// the ordering funnel; the engine decides transitions from the tool calls it
// executed, and this package defines which transitions are legal.
package session

// State is one value of the dialogue finite state machine.
type State string

const (
	StateIdle              State = "idle"
	StateBrowsingMenu      State = "browsing_menu"
	StateAddingItem        State = "adding_item"
	StateChoosingAddons    State = "choosing_addons"
	StateConfirmingItem    State = "confirming_item"
	StateCollectingAddress State = "collecting_address"
	StateCollectingPayment State = "collecting_payment"
	StateConfirmingOrder   State = "confirming_order"
	StateOrderCompleted    State = "order_completed"
)

// transitions is the legal next-state table. order_completed always returns
// to idle for the next order; confirming_item can loop back to browsing_menu
// (add more) or advance to collecting_address (checkout); confirming_order
// regresses to browsing_menu on rejection. choosing_addons is skipped when
// the chosen product has no addons.
var transitions = map[State][]State{
	StateIdle:              {StateBrowsingMenu},
	StateBrowsingMenu:      {StateAddingItem, StateConfirmingItem, StateIdle},
	StateAddingItem:        {StateChoosingAddons, StateConfirmingItem, StateBrowsingMenu},
	StateChoosingAddons:    {StateConfirmingItem, StateAddingItem},
	StateConfirmingItem:    {StateBrowsingMenu, StateAddingItem, StateCollectingAddress},
	StateCollectingAddress: {StateCollectingPayment, StateConfirmingItem},
	StateCollectingPayment: {StateConfirmingOrder, StateCollectingAddress},
	StateConfirmingOrder:   {StateOrderCompleted, StateBrowsingMenu, StateCollectingPayment},
	StateOrderCompleted:    {StateIdle},
}

// Valid reports whether s is a known dialogue state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is legal.
// Staying in the same state is always legal.
func (s State) CanTransition(next State) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// NextStates returns the legal successor states of s, used by the prompt
// compiler to tell the model where the conversation may go.
func (s State) NextStates() []State {
	out := make([]State, len(transitions[s]))
	copy(out, transitions[s])
	return out
}
