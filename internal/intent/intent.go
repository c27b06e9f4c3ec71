// Package intent classifies a compiled customer turn into one of the
// orchestration intents.
package intent

import (
	"context"
	"strings"

	"github.com/garcomlabs/garcom/internal/search"
	"github.com/garcomlabs/garcom/internal/session"
)

// Well-known intent names used by the default orchestration config.
const (
	IntentGreeting   = "greeting"
	IntentBrowseMenu = "browse_menu"
	IntentOrderItem  = "order_item"
	IntentModifyCart = "modify_cart"
	IntentCheckout   = "checkout"
	IntentConfirm    = "confirm"
	IntentCancel     = "cancel"
	IntentUnknown    = "unknown"
)

// Classifier maps a compiled turn to an intent name. Implementations may
// be as simple as keyword matching or as heavy as a dedicated model call.
type Classifier interface {
	Classify(ctx context.Context, turn string, state session.State) (string, error)
}

// KeywordClassifier is the default heuristic classifier. It normalizes the
// turn the same way the search index does and scans Portuguese and English
// keyword groups, letting the conversation state break ties.
type KeywordClassifier struct{}

// Classify implements Classifier. It never fails.
func (KeywordClassifier) Classify(_ context.Context, turn string, state session.State) (string, error) {
	text := " " + search.Normalize(turn) + " "

	switch {
	case containsAny(text, "cancelar", "recomecar", "comecar de novo", "esquece",
		"cancel", "start over", "never mind", "reset"):
		return IntentCancel, nil

	case containsAny(text, "finalizar", "fechar pedido", "e so isso", "mais nada",
		"checkout", "that's all", "thats all", "nothing else", "finish"):
		return IntentCheckout, nil

	case containsAny(text, "remover", "tirar", "apagar", "remove", "delete",
		"em vez de", "trocar", "change", "instead"):
		return IntentModifyCart, nil

	case state == session.StateConfirmingOrder || state == session.StateConfirmingItem:
		// Bare agreement only matters while something awaits confirmation.
		if containsAny(text, " sim ", " pode ser ", " confirmo ", " confirmar ",
			" confirma ", " isso ", " yes ", " confirm ", " correct ", " ok ") {
			return IntentConfirm, nil
		}
		return IntentOrderItem, nil

	case state == session.StateCollectingAddress, state == session.StateCollectingPayment:
		return IntentCheckout, nil

	case containsAny(text, "quero", "queria", "me ve", "manda", "adiciona",
		"i want", "i'd like", "give me", "add", "mais um", "mais uma"):
		return IntentOrderItem, nil

	case containsAny(text, "menu", "cardapio", "o que tem", "o que voces tem",
		"what do you have", "options", "precos"):
		return IntentBrowseMenu, nil

	case containsAny(text, "ola", "oi", "boa tarde", "boa noite", "bom dia",
		"hello", "hi ", "hey"):
		return IntentGreeting, nil
	}

	return IntentUnknown, nil
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
