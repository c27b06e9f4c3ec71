// Package offer classifies an assistant reply to detect whether it is
// actively offering a specific product, for analytics and upsell tracking.
//
// This is a heuristic: false negatives (missed offers) are acceptable, but a
// refusal must never be labeled as an offer, so negation overrides every
// positive pattern. Pattern lists are injectable so the heuristic can be
// replaced by a proper NLP classifier later.
package offer

import (
	"regexp"
	"strings"

	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/search"
)

// priceProximity is how close (in characters) a currency symbol must be to a
// product name mention to count as a price-adjacency offer.
const priceProximity = 20

// offerProximity is how close (in characters) an offering phrase must be to
// the product name mention it is credited to. Wide enough for a sentence,
// narrow enough that phrasing in a different sentence about a different
// product does not bleed over.
const offerProximity = 60

// Detector scans replies for active product offers.
type Detector struct {
	negations []*regexp.Regexp
	positives []*regexp.Regexp
}

// Option customizes detector construction.
type Option func(*Detector)

// WithNegations replaces the default negation pattern list.
func WithNegations(patterns []*regexp.Regexp) Option {
	return func(d *Detector) { d.negations = patterns }
}

// WithPositives replaces the default positive pattern list.
func WithPositives(patterns []*regexp.Regexp) Option {
	return func(d *Detector) { d.positives = patterns }
}

// NewDetector creates a detector with the default Portuguese and English
// pattern tables. Patterns run against normalized (lowercased, accent-folded)
// text.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		negations: []*regexp.Regexp{
			regexp.MustCompile(`nao temos`),
			regexp.MustCompile(`nao trabalhamos com`),
			regexp.MustCompile(`indisponive`),
			regexp.MustCompile(`esgotad`),
			regexp.MustCompile(`acabou`),
			regexp.MustCompile(`fora do (menu|cardapio)`),
			regexp.MustCompile(`we don'?t have`),
			regexp.MustCompile(`not available`),
			regexp.MustCompile(`unavailable`),
			regexp.MustCompile(`sold out`),
			regexp.MustCompile(`out of stock`),
		},
		positives: []*regexp.Regexp{
			regexp.MustCompile(`\btemos\b`),
			regexp.MustCompile(`\bwe have\b`),
			regexp.MustCompile(`deseja (adicionar|pedir|provar)`),
			regexp.MustCompile(`quer (adicionar|pedir|provar|experimentar)`),
			regexp.MustCompile(`gostaria de`),
			regexp.MustCompile(`\brecomendo\b`),
			regexp.MustCompile(`\bsugiro\b`),
			regexp.MustCompile(`que tal\b`),
			regexp.MustCompile(`do you want`),
			regexp.MustCompile(`would you like`),
			regexp.MustCompile(`\bi recommend\b`),
			regexp.MustCompile(`\bcosts?\b`),
			regexp.MustCompile(`\bpor (apenas )?[€$r]`),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectOfferedProduct returns the first product the reply is actively
// offering, or nil.
//
// A negation pattern anywhere in the reply short-circuits to nil regardless
// of other content. Otherwise, for each product whose name appears in the
// reply, a positive pattern or a currency symbol near the name mention
// counts as an offer; products are checked in catalog order and the first
// hit wins. Both checks are proximity-bounded so offer phrasing in one
// sentence cannot be credited to a product mentioned in another.
func (d *Detector) DetectOfferedProduct(reply string, products []catalog.Product) *catalog.Product {
	normalized := search.Normalize(reply)
	if normalized == "" {
		return nil
	}

	for _, neg := range d.negations {
		if neg.MatchString(normalized) {
			return nil
		}
	}

	for i := range products {
		name := search.Normalize(products[i].Name)
		at := strings.Index(normalized, name)
		if at < 0 {
			continue
		}
		if d.positiveNear(normalized, at, at+len(name)) || priceNear(normalized, at, at+len(name)) {
			return &products[i]
		}
	}
	return nil
}

// positiveNear reports whether an offering phrase occurs within
// offerProximity characters of the [start, end) name mention.
func (d *Detector) positiveNear(text string, start, end int) bool {
	lo := start - offerProximity
	if lo < 0 {
		lo = 0
	}
	hi := end + offerProximity
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]
	for _, pos := range d.positives {
		if pos.MatchString(window) {
			return true
		}
	}
	return false
}

// priceNear reports whether a currency symbol occurs within priceProximity
// characters of the [start, end) name mention.
func priceNear(text string, start, end int) bool {
	lo := start - priceProximity
	if lo < 0 {
		lo = 0
	}
	hi := end + priceProximity
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]
	return strings.ContainsAny(window, "€$£") || strings.Contains(window, "r$")
}
