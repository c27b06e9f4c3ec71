package search

import "strings"

// Synonyms holds the static expansion tables applied to queries before
// matching. Expansion is additive: the original query is always tried.
type Synonyms struct {
	// Categories maps a spoken category term to the menu terms it implies
	// ("refrigerante" -> "coca", "guarana", ...).
	Categories map[string][]string

	// Terms maps common abbreviations and regional names to their menu
	// equivalents ("x-tudo" <-> "completo").
	Terms map[string][]string
}

// DefaultSynonyms returns the built-in Portuguese/English tables.
func DefaultSynonyms() *Synonyms {
	return &Synonyms{
		Categories: map[string][]string{
			"bebida":       {"refrigerante", "suco", "agua", "cerveja"},
			"refrigerante": {"coca", "coca-cola", "guarana", "fanta", "sprite"},
			"lanche":       {"hamburguer", "sanduiche", "burger"},
			"sobremesa":    {"pudim", "sorvete", "acai", "bolo"},
			"drink":        {"soda", "juice", "water", "beer"},
		},
		Terms: map[string][]string{
			"x-tudo":     {"completo", "x tudo"},
			"completo":   {"x-tudo"},
			"x-burguer":  {"cheeseburger", "x burguer"},
			"coca":       {"coca-cola"},
			"coca-cola":  {"coca", "cola"},
			"guarana":    {"guarana antarctica"},
			"hamburguer": {"burger", "hamburger"},
			"burger":     {"hamburguer"},
			"sanduiche":  {"sandes", "sandwich"},
			"batata":     {"batata frita", "fritas"},
			"fritas":     {"batata frita"},
			"pizza":      {"pitsa"},
		},
	}
}

// Expand returns the normalized query plus every synonym expansion that
// applies, deduplicated, original first.
func (s *Synonyms) Expand(query string) []string {
	query = Normalize(query)
	seen := map[string]bool{query: true}
	forms := []string{query}

	add := func(form string) {
		form = Normalize(form)
		if form != "" && !seen[form] {
			seen[form] = true
			forms = append(forms, form)
		}
	}

	if s == nil {
		return forms
	}
	for _, syn := range s.Terms[query] {
		add(syn)
	}
	for _, syn := range s.Categories[query] {
		add(syn)
	}
	// Word-level expansion for multi-word queries ("uma coca gelada").
	for _, w := range strings.Fields(query) {
		for _, syn := range s.Terms[w] {
			add(syn)
		}
		for _, syn := range s.Categories[w] {
			add(syn)
		}
	}
	return forms
}

// Normalize lowercases, trims, folds common Latin diacritics, and collapses
// interior whitespace. Enough for Portuguese and English menu text without
// pulling in a Unicode normalization dependency.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if folded, ok := diacritics[r]; ok {
			r = folded
		}
		if r == ' ' || r == '\t' || r == '\n' {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

var diacritics = map[rune]rune{
	'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}
