// Package search implements fuzzy, synonym-aware product lookup over a menu
// snapshot.
//
// Matching is deliberately heuristic: a precedence-ordered list of match
// kinds with normalized similarity scores. The Matcher seam exists so the
// heuristic scorer can later be swapped for an embedding-based matcher
// without touching the session engine.
package search

import (
	"sort"
	"strings"

	"github.com/garcomlabs/garcom/internal/catalog"
)

// MatchType identifies which matching rule produced a result, in decreasing
// order of confidence.
type MatchType string

const (
	MatchExact       MatchType = "exact"
	MatchContains    MatchType = "contains"
	MatchKeyword     MatchType = "keyword"
	MatchIngredient  MatchType = "ingredient"
	MatchDescription MatchType = "description"
	MatchFuzzy       MatchType = "fuzzy"
)

// Similarity bases per match type. Fuzzy matches score below MatchContains
// by construction (see fuzzySimilarity).
const (
	scoreExact       = 1.0
	scoreContains    = 0.9
	scoreKeyword     = 0.8
	scoreIngredient  = 0.7
	scoreDescription = 0.6
)

// Match is a single search result.
type Match struct {
	Product    catalog.Product
	Similarity float64
	MatchType  MatchType
}

// Options controls a search invocation.
type Options struct {
	MaxResults         int     // 0 = no limit
	Category           string  // optional category name filter
	IncludeUnavailable bool    // include products marked unavailable
	MinSimilarity      float64 // results below are discarded
}

// Matcher scores one product against one normalized query form.
// Implementations must be side-effect free.
type Matcher interface {
	Match(query string, p *catalog.Product) (float64, MatchType, bool)
}

// Index is a searchable view over one restaurant's menu.
type Index struct {
	menu     *catalog.Menu
	matcher  Matcher
	synonyms *Synonyms
}

// Option customizes index construction.
type Option func(*Index)

// WithMatcher replaces the default heuristic matcher.
func WithMatcher(m Matcher) Option {
	return func(idx *Index) { idx.matcher = m }
}

// WithSynonyms replaces the default synonym tables.
func WithSynonyms(s *Synonyms) Option {
	return func(idx *Index) { idx.synonyms = s }
}

// NewIndex builds a search index over the given menu.
func NewIndex(menu *catalog.Menu, opts ...Option) *Index {
	idx := &Index{
		menu:     menu,
		matcher:  HeuristicMatcher{},
		synonyms: DefaultSynonyms(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Search resolves a free-text query against the menu.
//
// The query is expanded through the synonym tables (the original form is
// always tried too); each product keeps its best score across all expanded
// forms. Results are ordered by similarity descending, ties broken by
// catalog display order.
func (idx *Index) Search(query string, opts Options) []Match {
	query = Normalize(query)
	if query == "" {
		return nil
	}
	forms := idx.synonyms.Expand(query)

	type scored struct {
		match Match
		order int
	}
	var results []scored

	order := 0
	for _, cat := range idx.menu.Categories {
		if opts.Category != "" && !strings.EqualFold(cat.Name, opts.Category) {
			order += len(cat.Products)
			continue
		}
		for i := range cat.Products {
			p := cat.Products[i]
			pos := order + i
			if !p.Available && !opts.IncludeUnavailable {
				continue
			}
			best, bestType, ok := idx.bestMatch(forms, &p)
			if !ok || best < opts.MinSimilarity {
				continue
			}
			results = append(results, scored{
				match: Match{Product: p, Similarity: best, MatchType: bestType},
				order: pos,
			})
		}
		order += len(cat.Products)
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].match.Similarity != results[b].match.Similarity {
			return results[a].match.Similarity > results[b].match.Similarity
		}
		return results[a].order < results[b].order
	})

	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, r.match)
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
	}
	return out
}

// bestMatch scores a product against every query form and keeps the best.
func (idx *Index) bestMatch(forms []string, p *catalog.Product) (float64, MatchType, bool) {
	var (
		best     float64
		bestType MatchType
		found    bool
	)
	for _, form := range forms {
		score, mt, ok := idx.matcher.Match(form, p)
		if ok && score > best {
			best, bestType, found = score, mt, true
		}
	}
	return best, bestType, found
}

// HeuristicMatcher is the default precedence-ordered matcher:
// exact name, name contains, keyword, ingredient, description substring,
// then edit-distance fuzzy.
type HeuristicMatcher struct{}

// Match implements Matcher.
func (HeuristicMatcher) Match(query string, p *catalog.Product) (float64, MatchType, bool) {
	name := Normalize(p.Name)

	if name == query {
		return scoreExact, MatchExact, true
	}
	if strings.Contains(name, query) || strings.Contains(query, name) {
		return scoreContains, MatchContains, true
	}
	for _, kw := range p.Keywords {
		if Normalize(kw) == query || strings.Contains(Normalize(kw), query) {
			return scoreKeyword, MatchKeyword, true
		}
	}
	for _, ing := range p.Ingredients {
		if strings.Contains(Normalize(ing), query) {
			return scoreIngredient, MatchIngredient, true
		}
	}
	if desc := Normalize(p.Description); desc != "" && strings.Contains(desc, query) {
		return scoreDescription, MatchDescription, true
	}
	if sim, ok := fuzzySimilarity(query, name); ok {
		return sim, MatchFuzzy, true
	}
	return 0, "", false
}

// fuzzySimilarity computes a normalized edit-distance similarity between the
// query and the product name, scaled so it never outranks a substring match.
// Multi-word names also try their best single word so "margherita" finds
// "pizza margherita".
func fuzzySimilarity(query, name string) (float64, bool) {
	best := wordSimilarity(query, name)
	for _, w := range strings.Fields(name) {
		if s := wordSimilarity(query, w); s > best {
			best = s
		}
	}
	// Scale into (0, scoreContains) and cut off hopeless matches.
	scaled := best * 0.85
	if best < 0.55 {
		return 0, false
	}
	return scaled, true
}

func wordSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	d := editDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// editDistance is the Levenshtein distance over runes.
// No fuzzy-matching dependency is pulled in for ~25 lines of dynamic
// programming.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
