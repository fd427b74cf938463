package knowledge

import (
	"strings"
	"unicode"

	"github.com/ashureev/carenav/internal/domain"
	"golang.org/x/text/cases"
)

// minOverlap is the token-overlap score a fuzzy match needs. A single shared
// common word is not enough.
const minOverlap = 2

// Resolver matches free text against a catalog. It holds no mutable state.
type Resolver struct {
	catalog *Catalog
	entries []entry
}

type entry struct {
	title string
	terms []string
	bag   map[string]struct{}
}

// NewResolver precomputes normalized terms for every document in catalog.
func NewResolver(catalog *Catalog) *Resolver {
	r := &Resolver{catalog: catalog}
	for _, d := range catalog.docs {
		e := entry{
			title: Normalize(d.Title),
			bag:   make(map[string]struct{}),
		}
		for _, group := range [][]string{d.Keywords, d.Aliases, d.Tags} {
			for _, term := range group {
				if n := Normalize(term); n != "" {
					e.terms = append(e.terms, n)
				}
			}
		}
		for _, tok := range strings.Fields(e.title) {
			e.bag[tok] = struct{}{}
		}
		for _, term := range e.terms {
			for _, tok := range strings.Fields(term) {
				e.bag[tok] = struct{}{}
			}
		}
		r.entries = append(r.entries, e)
	}
	return r
}

// Catalog returns the catalog the resolver was built from.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns the best matching document. Title containment wins over
// keyword/alias/tag containment, which wins over token overlap.
func (r *Resolver) Resolve(text string) (domain.TopicDocument, bool) {
	q := Normalize(text)
	if q == "" {
		return domain.TopicDocument{}, false
	}

	for i, e := range r.entries {
		if e.title != "" && strings.Contains(q, e.title) {
			return r.catalog.docs[i], true
		}
	}

	for i, e := range r.entries {
		for _, term := range e.terms {
			if strings.Contains(q, term) {
				return r.catalog.docs[i], true
			}
		}
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(q) {
		tokens[tok] = struct{}{}
	}
	best, bestScore := -1, 0
	for i, e := range r.entries {
		score := 0
		for tok := range tokens {
			if _, ok := e.bag[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= minOverlap {
		return r.catalog.docs[best], true
	}
	return domain.TopicDocument{}, false
}

// Normalize case-folds s, removes everything that is not a letter, digit or
// whitespace, and collapses runs of whitespace.
func Normalize(s string) string {
	folded := cases.Fold().String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
