package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords are dropped during keyword extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "did": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"my": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "we": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true,
	"with": true, "you": true,
}

// keywords extracts lowercase, stopword-filtered, deduplicated terms.
func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	seen := make(map[string]bool)
	var out []string
	for _, w := range fields {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// complexity labels a query from its keyword count and the depth of the
// caller's current work nesting.
func complexity(kws []string, pathDepth int) string {
	score := len(kws) + pathDepth
	switch {
	case score <= 3:
		return ComplexitySimple
	case score <= 8:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// overlap returns the fraction of query keywords present in the candidate
// keyword set, 0 when the query has none.
func overlap(queryKws []string, candidateKws map[string]bool) float64 {
	if len(queryKws) == 0 {
		return 0
	}
	hits := 0
	for _, k := range queryKws {
		if candidateKws[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryKws))
}
