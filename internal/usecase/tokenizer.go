package usecase

import (
	"regexp"
	"strings"
)

// Package-level compiled regex patterns for performance
var (
	punctuationRegex   = regexp.MustCompile(`[^\w\s]`)
	camelBoundaryRegex = regexp.MustCompile(`([a-z])([A-Z])`)
	digitLetterRegex   = regexp.MustCompile(`(\d)([A-Za-z])|([A-Za-z])(\d)`)
	multiSpaceRegex    = regexp.MustCompile(`\s+`)
)

// tokenStopWords are removed by the enhanced tokenizer: determiners, units,
// packaging and promotional noise that carries no matching signal.
var tokenStopWords = map[string]bool{
	// Determiners and glue
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "for": true, "with": true,
	"by": true, "to": true, "from": true,
	// Units
	"ml": true, "gm": true, "gms": true, "kg": true, "ltr": true,
	"litre": true, "liter": true, "oz": true, "fl": true, "gr": true,
	// Packaging
	"pack": true, "packs": true, "combo": true, "set": true, "kit": true,
	"pcs": true, "piece": true, "pieces": true, "count": true, "ct": true,
	// Promotional
	"new": true, "free": true, "offer": true, "sale": true, "bestseller": true,
	"original": true, "genuine": true, "premium": true, "exclusive": true,
	"launch": true, "improved": true,
}

// basicTokens lowercases and splits on whitespace, nothing more. This is the
// default token-overlap mode.
func basicTokens(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tokens[tok] = true
	}
	return tokens
}

// enhancedTokens splits camelCase and digit/letter boundaries, strips
// punctuation, drops stop words and tokens shorter than 2 characters.
func enhancedTokens(s string) map[string]bool {
	s = camelBoundaryRegex.ReplaceAllString(s, "$1 $2")
	s = digitLetterRegex.ReplaceAllString(s, "$1$3 $2$4")
	s = punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	s = multiSpaceRegex.ReplaceAllString(s, " ")

	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		if len(tok) < 2 {
			continue
		}
		if tokenStopWords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

// tokenize picks the tokenizer for the configured mode.
func tokenize(s string, enhanced bool) map[string]bool {
	if enhanced {
		return enhancedTokens(s)
	}
	return basicTokens(s)
}

// jaccard returns the Jaccard similarity of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
