package usecase

import "strings"

// brandAliases maps a canonical brand key to the aliases seen across
// catalogs. Lookup is case-insensitive; a brand matching either the key or
// an alias canonicalizes to the key.
var brandAliases = map[string][]string{
	"maybelline":    {"maybelline new york", "maybelline ny"},
	"lakme":         {"lakmé", "lakme india"},
	"l'oreal":       {"loreal", "l'oréal", "loreal paris", "l'oreal paris"},
	"mac":           {"m.a.c", "mac cosmetics"},
	"nyx":           {"nyx professional makeup", "nyx cosmetics"},
	"the face shop": {"faceshop", "tfs"},
	"wow":           {"wow skin science"},
	"mamaearth":     {"mama earth"},
	"garnier":       {"garnier paris"},
	"neutrogena":    {"neutrogena usa"},
	"himalaya":      {"himalaya herbals", "himalaya wellness"},
	"plum":          {"plum goodness"},
}

// categorySynonyms lists category names treated as related. The relation is
// bidirectional; equality is always related.
var categorySynonyms = map[string][]string{
	"lipstick":    {"lip color", "lip colour", "liquid lipstick"},
	"foundation":  {"face foundation", "liquid foundation"},
	"kajal":       {"kohl", "eye kajal"},
	"moisturizer": {"moisturiser", "face cream"},
	"face wash":   {"facewash", "cleanser", "face cleanser"},
	"shampoo":     {"hair cleanser"},
	"sunscreen":   {"sun care", "sunblock"},
	"perfume":     {"fragrance", "eau de parfum"},
	"serum":       {"face serum"},
}

// Ontology canonicalizes brand names and relates category synonyms.
type Ontology struct {
	brandLookup map[string]string // alias (lowered) -> canonical key
	categoryRel map[string]map[string]bool
}

// NewOntology builds the resolver from the built-in alias tables.
func NewOntology() *Ontology {
	o := &Ontology{
		brandLookup: make(map[string]string),
		categoryRel: make(map[string]map[string]bool),
	}
	for canonical, aliases := range brandAliases {
		o.brandLookup[canonical] = canonical
		for _, alias := range aliases {
			o.brandLookup[strings.ToLower(alias)] = canonical
		}
	}
	for canonical, synonyms := range categorySynonyms {
		for _, syn := range synonyms {
			o.addRelation(canonical, strings.ToLower(syn))
		}
	}
	return o
}

func (o *Ontology) addRelation(a, b string) {
	if o.categoryRel[a] == nil {
		o.categoryRel[a] = make(map[string]bool)
	}
	if o.categoryRel[b] == nil {
		o.categoryRel[b] = make(map[string]bool)
	}
	o.categoryRel[a][b] = true
	o.categoryRel[b][a] = true
}

// CanonicalBrand maps a brand to its canonical key. Unmatched brands pass
// through lowercased unchanged, which makes the mapping idempotent.
func (o *Ontology) CanonicalBrand(brand string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b == "" {
		return ""
	}
	if canonical, ok := o.brandLookup[b]; ok {
		return canonical
	}
	return b
}

// KnownAlias reports whether canonicalization actually rewrote the brand,
// i.e. the alias table had an entry distinct from the lowered input.
func (o *Ontology) KnownAlias(brand string) bool {
	b := strings.ToLower(strings.TrimSpace(brand))
	canonical, ok := o.brandLookup[b]
	return ok && canonical != b
}

// RelatedCategories reports whether two categories are equal or listed as
// synonyms of each other.
func (o *Ontology) RelatedCategories(a, b string) bool {
	ca := strings.ToLower(strings.TrimSpace(a))
	cb := strings.ToLower(strings.TrimSpace(b))
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb {
		return true
	}
	return o.categoryRel[ca][cb]
}
