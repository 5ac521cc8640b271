package usecase

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Variant patterns. Size and weight are matched with their unit so plain
// shade numbers like "128" are not mistaken for quantities.
var (
	sizeRegex   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(ml|l|ltr|litres?|liters?|fl\.?\s*oz)\b`)
	weightRegex = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mg|g|gm|gms|grams?|kg|kgs?)\b`)
	packRegex   = regexp.MustCompile(`(?i)\b(?:pack|set)\s*of\s*(\d+)\b|\b(\d+)\s*[-\s]?(?:pack|pcs|pieces)\b`)
	shadeRegex  = regexp.MustCompile(`\b(\d{1,3}[A-Za-z]?)\b`)
	modelRegex  = regexp.MustCompile(`\b([A-Z]{2,4}-?\d{2,5})\b`)
)

// Unit conversions to the normalized base units (millilitres, grams).
const (
	mlPerLitre    = 1000.0
	mlPerFluidOz  = 29.5735
	gPerKilogram  = 1000.0
	gPerMilligram = 0.001

	// quantityTolerance absorbs rounding introduced by unit conversion when
	// comparing sizes (ml) and weights (g).
	quantityTolerance = 2.0
)

// Variants are the structured attributes parsed out of a product title.
// Zero values mean absent.
type Variants struct {
	SizeML  float64
	WeightG float64
	Pack    int
	Shade   string
	Model   string
}

// Empty reports whether no variant field was extracted.
func (v Variants) Empty() bool {
	return v.SizeML == 0 && v.WeightG == 0 && v.Pack == 0 && v.Shade == "" && v.Model == ""
}

// ExtractVariants heuristically parses size, weight, pack count, shade code
// and model code from a title.
func ExtractVariants(title string) Variants {
	var v Variants
	remaining := title

	if m := sizeRegex.FindStringSubmatch(remaining); m != nil {
		if qty, err := strconv.ParseFloat(m[1], 64); err == nil {
			unit := strings.ToLower(strings.ReplaceAll(m[2], ".", ""))
			switch {
			case strings.HasPrefix(unit, "l"):
				v.SizeML = qty * mlPerLitre
			case strings.HasPrefix(unit, "fl"):
				v.SizeML = qty * mlPerFluidOz
			default:
				v.SizeML = qty
			}
		}
		remaining = sizeRegex.ReplaceAllString(remaining, " ")
	}

	if m := weightRegex.FindStringSubmatch(remaining); m != nil {
		if qty, err := strconv.ParseFloat(m[1], 64); err == nil {
			unit := strings.ToLower(m[2])
			switch {
			case strings.HasPrefix(unit, "kg"):
				v.WeightG = qty * gPerKilogram
			case unit == "mg":
				v.WeightG = qty * gPerMilligram
			default:
				v.WeightG = qty
			}
		}
		remaining = weightRegex.ReplaceAllString(remaining, " ")
	}

	if m := packRegex.FindStringSubmatch(remaining); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 1 {
			v.Pack = n
		}
		remaining = packRegex.ReplaceAllString(remaining, " ")
	}

	if m := modelRegex.FindStringSubmatch(remaining); m != nil {
		v.Model = strings.ToUpper(m[1])
		remaining = modelRegex.ReplaceAllString(remaining, " ")
	}

	// Shade codes are matched last, on the title with quantities stripped,
	// so "128" in "Foundation 128" survives but "400" in "400ml" does not.
	if m := shadeRegex.FindStringSubmatch(remaining); m != nil {
		v.Shade = strings.ToLower(m[1])
	}

	return v
}

// CompareVariants scores two variant sets as the fraction of applicable
// checks that matched. A field is applicable when present on at least one
// side; present on only one side counts as a mismatch. Size and weight
// match within an absolute tolerance, the rest must match exactly. ok is
// false when neither side has any extractable variant, meaning the
// comparison has no opinion.
func CompareVariants(a, b Variants) (score float64, ok bool) {
	if a.Empty() && b.Empty() {
		return 0, false
	}

	checks, matched := 0, 0

	if a.SizeML != 0 || b.SizeML != 0 {
		checks++
		if a.SizeML != 0 && b.SizeML != 0 && math.Abs(a.SizeML-b.SizeML) <= quantityTolerance {
			matched++
		}
	}
	if a.WeightG != 0 || b.WeightG != 0 {
		checks++
		if a.WeightG != 0 && b.WeightG != 0 && math.Abs(a.WeightG-b.WeightG) <= quantityTolerance {
			matched++
		}
	}
	if a.Pack != 0 || b.Pack != 0 {
		checks++
		if a.Pack != 0 && a.Pack == b.Pack {
			matched++
		}
	}
	if a.Shade != "" || b.Shade != "" {
		checks++
		if a.Shade != "" && a.Shade == b.Shade {
			matched++
		}
	}
	if a.Model != "" || b.Model != "" {
		checks++
		if a.Model != "" && a.Model == b.Model {
			matched++
		}
	}

	return float64(matched) / float64(checks), true
}
