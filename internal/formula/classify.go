package formula

import (
	"regexp"
	"strings"
)

// Formula types, in classification order.
const (
	TypeEquation           = "equation"
	TypeFraction           = "fraction"
	TypePower              = "power"
	TypeSubscript          = "subscript"
	TypeSquareRoot         = "square_root"
	TypeSummationOrProduct = "summation_or_product"
	TypeIntegral           = "integral"
	TypeGreekNotation      = "greek_notation"
	TypeMatrix             = "matrix"
	TypeInequality         = "inequality"
	TypePercentage         = "percentage"
	TypeMeasurement        = "measurement"
	TypeUnknown            = "unknown"
)

// Precedence is the classification order. The first type whose feature is
// present wins; TypeUnknown applies when none is.
var Precedence = []string{
	TypeEquation,
	TypeFraction,
	TypePower,
	TypeSubscript,
	TypeSquareRoot,
	TypeSummationOrProduct,
	TypeIntegral,
	TypeGreekNotation,
	TypeMatrix,
	TypeInequality,
	TypePercentage,
	TypeMeasurement,
}

var (
	equalsRe      = regexp.MustCompile(`(?:^|[^<>!=])=(?:[^=]|$)`)
	fractionRe    = regexp.MustCompile(`/|÷|\\frac`)
	powerRe       = regexp.MustCompile(`\^|\*\*|[²³]`)
	greekRe       = regexp.MustCompile(`[\x{0391}-\x{03A9}\x{03B1}-\x{03C9}]`)
	matrixRe      = regexp.MustCompile(`\[\s*\[|\\begin\{[pbv]?matrix\}`)
	inequalityRe  = regexp.MustCompile(`<|>|≤|≥|≠|!=`)
	measurementRe = regexp.MustCompile(number + `\s?(?:°C|°F|km|cm|mm|kg|mg|ml|ms|Hz|kW|MW|VND|USD|đồng|triệu|tỷ|m²|m³|m|g|l|s|h|W|V|A)`)
)

// features returns which structural traits raw exhibits, keyed by type.
func features(raw string) map[string]bool {
	return map[string]bool{
		TypeEquation:           equalsRe.MatchString(raw),
		TypeFraction:           fractionRe.MatchString(raw),
		TypePower:              powerRe.MatchString(raw),
		TypeSubscript:          strings.Contains(raw, "_"),
		TypeSquareRoot:         strings.Contains(raw, "√") || strings.Contains(raw, "sqrt"),
		TypeSummationOrProduct: strings.ContainsAny(raw, "∑∏"),
		TypeIntegral:           strings.Contains(raw, "∫"),
		TypeGreekNotation:      greekRe.MatchString(raw),
		TypeMatrix:             matrixRe.MatchString(raw),
		TypeInequality:         inequalityRe.MatchString(raw),
		TypePercentage:         strings.Contains(raw, "%"),
		TypeMeasurement:        measurementRe.MatchString(raw),
	}
}

// Classify returns the formula type of raw following Precedence.
func Classify(raw string) string {
	return classify(features(raw))
}

func classify(f map[string]bool) string {
	for _, t := range Precedence {
		if f[t] {
			return t
		}
	}
	return TypeUnknown
}

// featureNames lists the present traits as "has_<type>" tags in Precedence
// order.
func featureNames(f map[string]bool) []string {
	var out []string
	for _, t := range Precedence {
		if f[t] {
			out = append(out, "has_"+t)
		}
	}
	return out
}
