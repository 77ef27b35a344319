// Package formula finds mathematical expressions in page text, classifies
// them and builds a normalized symbolic form.
package formula

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docqa/internal/element"
)

// ContextRunes is the number of runes captured on each side of a match.
const ContextRunes = 150

var (
	identRe    = regexp.MustCompile(`[A-Za-z\x{0391}-\x{03A9}\x{03B1}-\x{03C9}][A-Za-z0-9_\x{0391}-\x{03A9}\x{03B1}-\x{03C9}]*`)
	constantRe = regexp.MustCompile(number)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// functionWords are identifiers that name operators rather than variables.
var functionWords = map[string]bool{
	"sqrt": true, "frac": true, "sum": true, "prod": true, "int": true,
	"sin": true, "cos": true, "tan": true, "log": true, "ln": true, "exp": true,
	"begin": true, "end": true, "matrix": true, "pmatrix": true, "bmatrix": true, "vmatrix": true,
}

var macroReplacer = strings.NewReplacer(
	"**", "^",
	"√", `\sqrt `,
	"∑", `\sum `,
	"∏", `\prod `,
	"∫", `\int `,
	"≤", `\leq `,
	"≥", `\geq `,
	"≠", `\neq `,
	"×", `\times `,
	"÷", `\div `,
	"·", `\cdot `,
	"∞", `\infty `,
	"±", `\pm `,
	"²", "^2",
	"³", "^3",
	"α", `\alpha `, "β", `\beta `, "γ", `\gamma `, "δ", `\delta `,
	"ε", `\epsilon `, "ζ", `\zeta `, "η", `\eta `, "θ", `\theta `,
	"ι", `\iota `, "κ", `\kappa `, "λ", `\lambda `, "μ", `\mu `,
	"ν", `\nu `, "ξ", `\xi `, "ο", `o`, "π", `\pi `,
	"ρ", `\rho `, "σ", `\sigma `, "ς", `\varsigma `, "τ", `\tau `,
	"υ", `\upsilon `, "φ", `\phi `, "χ", `\chi `, "ψ", `\psi `, "ω", `\omega `,
	"Γ", `\Gamma `, "Δ", `\Delta `, "Θ", `\Theta `, "Λ", `\Lambda `,
	"Ξ", `\Xi `, "Π", `\Pi `, "Σ", `\Sigma `, "Φ", `\Phi `,
	"Ψ", `\Psi `, "Ω", `\Omega `,
)

type span struct {
	start, end int
	rule       string
}

// Recognize scans text with Rules and returns one Formula per accepted match,
// ordered by position. It never fails; text without matches yields nil.
func Recognize(text string) []element.Formula {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var accepted []span
	for _, rule := range Rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			start, end := trimSpan(text, loc[0], loc[1])
			if start >= end {
				continue
			}
			if rule.Bounded && end < len(text) {
				r, _ := utf8.DecodeRuneInString(text[end:])
				if unicode.IsLetter(r) || unicode.IsDigit(r) {
					continue
				}
			}
			if covered(accepted, start, end) {
				continue
			}
			accepted = append(accepted, span{start: start, end: end, rule: rule.Name})
		}
	}
	if len(accepted) == 0 {
		return nil
	}
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	out := make([]element.Formula, 0, len(accepted))
	for _, s := range accepted {
		out = append(out, build(text, s))
	}
	return out
}

// covered reports whether [start,end) lies within an accepted span.
func covered(accepted []span, start, end int) bool {
	for _, a := range accepted {
		if start >= a.start && end <= a.end {
			return true
		}
	}
	return false
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) && r != '.' && r != ',' {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) && r != '.' && r != ',' {
			break
		}
		end -= size
	}
	return start, end
}

func build(text string, s span) element.Formula {
	raw := text[s.start:s.end]
	f := features(raw)
	return element.Formula{
		Raw:        raw,
		Context:    contextWindow(text, s.start, s.end, ContextRunes),
		Normalized: Normalize(raw),
		Variables:  Variables(raw),
		Constants:  Constants(raw),
		Type:       classify(f),
		Features:   featureNames(f),
	}
}

// contextWindow returns up to n runes before start and after end around the
// match, including the match itself.
func contextWindow(text string, start, end, n int) string {
	from := start
	for i := 0; i < n && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < n && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return strings.TrimSpace(text[from:to])
}

// Normalize substitutes macros for math symbols and collapses whitespace.
func Normalize(raw string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(macroReplacer.Replace(raw), " "))
}

// Variables returns the sorted set of identifier tokens in raw.
func Variables(raw string) []string {
	return uniqueSorted(identRe.FindAllString(raw, -1), func(s string) bool {
		return !functionWords[strings.ToLower(s)]
	})
}

// Constants returns the sorted set of numeric tokens in raw.
func Constants(raw string) []string {
	return uniqueSorted(constantRe.FindAllString(raw, -1), nil)
}

func uniqueSorted(in []string, keep func(string) bool) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] || (keep != nil && !keep(s)) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
