// Package router classifies questions by the content type they ask about.
package router

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Keyword lists, already NFC and case-folded. A keyword matches only as a
// whole word or phrase.
var (
	TableKeywords   = []string{"bảng", "table", "tables", "tabular"}
	ChartKeywords   = []string{"biểu đồ", "đồ thị", "hình ảnh", "hình vẽ", "chart", "charts", "graph", "graphs", "figure", "figures"}
	FormulaKeywords = []string{"công thức", "phương trình", "formula", "formulas", "formulae", "equation", "equations"}

	// ChartNumbered words name a chart only when a number follows, as in
	// "hình 3"; on their own they are too common ("mô hình").
	ChartNumbered = []string{"hình"}
)

const (
	wordStart  = `(?:^|[^\p{L}\p{M}])`
	wordEnd    = `(?:[^\p{L}\p{M}]|$)`
	ordinalTag = `\s*(?:số|no\.?|#)?\s*(\d+)`
)

var (
	tableMatch   = keywordPattern(TableKeywords, nil)
	chartMatch   = keywordPattern(ChartKeywords, ChartNumbered)
	formulaMatch = keywordPattern(FormulaKeywords, nil)

	tableOrdinal = ordinalPattern(TableKeywords)
	chartOrdinal = ordinalPattern(append(append([]string(nil), ChartKeywords...), ChartNumbered...))

	// "figure out" is a verb, not a chart reference.
	figureOut = regexp.MustCompile(`\bfigur(?:e|es|ed|ing)(?:\s+\p{L}+)?\s+out\b`)
)

func alternation(keywords []string) string {
	alts := make([]string, len(keywords))
	for i, k := range keywords {
		alts[i] = regexp.QuoteMeta(k)
	}
	return `(?:` + strings.Join(alts, "|") + `)`
}

func keywordPattern(keywords, numbered []string) *regexp.Regexp {
	expr := wordStart + alternation(keywords) + wordEnd
	if len(numbered) > 0 {
		expr += `|` + wordStart + alternation(numbered) + ordinalTag
	}
	return regexp.MustCompile(expr)
}

func ordinalPattern(keywords []string) *regexp.Regexp {
	return regexp.MustCompile(wordStart + alternation(keywords) + ordinalTag)
}

// Route is the classification of one question. The flags are independent.
type Route struct {
	Question     string
	Routed       string
	IsTable      bool
	IsChart      bool
	IsFormula    bool
	TableOrdinal int // 0 when the question names no table number.
	ChartOrdinal int
}

// Normalize returns s in NFC, case-folded.
func Normalize(s string) string {
	// A Caser is stateful and cannot be shared between goroutines.
	return cases.Fold().String(norm.NFC.String(s))
}

// Classify detects table, chart and formula questions and builds the
// routed question: a type prefix followed by the original text.
func Classify(question string) Route {
	q := Normalize(question)
	r := Route{
		Question:  question,
		IsTable:   tableMatch.MatchString(q),
		IsChart:   chartMatch.MatchString(figureOut.ReplaceAllString(q, " ")),
		IsFormula: formulaMatch.MatchString(q),
	}
	if r.IsTable {
		r.TableOrdinal = ordinal(tableOrdinal, q)
	}
	if r.IsChart {
		r.ChartOrdinal = ordinal(chartOrdinal, q)
	}

	var prefix []string
	if r.IsTable {
		prefix = append(prefix, "[table]")
	}
	if r.IsChart {
		prefix = append(prefix, "[chart]")
	}
	if r.IsFormula {
		prefix = append(prefix, "[formula]")
	}
	r.Routed = question
	if len(prefix) > 0 {
		r.Routed = strings.Join(prefix, " ") + " " + question
	}
	return r
}

func ordinal(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
