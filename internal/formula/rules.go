package formula

import "regexp"

const (
	operand = `[\p{L}\p{N}_.()√]+`
	binop   = `\s*(?:\*\*|[-+*/^×÷·])\s*`
	expr    = operand + `(?:` + binop + operand + `)*`
	number  = `\d+(?:[.,]\d+)?`
)

// Rule is one pattern category scanned over page text.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// Bounded rejects matches followed directly by a letter or digit.
	Bounded bool
}

// Rules is the ordered list of pattern categories. Earlier rules claim a span
// first; later matches that fall inside an accepted span are dropped.
var Rules = []Rule{
	{Name: "delimited", Pattern: regexp.MustCompile(`(?s)\$\$[^$]+\$\$|\$[^$\n]+\$|\\\(.+?\\\)|\\\[.+?\\\]`)},
	{Name: "equation", Pattern: regexp.MustCompile(expr + `\s*=\s*` + expr)},
	{Name: "fraction", Pattern: regexp.MustCompile(`\([^()\n]+\)\s*/\s*\([^()\n]+\)|\b(?:` + number + `|[A-Za-z])\s*/\s*(?:` + number + `|[A-Za-z])\b`)},
	{Name: "power", Pattern: regexp.MustCompile(`[\p{L}\p{N})]+\s*(?:\^|\*\*)\s*[-+]?[\p{L}\p{N}(]+\)?|[\p{L}\p{N})]+[²³]`)},
	{Name: "subscript", Pattern: regexp.MustCompile(`\b[A-Za-z]+_(?:\{[A-Za-z0-9,]+\}|[A-Za-z0-9]+)`)},
	{Name: "root", Pattern: regexp.MustCompile(`(?:√|\bsqrt)\s*(?:\([^()\n]*\)|[\p{L}\p{N}_.]+)`)},
	{Name: "summation_or_product", Pattern: regexp.MustCompile(`[∑∏]\s*(?:_\{?[^}\s]+\}?)?(?:\^\{?[^}\s]+\}?)?\s*[\p{L}\p{N}_()^]*`)},
	{Name: "integral", Pattern: regexp.MustCompile(`∫[^\n]{0,60}?\bd[a-z]\b|∫\s*[\p{L}\p{N}_()^]+`)},
	{Name: "greek", Pattern: regexp.MustCompile(`[\x{0391}-\x{03A9}\x{03B1}-\x{03C9}](?:\s*[-+*/^=<>≤≥]\s*[\p{L}\p{N}_.]+)*`)},
	{Name: "matrix", Pattern: regexp.MustCompile(`(?s)\[\s*\[[^\[\]\n]+\](?:\s*,?\s*\[[^\[\]\n]+\])+\s*\]|\\begin\{[pbv]?matrix\}.*?\\end\{[pbv]?matrix\}`)},
	{Name: "inequality", Pattern: regexp.MustCompile(expr + `\s*(?:<=|>=|!=|≤|≥|≠|<|>)\s*` + expr)},
	{Name: "percentage", Pattern: regexp.MustCompile(number + `\s?%`)},
	{Name: "measurement", Pattern: regexp.MustCompile(number + `\s?(?:°C|°F|km/h|m/s|kWh|kHz|MHz|GHz|km|cm|mm|kg|mg|ml|ms|Hz|kW|MW|VND|USD|đồng|triệu|tỷ|m²|m³|m|g|l|s|h|W|V|A)`), Bounded: true},
}
