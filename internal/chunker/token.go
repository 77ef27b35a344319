package chunker

import "strings"

// EstimateTokens gives a rough token count from the word count (about 1.33
// tokens per word). Exact tokenization is not needed for budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 && strings.TrimSpace(text) != "" {
		tokens = 1
	}
	return tokens
}
