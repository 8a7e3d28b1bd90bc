package chunker

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates the model token count: about 1.3 tokens per
// whitespace separated word, plus one per non-ASCII rune so CJK text is not undercounted.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > unicode.MaxASCII {
			count++
		}
	}
	words := len(strings.Fields(text))
	count += (words*13 + 9) / 10
	if count == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return count
}
