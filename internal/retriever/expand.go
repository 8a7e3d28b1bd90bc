package retriever

import "strings"

var (
	numericCues = []string{"how many", "count", "number", "size", "measure", "statistic"}
	methodCues  = []string{"method", "design", "approach", "technique", "analysis"}

	numericTerms = []string{"sample size", "count", "number", "measurements"}
	methodTerms  = []string{"methods", "study design", "statistics"}
)

// ExpandQuery appends domain terms to numeric and methods questions so their
// embedding lands closer to the passages that report sample sizes and designs.
// Other questions are returned unchanged.
func ExpandQuery(question string) string {
	lower := strings.ToLower(question)
	var terms []string
	if containsAny(lower, numericCues) {
		terms = append(terms, numericTerms...)
	}
	if containsAny(lower, methodCues) {
		terms = append(terms, methodTerms...)
	}
	expanded := question
	for _, term := range terms {
		if strings.Contains(lower, term) {
			continue
		}
		expanded += " " + term
	}
	return expanded
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}
