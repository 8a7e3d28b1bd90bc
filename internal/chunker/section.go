package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var knownSections = map[string]struct{}{
	"abstract":              {},
	"introduction":          {},
	"background":            {},
	"related work":          {},
	"methodology":           {},
	"methods":               {},
	"method":                {},
	"materials and methods": {},
	"approach":              {},
	"results":               {},
	"findings":              {},
	"experiments":           {},
	"experimental setup":    {},
	"evaluation":            {},
	"analysis":              {},
	"discussion":            {},
	"conclusion":            {},
	"conclusions":           {},
	"future work":           {},
	"limitations":           {},
	"references":            {},
	"acknowledgements":      {},
	"acknowledgments":       {},
}

var numberedHeading = regexp.MustCompile(`^(?:\d+(?:\.\d+)*|[IVX]+)\.?\s+(\S.*)$`)

const (
	maxHeadingLen   = 100
	maxHeadingWords = 8
)

// headingTitle reports whether line looks like an academic section heading
// and returns the heading text without surrounding punctuation.
func headingTitle(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if t == "" || len(t) > maxHeadingLen {
		return "", false
	}
	title := strings.TrimRight(t, ":")
	if _, ok := knownSections[strings.ToLower(title)]; ok {
		return title, true
	}
	if m := numberedHeading.FindStringSubmatch(title); m != nil {
		rest := m[1]
		if _, ok := knownSections[strings.ToLower(rest)]; ok {
			return title, true
		}
		if looksLikeTitle(rest) {
			return title, true
		}
		return "", false
	}
	if isAllCaps(title) {
		return title, true
	}
	return "", false
}

func looksLikeTitle(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > maxHeadingWords {
		return false
	}
	first := []rune(words[0])[0]
	if !unicode.IsUpper(first) {
		return false
	}
	return !strings.HasSuffix(s, ".")
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 3 && len(strings.Fields(s)) <= maxHeadingWords
}
