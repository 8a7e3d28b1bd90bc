package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// CleanText strips extraction noise: invalid UTF-8, NUL and other control
// characters, CR line endings, trailing blanks and runs of empty lines.
func CleanText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, text)
	text = trailingSpace.ReplaceAllString(text, "\n")
	return blankRuns.ReplaceAllString(text, "\n\n")
}
