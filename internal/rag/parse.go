package rag

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var labelLine = regexp.MustCompile(`(?i)^(paper\s*1|paper\s*2|differences)\s*(?::|$)\s*(.*)$`)

type comparisonSections struct {
	paper1      string
	paper2      string
	differences string
}

// parseComparison extracts the PAPER 1 / PAPER 2 / DIFFERENCES sections. It
// succeeds only when all three labels appear in that order with content.
func parseComparison(raw string) (comparisonSections, bool) {
	var out comparisonSections
	targets := []*string{&out.paper1, &out.paper2, &out.differences}
	bodies := make([][]string, len(targets))
	current := -1
	for _, line := range plainLines(raw) {
		if m := labelLine.FindStringSubmatch(line); m != nil {
			next := labelIndex(m[1])
			if next > current+1 {
				return comparisonSections{}, false
			}
			if next == current+1 {
				current = next
				if rest := strings.TrimSpace(m[2]); rest != "" {
					bodies[current] = append(bodies[current], rest)
				}
				continue
			}
			// repeated labels are kept as section text
		}
		if current >= 0 {
			bodies[current] = append(bodies[current], line)
		}
	}
	if current != len(targets)-1 {
		return comparisonSections{}, false
	}
	for i, t := range targets {
		*t = strings.TrimSpace(strings.Join(bodies[i], "\n"))
		if *t == "" {
			return comparisonSections{}, false
		}
	}
	return out, true
}

func labelIndex(label string) int {
	switch strings.Join(strings.Fields(strings.ToLower(label)), "") {
	case "paper1":
		return 0
	case "paper2":
		return 1
	default:
		return 2
	}
}

// plainLines renders markdown to plain text lines: emphasis, heading and list
// markers are dropped, one line per block or soft line break.
func plainLines(src string) []string {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var lines []string
	var cur strings.Builder
	flush := func() {
		for _, l := range strings.Split(cur.String(), "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		cur.Reset()
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				segs := node.Lines()
				for i := 0; i < segs.Len(); i++ {
					seg := segs.At(i)
					cur.Write(seg.Value(source))
				}
			}
		}
		if n.Type() == ast.TypeBlock && !entering {
			flush()
		}
		return ast.WalkContinue, nil
	})
	flush()
	return lines
}
