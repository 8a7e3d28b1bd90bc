package chunker

import (
	"regexp"
	"strings"
)

type unit struct {
	start  int
	end    int
	tokens int
}

type span struct {
	start int
	end   int
}

var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]*\s+|[。！？]+\s*`)

// buildUnits tiles raw with sentence-sized units: sentence ends and blank
// lines close a unit, headings stand alone, and units longer than the target
// size are cut at word boundaries.
func (c *Chunker) buildUnits(raw string) []unit {
	spans := splitSentences(raw)
	spans = mergeBlank(raw, spans)
	units := make([]unit, 0, len(spans))
	for _, sp := range spans {
		tokens := EstimateTokens(raw[sp.start:sp.end])
		if tokens <= c.cfg.TargetSize {
			units = append(units, unit{start: sp.start, end: sp.end, tokens: tokens})
			continue
		}
		units = append(units, splitLong(raw, sp, c.cfg.TargetSize)...)
	}
	return units
}

func splitSentences(raw string) []span {
	var out []span
	cur := 0
	closeAt := func(pos int) {
		if pos > cur {
			out = append(out, span{start: cur, end: pos})
			cur = pos
		}
	}
	for _, ln := range splitLines(raw) {
		body := raw[ln.start:ln.end]
		if strings.TrimSpace(body) == "" {
			closeAt(ln.end)
			continue
		}
		if _, ok := headingTitle(body); ok {
			closeAt(ln.start)
			closeAt(ln.end)
			continue
		}
		for _, m := range sentenceEnd.FindAllStringIndex(body, -1) {
			closeAt(ln.start + m[1])
		}
	}
	closeAt(len(raw))
	return out
}

// mergeBlank folds whitespace-only spans into their neighbour so that no
// unit, and therefore no chunk, consists of whitespace alone.
func mergeBlank(raw string, spans []span) []span {
	out := make([]span, 0, len(spans))
	pending := -1
	for _, sp := range spans {
		if strings.TrimSpace(raw[sp.start:sp.end]) == "" {
			if pending < 0 {
				pending = sp.start
			}
			continue
		}
		if pending >= 0 {
			sp.start = pending
			pending = -1
		}
		out = append(out, sp)
	}
	if pending >= 0 && len(out) > 0 {
		out[len(out)-1].end = len(raw)
	}
	return out
}

func splitLong(raw string, sp span, target int) []unit {
	starts := wordStarts(raw, sp.start, sp.end)
	var out []unit
	cur := sp.start
	for w := 1; w < len(starts); w++ {
		if EstimateTokens(raw[cur:starts[w]]) <= target {
			continue
		}
		cut := starts[w-1]
		// Leading whitespace stays with the first word.
		if w == 1 || cut <= cur {
			cut = starts[w]
		}
		out = append(out, unit{start: cur, end: cut, tokens: EstimateTokens(raw[cur:cut])})
		cur = cut
	}
	out = append(out, unit{start: cur, end: sp.end, tokens: EstimateTokens(raw[cur:sp.end])})
	return out
}

func splitLines(raw string) []span {
	var out []span
	start := 0
	for start < len(raw) {
		i := strings.IndexByte(raw[start:], '\n')
		if i < 0 {
			out = append(out, span{start: start, end: len(raw)})
			break
		}
		out = append(out, span{start: start, end: start + i + 1})
		start += i + 1
	}
	return out
}
