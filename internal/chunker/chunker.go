package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type Chunker struct {
	cfg config.ChunkConfig
}

func New(cfg config.ChunkConfig) (*Chunker, error) {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = config.DefaultChunkTargetSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.TargetSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than target size %d", appErr.ErrInvalid, cfg.Overlap, cfg.TargetSize)
	}
	return &Chunker{cfg: cfg}, nil
}

// Chunk splits raw into overlapping chunks. Spans index raw directly, so the
// chunks' non-overlapping parts concatenate back to raw byte for byte.
func (c *Chunker) Chunk(ctx context.Context, raw string, pages []model.PageBoundary) ([]*model.Chunk, error) {
	logger := logutil.GetLogger(ctx)
	if strings.TrimSpace(raw) == "" {
		return nil, appErr.ErrEmptyDocument
	}
	logger.Info("starting chunking", zap.Int("size", len(raw)), zap.Int("pages", len(pages)))

	units := c.buildUnits(raw)
	headings := findHeadings(raw)
	pageIndex := newPageIndex(pages)

	var chunks []*model.Chunk
	start, carried := 0, 0
	for i := 0; i < len(units); {
		tokens := carried
		j := i
		for j < len(units) && (j == i || tokens+units[j].tokens <= c.cfg.TargetSize) {
			tokens += units[j].tokens
			j++
		}
		end := units[j-1].end
		text := raw[start:end]
		chunk := &model.Chunk{
			Index:      len(chunks),
			Text:       text,
			TokenCount: EstimateTokens(text),
			Page:       pageIndex.pageAt(start),
			Section:    headings.sectionAt(start),
			Start:      start,
			End:        end,
		}
		logger.Debug("flushing chunk",
			zap.Int("index", chunk.Index),
			zap.Int("start", start),
			zap.Int("end", end),
			zap.Int("tokens", chunk.TokenCount),
			zap.String("section", chunk.Section),
		)
		chunks = append(chunks, chunk)
		if j >= len(units) {
			break
		}
		start = c.overlapStart(raw, units, i, j, start)
		carried = 0
		if start < end {
			carried = EstimateTokens(raw[start:end])
		}
		i = j
	}
	logger.Info("chunking completed", zap.Int("total_chunks", len(chunks)))
	return chunks, nil
}

// overlapStart picks where the chunk after units[i:j] begins: as early as
// possible while the shared tail stays within the overlap budget. Whole
// sentences are preferred; a tail of words is used when no sentence fits.
func (c *Chunker) overlapStart(raw string, units []unit, i, j, prevStart int) int {
	end := units[j-1].end
	if c.cfg.Overlap <= 0 {
		return end
	}
	next, used := end, 0
	for k := j - 1; k > i; k-- {
		if used+units[k].tokens > c.cfg.Overlap {
			break
		}
		used += units[k].tokens
		next = units[k].start
	}
	if next < end {
		return next
	}
	lo := units[j-1].start
	if lo < prevStart {
		lo = prevStart
	}
	return tailWords(raw, lo, end, c.cfg.Overlap)
}

// tailWords returns the start of the longest run of trailing words in
// raw[lo:hi] whose estimate fits budget. The first word is never included.
func tailWords(raw string, lo, hi, budget int) int {
	starts := wordStarts(raw, lo, hi)
	best := hi
	for w := len(starts) - 1; w >= 1; w-- {
		if EstimateTokens(raw[starts[w]:hi]) > budget {
			break
		}
		best = starts[w]
	}
	return best
}

func wordStarts(raw string, lo, hi int) []int {
	var starts []int
	inSpace := true
	for pos, r := range raw[lo:hi] {
		space := isSpace(r)
		if !space && inSpace {
			starts = append(starts, lo+pos)
		}
		inSpace = space
	}
	return starts
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}

type pageIndex []model.PageBoundary

func newPageIndex(pages []model.PageBoundary) pageIndex {
	idx := make(pageIndex, len(pages))
	copy(idx, pages)
	sort.SliceStable(idx, func(a, b int) bool {
		return idx[a].Offset < idx[b].Offset
	})
	return idx
}

func (p pageIndex) pageAt(offset int) int {
	if len(p) == 0 {
		return 1
	}
	i := sort.Search(len(p), func(i int) bool {
		return p[i].Offset > offset
	})
	if i == 0 {
		return p[0].Page
	}
	return p[i-1].Page
}

type heading struct {
	offset int
	title  string
}

type headingIndex []heading

func findHeadings(raw string) headingIndex {
	var out headingIndex
	for _, ln := range splitLines(raw) {
		if title, ok := headingTitle(raw[ln.start:ln.end]); ok {
			out = append(out, heading{offset: ln.start, title: title})
		}
	}
	return out
}

func (h headingIndex) sectionAt(offset int) string {
	i := sort.Search(len(h), func(i int) bool {
		return h[i].offset > offset
	})
	if i == 0 {
		return ""
	}
	return h[i-1].title
}
