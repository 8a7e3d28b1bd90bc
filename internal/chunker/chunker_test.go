package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

func reconstruct(chunks []*model.Chunk) string {
	var sb strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		sb.WriteString(c.Text[prevEnd-c.Start:])
		prevEnd = c.End
	}
	return sb.String()
}

func samplePaper(sentences int) string {
	var sb strings.Builder
	sb.WriteString("Abstract\n")
	for i := 0; i < sentences; i++ {
		if i == sentences/2 {
			sb.WriteString("\n\n2. Methods\n")
		}
		fmt.Fprintf(&sb, "Sentence number %d describes an experiment with several words in it. ", i)
		if i%7 == 6 {
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString("\nREFERENCES\n[1] Someone et al. A cited work.\n  ")
	return sb.String()
}

func TestChunkRejectsEmptyText(t *testing.T) {
	c, err := New(config.DefaultChunkConfig())
	require.NoError(t, err)
	for _, raw := range []string{"", "   ", "\n\t \n"} {
		_, err := c.Chunk(context.Background(), raw, nil)
		require.ErrorIs(t, err, appErr.ErrEmptyDocument)
		require.ErrorIs(t, err, appErr.ErrExtraction)
	}
}

func TestNewRejectsOverlapNotSmallerThanTarget(t *testing.T) {
	_, err := New(config.ChunkConfig{TargetSize: 50, Overlap: 50})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = New(config.ChunkConfig{TargetSize: 50, Overlap: -1})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestChunkReconstructsRawText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		cfg  config.ChunkConfig
	}{
		{name: "single sentence", raw: "Only one sentence here.", cfg: config.DefaultChunkConfig()},
		{name: "leading and trailing space", raw: "\n\n  Title line\n\nBody text. More body.\n\n", cfg: config.ChunkConfig{TargetSize: 4, Overlap: 1}},
		{name: "paper defaults", raw: samplePaper(200), cfg: config.DefaultChunkConfig()},
		{name: "paper small target", raw: samplePaper(60), cfg: config.ChunkConfig{TargetSize: 40, Overlap: 10}},
		{name: "no overlap", raw: samplePaper(60), cfg: config.ChunkConfig{TargetSize: 40, Overlap: 0}},
		{name: "no punctuation", raw: strings.Repeat("token ", 900), cfg: config.ChunkConfig{TargetSize: 100, Overlap: 20}},
		{name: "cjk", raw: strings.Repeat("研究方法。", 300), cfg: config.ChunkConfig{TargetSize: 64, Overlap: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			require.NoError(t, err)
			chunks, err := c.Chunk(context.Background(), tt.raw, nil)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			require.Equal(t, tt.raw, reconstruct(chunks))
			require.Equal(t, 0, chunks[0].Start)
			require.Equal(t, len(tt.raw), chunks[len(chunks)-1].End)
			for i, ch := range chunks {
				require.Equal(t, i, ch.Index)
				require.Equal(t, tt.raw[ch.Start:ch.End], ch.Text)
				require.NotEmpty(t, strings.TrimSpace(ch.Text))
				if i > 0 {
					require.Greater(t, ch.End, chunks[i-1].End)
					require.LessOrEqual(t, ch.Start, chunks[i-1].End)
					require.Greater(t, ch.Start, chunks[i-1].Start)
				}
			}
		})
	}
}

func TestChunkPacksToTargetWithOverlap(t *testing.T) {
	cfg := config.ChunkConfig{TargetSize: 80, Overlap: 20}
	c, err := New(cfg)
	require.NoError(t, err)
	chunks, err := c.Chunk(context.Background(), samplePaper(120), nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	overlapped := 0
	for i, ch := range chunks {
		require.LessOrEqual(t, ch.TokenCount, cfg.TargetSize+cfg.Overlap)
		if i == 0 {
			continue
		}
		if ch.Start < chunks[i-1].End {
			overlapped++
			shared := chunks[i-1].End - ch.Start
			require.LessOrEqual(t, EstimateTokens(ch.Text[:shared]), cfg.Overlap)
		}
	}
	require.Equal(t, len(chunks)-1, overlapped)
}

func TestChunkNeverEmitsBlankChunks(t *testing.T) {
	raw := "Short one.\n\n   " + strings.Repeat("字", 10) + " tail words here."
	for _, overlap := range []int{0, 4} {
		c, err := New(config.ChunkConfig{TargetSize: 5, Overlap: overlap})
		require.NoError(t, err)
		chunks, err := c.Chunk(context.Background(), raw, nil)
		require.NoError(t, err)
		for _, ch := range chunks {
			require.NotEmpty(t, strings.TrimSpace(ch.Text), "chunk %d", ch.Index)
		}
		require.Equal(t, raw, reconstruct(chunks))
	}
}

func TestChunkAttachesPageAndSection(t *testing.T) {
	page1 := "Abstract\nWe study retrieval. It works well.\n\n"
	page2 := "3. Results\nAccuracy improved by ten points.\n"
	raw := page1 + page2
	pages := []model.PageBoundary{{Page: 1, Offset: 0}, {Page: 2, Offset: len(page1)}}

	c, err := New(config.ChunkConfig{TargetSize: 8, Overlap: 0})
	require.NoError(t, err)
	chunks, err := c.Chunk(context.Background(), raw, pages)
	require.NoError(t, err)

	first := chunks[0]
	require.Equal(t, 1, first.Page)
	require.Equal(t, "Abstract", first.Section)

	last := chunks[len(chunks)-1]
	require.Equal(t, 2, last.Page)
	require.Equal(t, "3. Results", last.Section)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "   ", want: 0},
		{text: "one", want: 2},
		{text: "one two three four five six seven eight nine ten", want: 13},
		{text: "研究", want: 4},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, EstimateTokens(tt.text), tt.text)
	}
}

func TestHeadingTitle(t *testing.T) {
	tests := []struct {
		line  string
		want  string
		match bool
	}{
		{line: "Abstract\n", want: "Abstract", match: true},
		{line: "  Introduction:  ", want: "Introduction", match: true},
		{line: "2.1 Data Collection", want: "2.1 Data Collection", match: true},
		{line: "IV. EXPERIMENTS", want: "IV. EXPERIMENTS", match: true},
		{line: "RELATED WORK", want: "RELATED WORK", match: true},
		{line: "3 participants were excluded from the study.", match: false},
		{line: "Results show a strong improvement over the baseline.", match: false},
		{line: "", match: false},
	}
	for _, tt := range tests {
		got, ok := headingTitle(tt.line)
		require.Equal(t, tt.match, ok, tt.line)
		if tt.match {
			require.Equal(t, tt.want, got)
		}
	}
}
