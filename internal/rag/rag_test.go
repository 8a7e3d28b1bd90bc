package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/retriever"
	"github.com/xxxsen/paperqa/internal/vectorindex"
)

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (r *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()
	if r.reply == nil {
		return "generated answer", nil
	}
	return r.reply(prompt)
}

func (r *recordingGenerator) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

func scored(paperID string, idx int, text string, score float32) model.ScoredChunk {
	return model.ScoredChunk{
		Chunk: &model.Chunk{ID: model.ChunkID(paperID, idx), PaperID: paperID, Index: idx, Text: text, Page: 2, Section: "Methods"},
		Score: score,
	}
}

func relevant(paperID string, chunks ...model.ScoredChunk) *model.RetrievalResult {
	return &model.RetrievalResult{PaperID: paperID, Chunks: chunks, Score: chunks[0].Score, IsRelevant: true, Tier: model.RelevanceHigh}
}

func irrelevant(paperID string) *model.RetrievalResult {
	return &model.RetrievalResult{PaperID: paperID, Chunks: []model.ScoredChunk{}, Tier: model.RelevanceLow}
}

func TestAnswerFallbackSkipsGeneration(t *testing.T) {
	gen := &recordingGenerator{}
	c := NewComposer(gen)
	res := irrelevant("p")
	res.Score = 0
	ans, err := c.Answer(context.Background(), "What is the weather?", res, model.ExplanationTechnical)
	require.NoError(t, err)
	require.Equal(t, FallbackAnswer, ans.Answer)
	require.False(t, ans.IsRelevant)
	require.Empty(t, ans.Sources)
	require.Zero(t, gen.calls())
}

func TestAnswerBuildsGroundedPrompt(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) (string, error) { return "  raw model output  ", nil }}
	c := NewComposer(gen)
	res := relevant("p", scored("p", 4, "We recruited 120 participants.", 0.82), scored("p", 1, "Data was collected online.", 0.5))

	ans, err := c.Answer(context.Background(), "How many participants?", res, model.ExplanationSimple)
	require.NoError(t, err)
	require.Equal(t, "  raw model output  ", ans.Answer)
	require.Equal(t, []string{"p:4", "p:1"}, ans.Sources)
	require.InDelta(t, 0.82, ans.RelevanceScore, 1e-6)
	require.True(t, ans.IsRelevant)
	require.Equal(t, "Methods", ans.Evidence[0].Section)

	prompt := gen.prompts[0]
	require.Contains(t, prompt, "[1] (page 2, Methods)\nWe recruited 120 participants.")
	require.Contains(t, prompt, "[2] (page 2, Methods)\nData was collected online.")
	require.Contains(t, prompt, "This information is not mentioned in the provided context.")
	require.Contains(t, prompt, "simple, accessible language")
	require.Contains(t, prompt, "Question: How many participants?")
}

func TestAnswerRegisterByLevel(t *testing.T) {
	gen := &recordingGenerator{}
	c := NewComposer(gen)
	res := relevant("p", scored("p", 0, "text", 0.9))
	for _, level := range []string{"technical", "unknown", ""} {
		_, err := c.Answer(context.Background(), "q", res, model.NormalizeExplanationLevel(level))
		require.NoError(t, err)
	}
	for _, prompt := range gen.prompts {
		require.Contains(t, prompt, "technical terminology")
		require.NotContains(t, prompt, "Paper 1 and Paper 2")
	}
}

func TestAnswerGenerationError(t *testing.T) {
	cause := errors.Join(appErr.ErrGeneration, errors.New("timeout"))
	gen := &recordingGenerator{reply: func(string) (string, error) { return "", cause }}
	_, err := NewComposer(gen).Answer(context.Background(), "q", relevant("p", scored("p", 0, "t", 0.9)), model.ExplanationTechnical)
	require.ErrorIs(t, err, appErr.ErrGeneration)
}

func TestAnswerCache(t *testing.T) {
	gen := &recordingGenerator{}
	c := NewComposer(gen, WithAnswerCache(8, time.Minute))
	res := relevant("p", scored("p", 0, "text", 0.9))
	for i := 0; i < 3; i++ {
		ans, err := c.Answer(context.Background(), "q", res, model.ExplanationTechnical)
		require.NoError(t, err)
		require.Equal(t, "generated answer", ans.Answer)
	}
	require.Equal(t, 1, gen.calls())
}

func TestAnswerPair(t *testing.T) {
	gen := &recordingGenerator{}
	c := NewComposer(gen)

	ans, err := c.AnswerPair(context.Background(), "q", irrelevant("a"), irrelevant("b"), model.ExplanationTechnical)
	require.NoError(t, err)
	require.Equal(t, FallbackPairAnswer, ans.Answer)
	require.Zero(t, gen.calls())

	ans, err = c.AnswerPair(context.Background(), "q", irrelevant("a"), relevant("b", scored("b", 0, "only b", 0.7)), model.ExplanationTechnical)
	require.NoError(t, err)
	require.True(t, ans.IsRelevant)
	require.Equal(t, model.RelevanceHigh, ans.Tier)
	require.InDelta(t, 0.7, ans.RelevanceScore, 1e-6)
	require.Equal(t, []string{"b:0"}, ans.Sources)
	prompt := gen.prompts[0]
	require.Contains(t, prompt, "Clearly distinguish between Paper 1 and Paper 2")
	p1 := strings.Index(prompt, "Context from Paper 1:")
	p2 := strings.Index(prompt, "Context from Paper 2:")
	require.True(t, p1 >= 0 && p2 > p1)
	require.Contains(t, prompt[p1:p2], noPassages)
	require.Contains(t, prompt[p2:], "only b")
}

// End to end over a real retriever: a threshold above any cosine score always yields the fallback.
func TestThresholdAboveOneYieldsFallback(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemory()
	require.NoError(t, idx.Upsert(ctx, "p", &model.Chunk{ID: "p:0", PaperID: "p", Text: "identical"}, []float32{1, 0}))
	require.NoError(t, idx.Seal(ctx, "p"))
	r := retriever.New(constEmbedder{v: []float32{1, 0}}, idx, config.RetrievalConfig{TopK: 5, Threshold: 1.1})

	res, err := r.Retrieve(ctx, "identical", "p")
	require.NoError(t, err)
	gen := &recordingGenerator{}
	ans, err := NewComposer(gen).Answer(ctx, "identical", res, model.ExplanationTechnical)
	require.NoError(t, err)
	require.Equal(t, FallbackAnswer, ans.Answer)
	require.Zero(t, gen.calls())
}

type constEmbedder struct {
	v []float32
}

func (c constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.v, nil
}

type aspectRetriever struct {
	byQuestion map[string][2]*model.RetrievalResult
	fail       map[string]error
	inFlight   atomic.Int32
	peak       atomic.Int32
}

func (a *aspectRetriever) RetrievePair(ctx context.Context, question string, paper1 string, paper2 string, opts ...retriever.Option) (*model.RetrievalResult, *model.RetrievalResult, error) {
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		peak := a.peak.Load()
		if n <= peak || a.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	if err := a.fail[question]; err != nil {
		return nil, nil, err
	}
	pair, ok := a.byQuestion[question]
	if !ok {
		return irrelevant(paper1), irrelevant(paper2), nil
	}
	return pair[0], pair[1], nil
}

func TestCompareDatasetWithoutPaper2Evidence(t *testing.T) {
	r := &aspectRetriever{byQuestion: map[string][2]*model.RetrievalResult{
		AspectQuery(model.AspectDataset): {relevant("a", scored("a", 3, "We use ImageNet.", 0.8)), irrelevant("b")},
	}}
	gen := &recordingGenerator{reply: func(string) (string, error) {
		return "PAPER 1: ImageNet.\nPAPER 2: Probably COCO.\nDIFFERENCES: Only paper 1 names a dataset.", nil
	}}
	c := NewComparator(r, gen, 2)
	out, err := c.Compare(context.Background(), PaperRef{ID: "a", Name: "A"}, PaperRef{ID: "b", Name: "B"}, []model.Aspect{model.AspectDataset})
	require.NoError(t, err)
	res := out[model.AspectDataset]
	require.Equal(t, "ImageNet.", res.Paper1)
	require.Equal(t, NotMentioned, res.Paper2)
	require.Equal(t, "Only paper 1 names a dataset.", res.Differences)
	require.NotEmpty(t, res.RawText)
	require.Empty(t, res.Error)
	require.InDelta(t, 0.8, res.Paper1Score, 1e-6)
	require.Contains(t, gen.prompts[0], "Context from Paper 2 (B):\n"+noPassages)
}

func TestCompareAllAspectsWithFailures(t *testing.T) {
	methodology := AspectQuery(model.AspectMethodology)
	results := AspectQuery(model.AspectResults)
	r := &aspectRetriever{
		byQuestion: map[string][2]*model.RetrievalResult{
			methodology: {relevant("a", scored("a", 0, "survey", 0.9)), relevant("b", scored("b", 0, "trial", 0.7))},
			results:     {relevant("a", scored("a", 1, "gain", 0.9)), relevant("b", scored("b", 1, "loss", 0.6))},
		},
		fail: map[string]error{AspectQuery(model.AspectLimitations): appErr.ErrCollectionNotFound},
	}
	gen := &recordingGenerator{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Aspect: results") {
			return "", errors.Join(appErr.ErrGeneration, errors.New("model down"))
		}
		return "Both papers describe a design without labels.", nil
	}}
	c := NewComparator(r, gen, 4)
	out, err := c.Compare(context.Background(), PaperRef{ID: "a"}, PaperRef{ID: "b"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 4)

	m := out[model.AspectMethodology]
	require.Empty(t, m.Paper1)
	require.Empty(t, m.Differences)
	require.Equal(t, "Both papers describe a design without labels.", m.RawText)

	d := out[model.AspectDataset]
	require.Equal(t, NotMentioned, d.Paper1)
	require.Equal(t, NotMentioned, d.Paper2)
	require.Empty(t, d.Differences)

	res := out[model.AspectResults]
	require.NotEmpty(t, res.Error)
	require.True(t, strings.HasPrefix(res.Paper1, "Comparison unavailable: "))

	l := out[model.AspectLimitations]
	require.Contains(t, l.Error, appErr.ErrCollectionNotFound.Error())

	require.Equal(t, 2, gen.calls())
}

func TestCompareBoundsParallelism(t *testing.T) {
	r := &aspectRetriever{}
	c := NewComparator(r, &recordingGenerator{}, 2)
	_, err := c.Compare(context.Background(), PaperRef{ID: "a"}, PaperRef{ID: "b"}, model.AllAspects)
	require.NoError(t, err)
	require.LessOrEqual(t, r.peak.Load(), int32(2))
	require.GreaterOrEqual(t, r.peak.Load(), int32(1))
}
