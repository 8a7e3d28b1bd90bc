package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/model"
)

const previewRunes = 200

type Composer struct {
	gen   ai.IGenerator
	cache *expirable.LRU[string, string]
}

type ComposerOption func(*Composer)

// WithAnswerCache memoizes generated answers by prompt.
func WithAnswerCache(size int, ttl time.Duration) ComposerOption {
	return func(c *Composer) {
		if size <= 0 || ttl <= 0 {
			return
		}
		c.cache = expirable.NewLRU[string, string](size, nil, ttl)
	}
}

func NewComposer(gen ai.IGenerator, opts ...ComposerOption) *Composer {
	c := &Composer{gen: gen}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Answer grounds one answer in result. Without relevant chunks the fallback
// literal is returned and the generator is not called.
func (c *Composer) Answer(ctx context.Context, question string, result *model.RetrievalResult, level model.ExplanationLevel) (*model.Answer, error) {
	out := &model.Answer{
		RelevanceScore: result.Score,
		IsRelevant:     result.IsRelevant,
		Tier:           result.Tier,
		Sources:        []string{},
		Evidence:       []model.SourceRef{},
	}
	if !result.IsRelevant {
		out.Answer = FallbackAnswer
		return out, nil
	}
	text, err := c.generate(ctx, buildAnswerPrompt(question, result, level))
	if err != nil {
		return nil, err
	}
	out.Answer = text
	addEvidence(out, result.Chunks)
	return out, nil
}

// AnswerPair answers over two papers' evidence kept in separate, labelled context blocks.
func (c *Composer) AnswerPair(ctx context.Context, question string, first, second *model.RetrievalResult, level model.ExplanationLevel) (*model.Answer, error) {
	out := &model.Answer{
		RelevanceScore: first.Score,
		IsRelevant:     first.IsRelevant || second.IsRelevant,
		Tier:           higherTier(first.Tier, second.Tier),
		Sources:        []string{},
		Evidence:       []model.SourceRef{},
	}
	if second.Score > out.RelevanceScore {
		out.RelevanceScore = second.Score
	}
	if !out.IsRelevant {
		out.Answer = FallbackPairAnswer
		return out, nil
	}
	text, err := c.generate(ctx, buildPairPrompt(question, first, second, level))
	if err != nil {
		return nil, err
	}
	out.Answer = text
	addEvidence(out, first.Chunks)
	addEvidence(out, second.Chunks)
	return out, nil
}

func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	var key string
	if c.cache != nil {
		sum := sha256.Sum256([]byte(prompt))
		key = hex.EncodeToString(sum[:])
		if cached, ok := c.cache.Get(key); ok {
			logutil.GetLogger(ctx).Debug("answer cache hit")
			return cached, nil
		}
	}
	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Add(key, text)
	}
	logutil.GetLogger(ctx).Debug("answer generated", zap.Int("prompt_len", len(prompt)), zap.Int("answer_len", len(text)))
	return text, nil
}

func addEvidence(out *model.Answer, chunks []model.ScoredChunk) {
	for _, sc := range chunks {
		out.Sources = append(out.Sources, sc.Chunk.ID)
		out.Evidence = append(out.Evidence, model.SourceRef{
			ChunkID: sc.Chunk.ID,
			PaperID: sc.Chunk.PaperID,
			Index:   sc.Chunk.Index,
			Page:    sc.Chunk.Page,
			Section: sc.Chunk.Section,
			Score:   sc.Score,
			Preview: preview(sc.Chunk.Text),
		})
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "..."
}

var tierRank = map[model.RelevanceTier]int{
	model.RelevanceLow:    0,
	model.RelevanceMedium: 1,
	model.RelevanceHigh:   2,
}

func higherTier(a, b model.RelevanceTier) model.RelevanceTier {
	if tierRank[b] > tierRank[a] {
		return b
	}
	return a
}
