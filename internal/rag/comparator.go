package rag

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/retriever"
)

const defaultMaxParallel = 4

type PairRetriever interface {
	RetrievePair(ctx context.Context, question string, paper1 string, paper2 string, opts ...retriever.Option) (*model.RetrievalResult, *model.RetrievalResult, error)
}

type PaperRef struct {
	ID   string
	Name string
}

func (p PaperRef) label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

type Comparator struct {
	retriever   PairRetriever
	gen         ai.IGenerator
	maxParallel int
}

func NewComparator(r PairRetriever, gen ai.IGenerator, maxParallel int) *Comparator {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Comparator{retriever: r, gen: gen, maxParallel: maxParallel}
}

// Compare runs one unit per aspect, at most maxParallel at a time. A failing
// unit yields a placeholder for its aspect and never affects the others; the
// map is returned once every unit has finished.
func (c *Comparator) Compare(ctx context.Context, paper1, paper2 PaperRef, aspects []model.Aspect) (map[model.Aspect]*model.AspectResult, error) {
	if len(aspects) == 0 {
		aspects = model.AllAspects
	}
	results := make([]*model.AspectResult, len(aspects))
	var g errgroup.Group
	g.SetLimit(c.maxParallel)
	for i, aspect := range aspects {
		g.Go(func() error {
			results[i] = c.compareAspect(ctx, aspect, paper1, paper2)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[model.Aspect]*model.AspectResult, len(results))
	for _, res := range results {
		out[res.Aspect] = res
	}
	return out, nil
}

func (c *Comparator) compareAspect(ctx context.Context, aspect model.Aspect, paper1, paper2 PaperRef) *model.AspectResult {
	logger := logutil.GetLogger(ctx).With(zap.String("aspect", string(aspect)))
	res := &model.AspectResult{Aspect: aspect}
	first, second, err := c.retriever.RetrievePair(ctx, AspectQuery(aspect), paper1.ID, paper2.ID)
	if err != nil {
		logger.Warn("aspect retrieval failed", zap.Error(err))
		return unavailable(res, err)
	}
	res.Paper1Score = first.Score
	res.Paper2Score = second.Score
	if !first.IsRelevant && !second.IsRelevant {
		res.Paper1 = NotMentioned
		res.Paper2 = NotMentioned
		return res
	}
	raw, err := c.gen.Generate(ctx, buildAspectPrompt(aspect, paper1, paper2, first, second))
	if err != nil {
		logger.Warn("aspect generation failed", zap.Error(err))
		return unavailable(res, err)
	}
	res.RawText = raw
	if sections, ok := parseComparison(raw); ok {
		res.Paper1 = sections.paper1
		res.Paper2 = sections.paper2
		res.Differences = sections.differences
	} else {
		logger.Debug("comparison response not in labelled form")
	}
	if !first.IsRelevant {
		res.Paper1 = NotMentioned
	}
	if !second.IsRelevant {
		res.Paper2 = NotMentioned
	}
	return res
}

func unavailable(res *model.AspectResult, err error) *model.AspectResult {
	msg := fmt.Sprintf("Comparison unavailable: %v", err)
	res.Paper1 = msg
	res.Paper2 = msg
	res.Differences = msg
	res.Error = err.Error()
	return res
}
