package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/chunker"
	"github.com/xxxsen/paperqa/internal/extract"
	"github.com/xxxsen/paperqa/internal/filestore"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/rag"
	"github.com/xxxsen/paperqa/internal/retriever"
	"github.com/xxxsen/paperqa/internal/vectorindex"
)

const interruptedReason = "ingestion interrupted"

// PaperStore persists paper records. Both repo.PaperRepo and repo.MemoryPaperRepo satisfy it.
type PaperStore interface {
	Create(ctx context.Context, paper *model.Paper) error
	Update(ctx context.Context, paper *model.Paper) error
	Get(ctx context.Context, id string) (*model.Paper, error)
	List(ctx context.Context) ([]*model.Paper, error)
	ListStale(ctx context.Context, statuses []model.PaperStatus, before int64) ([]*model.Paper, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status model.PaperStatus) (int, error)
}

type DocumentEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type HealthReporter interface {
	Health(ctx context.Context) map[string]string
}

type PaperServiceDeps struct {
	Papers    PaperStore
	Files     filestore.Store
	Extractor extract.Extractor
	Chunker   *chunker.Chunker
	Embedder  DocumentEmbedder
	Index     vectorindex.Index
	IndexType string
	Retriever *retriever.Retriever
	Generator ai.IGenerator
	Composer  *rag.Composer
	Compare   *rag.Comparator
	Backends  HealthReporter
}

type PaperService struct {
	papers    PaperStore
	files     filestore.Store
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  DocumentEmbedder
	index     vectorindex.Index
	indexType string
	retriever *retriever.Retriever
	composer  *rag.Composer
	compare   *rag.Comparator
	backends  HealthReporter
	inflight  *ingestRegistry
}

type HealthReport struct {
	Status       string            `json:"status"`
	PapersLoaded int               `json:"papers_loaded"`
	Generator    map[string]string `json:"generator"`
	Index        string            `json:"index"`
}

func NewPaperService(deps PaperServiceDeps) *PaperService {
	composer := deps.Composer
	if composer == nil {
		composer = rag.NewComposer(deps.Generator)
	}
	comparator := deps.Compare
	if comparator == nil {
		comparator = rag.NewComparator(deps.Retriever, deps.Generator, 0)
	}
	return &PaperService{
		papers:    deps.Papers,
		files:     deps.Files,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		index:     deps.Index,
		indexType: deps.IndexType,
		retriever: deps.Retriever,
		composer:  composer,
		compare:   comparator,
		backends:  deps.Backends,
		inflight:  newIngestRegistry(),
	}
}

// Ingest chunks, embeds and indexes already extracted text under paperID.
// A second ingestion of an id in flight is rejected with ErrIngestInProgress;
// an id with an existing record is rejected unless that record failed.
func (s *PaperService) Ingest(ctx context.Context, paperID, name, raw string, pages []model.PageBoundary) (*model.Paper, error) {
	paperID = strings.TrimSpace(paperID)
	if paperID == "" {
		return nil, fmt.Errorf("%w: paper id is required", appErr.ErrInvalid)
	}
	if !s.inflight.acquire(paperID) {
		return nil, appErr.ErrIngestInProgress
	}
	defer s.inflight.release(paperID)

	paper, err := s.prepare(ctx, paperID, name)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, paper, raw, pages)
}

// Upload stores pdf under a fresh id, extracts its text and ingests it.
func (s *PaperService) Upload(ctx context.Context, filename string, pdf io.Reader, size int64) (*model.Paper, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%w: only .pdf files are accepted", appErr.ErrInvalid)
	}
	data, err := io.ReadAll(pdf)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 || size == 0 {
		return nil, fmt.Errorf("%w: file is empty", appErr.ErrInvalid)
	}

	paperID := uuid.NewString()
	if !s.inflight.acquire(paperID) {
		return nil, appErr.ErrIngestInProgress
	}
	defer s.inflight.release(paperID)

	now := time.Now().Unix()
	paper := &model.Paper{
		ID:       paperID,
		Name:     strings.TrimSuffix(filename, filepath.Ext(filename)),
		Filename: filename,
		Status:   model.PaperStatusUploading,
		Ctime:    now,
		Mtime:    now,
	}
	if err := s.papers.Create(ctx, paper); err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("paper_id", paperID))
	logger.Info("paper uploaded", zap.String("filename", filename), zap.Int("size", len(data)))

	if s.files != nil {
		if err := s.files.Save(ctx, filestore.PaperKey(paperID), filestore.NopCloser(bytes.NewReader(data)), int64(len(data))); err != nil {
			return nil, s.fail(ctx, paper, fmt.Errorf("store pdf: %w", err))
		}
	}
	if err := s.setStatus(ctx, paper, model.PaperStatusExtracting); err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	doc, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	paper.PageCount = doc.PageCount
	return s.ingest(ctx, paper, doc.Text, doc.Pages)
}

func (s *PaperService) prepare(ctx context.Context, paperID, name string) (*model.Paper, error) {
	now := time.Now().Unix()
	existing, err := s.papers.Get(ctx, paperID)
	switch {
	case err == nil:
		if existing.Status != model.PaperStatusFailed {
			return nil, fmt.Errorf("%w: paper %s already exists", appErr.ErrConflict, paperID)
		}
		s.discard(ctx, paperID)
		existing.FailReason = ""
		existing.ChunkCount = 0
		if name != "" {
			existing.Name = name
		}
		return existing, nil
	case appErr.IsNotFound(err):
		if name == "" {
			name = paperID
		}
		paper := &model.Paper{ID: paperID, Name: name, Status: model.PaperStatusChunking, Ctime: now, Mtime: now}
		if err := s.papers.Create(ctx, paper); err != nil {
			return nil, err
		}
		return paper, nil
	default:
		return nil, err
	}
}

// ingest runs chunk, embed, upsert and seal for a paper whose id the caller holds in the registry.
func (s *PaperService) ingest(ctx context.Context, paper *model.Paper, raw string, pages []model.PageBoundary) (*model.Paper, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("paper_id", paper.ID))
	paper.RawText = raw
	if paper.PageCount == 0 {
		paper.PageCount = len(pages)
	}
	if err := s.setStatus(ctx, paper, model.PaperStatusChunking); err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	chunks, err := s.chunker.Chunk(ctx, raw, pages)
	if err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	if err := s.setStatus(ctx, paper, model.PaperStatusEmbedding); err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		c.PaperID = paper.ID
		c.ID = model.ChunkID(paper.ID, c.Index)
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	for i, c := range chunks {
		if err := s.index.Upsert(ctx, paper.ID, c, vectors[i]); err != nil {
			return nil, s.fail(ctx, paper, fmt.Errorf("index chunk %d: %w", c.Index, err))
		}
	}
	if err := s.index.Seal(ctx, paper.ID); err != nil {
		return nil, s.fail(ctx, paper, fmt.Errorf("seal collection: %w", err))
	}
	paper.ChunkCount = len(chunks)
	if err := s.setStatus(ctx, paper, model.PaperStatusReady); err != nil {
		return nil, s.fail(ctx, paper, err)
	}
	logger.Info("paper ready", zap.Int("chunks", paper.ChunkCount), zap.Int("pages", paper.PageCount))
	out := *paper
	out.RawText = ""
	return &out, nil
}

func (s *PaperService) setStatus(ctx context.Context, paper *model.Paper, status model.PaperStatus) error {
	paper.Status = status
	paper.Mtime = time.Now().Unix()
	if err := s.papers.Update(ctx, paper); err != nil {
		return fmt.Errorf("update paper status: %w", err)
	}
	logutil.GetLogger(ctx).Info("paper status changed", zap.String("paper_id", paper.ID), zap.String("status", string(status)))
	return nil
}

// fail records cause on the paper, drops its partial collection and returns cause.
func (s *PaperService) fail(ctx context.Context, paper *model.Paper, cause error) error {
	logger := logutil.GetLogger(ctx).With(zap.String("paper_id", paper.ID))
	logger.Error("ingestion failed", zap.String("stage", string(paper.Status)), zap.Error(cause))
	s.discard(ctx, paper.ID)
	paper.Status = model.PaperStatusFailed
	paper.FailReason = cause.Error()
	paper.ChunkCount = 0
	paper.Mtime = time.Now().Unix()
	// The request context may be what failed; the record update must still land.
	if err := s.papers.Update(context.WithoutCancel(ctx), paper); err != nil {
		logger.Error("record failed status", zap.Error(err))
	}
	return cause
}

func (s *PaperService) discard(ctx context.Context, paperID string) {
	if err := s.index.Delete(context.WithoutCancel(ctx), paperID); err != nil && !appErr.IsCollectionNotFound(err) {
		logutil.GetLogger(ctx).Warn("discard collection failed", zap.String("paper_id", paperID), zap.Error(err))
	}
}

// readyPaper resolves a paper that can be queried. Unknown and failed papers
// have no collection; papers still ingesting are not ready.
func (s *PaperService) readyPaper(ctx context.Context, paperID string) (*model.Paper, error) {
	paper, err := s.papers.Get(ctx, paperID)
	if appErr.IsNotFound(err) {
		return nil, fmt.Errorf("%w: paper %s", appErr.ErrCollectionNotFound, paperID)
	}
	if err != nil {
		return nil, err
	}
	switch paper.Status {
	case model.PaperStatusReady:
		return paper, nil
	case model.PaperStatusFailed:
		return nil, fmt.Errorf("%w: paper %s failed: %s", appErr.ErrCollectionNotFound, paperID, paper.FailReason)
	default:
		return nil, fmt.Errorf("%w: paper %s is %s", appErr.ErrNotReady, paperID, paper.Status)
	}
}

func (s *PaperService) Ask(ctx context.Context, paperID, question string, level model.ExplanationLevel) (*model.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	if _, err := s.readyPaper(ctx, paperID); err != nil {
		return nil, err
	}
	result, err := s.retriever.Retrieve(ctx, question, paperID)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("question answered from retrieval",
		zap.String("paper_id", paperID),
		zap.Bool("relevant", result.IsRelevant),
		zap.String("tier", string(result.Tier)),
	)
	return s.composer.Answer(ctx, question, result, level)
}

// AskPair answers one question over two papers, retrieving from each independently.
func (s *PaperService) AskPair(ctx context.Context, paper1, paper2, question string, level model.ExplanationLevel) (*model.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	for _, id := range []string{paper1, paper2} {
		if _, err := s.readyPaper(ctx, id); err != nil {
			return nil, err
		}
	}
	first, second, err := s.retriever.RetrievePair(ctx, question, paper1, paper2)
	if err != nil {
		return nil, err
	}
	return s.composer.AnswerPair(ctx, question, first, second, level)
}

// Compare runs the aspect comparison. Empty aspects means all four; names
// are matched case-insensitively and duplicates are dropped.
func (s *PaperService) Compare(ctx context.Context, paper1, paper2 string, aspects []string) (*model.Comparison, error) {
	parsed, err := parseAspects(aspects)
	if err != nil {
		return nil, err
	}
	first, err := s.readyPaper(ctx, paper1)
	if err != nil {
		return nil, err
	}
	second, err := s.readyPaper(ctx, paper2)
	if err != nil {
		return nil, err
	}
	results, err := s.compare.Compare(ctx,
		rag.PaperRef{ID: first.ID, Name: first.Name},
		rag.PaperRef{ID: second.ID, Name: second.Name},
		parsed,
	)
	if err != nil {
		return nil, err
	}
	return &model.Comparison{
		Paper1ID:   first.ID,
		Paper1Name: first.Name,
		Paper2ID:   second.ID,
		Paper2Name: second.Name,
		Aspects:    results,
	}, nil
}

func parseAspects(names []string) ([]model.Aspect, error) {
	out := make([]model.Aspect, 0, len(names))
	seen := make(map[model.Aspect]bool, len(names))
	for _, name := range names {
		a, err := model.ParseAspect(name)
		if err != nil {
			return nil, err
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}

// Delete drops the paper's collection, record and stored PDF.
func (s *PaperService) Delete(ctx context.Context, paperID string) error {
	if !s.inflight.acquire(paperID) {
		return fmt.Errorf("%w: paper %s", appErr.ErrIngestInProgress, paperID)
	}
	defer s.inflight.release(paperID)
	logger := logutil.GetLogger(ctx).With(zap.String("paper_id", paperID))
	found := false
	err := s.index.Delete(ctx, paperID)
	switch {
	case err == nil:
		found = true
	case !appErr.IsCollectionNotFound(err):
		return err
	}
	err = s.papers.Delete(ctx, paperID)
	switch {
	case err == nil:
		found = true
	case !appErr.IsNotFound(err):
		return err
	}
	if !found {
		return fmt.Errorf("%w: paper %s", appErr.ErrCollectionNotFound, paperID)
	}
	if s.files != nil {
		if err := s.files.Delete(ctx, filestore.PaperKey(paperID)); err != nil && !appErr.IsNotFound(err) {
			logger.Warn("remove stored pdf failed", zap.Error(err))
		}
	}
	logger.Info("paper deleted")
	return nil
}

func (s *PaperService) Get(ctx context.Context, paperID string) (*model.Paper, error) {
	paper, err := s.papers.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}
	paper.RawText = ""
	return paper, nil
}

func (s *PaperService) List(ctx context.Context) ([]*model.Paper, error) {
	return s.papers.List(ctx)
}

func (s *PaperService) Health(ctx context.Context) (*HealthReport, error) {
	loaded, err := s.papers.CountByStatus(ctx, model.PaperStatusReady)
	if err != nil {
		return nil, err
	}
	report := &HealthReport{Status: "healthy", PapersLoaded: loaded, Generator: map[string]string{}, Index: s.indexType}
	if s.backends != nil {
		report.Generator = s.backends.Health(ctx)
	}
	for _, state := range report.Generator {
		if state != "ok" && state != "configured" {
			report.Status = "degraded"
		}
	}
	return report, nil
}

// ReapStale marks papers stuck mid-ingestion for longer than staleAfter as
// failed, skipping ids that are still in flight in this process.
func (s *PaperService) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	before := time.Now().Add(-staleAfter).Unix()
	statuses := []model.PaperStatus{
		model.PaperStatusUploading,
		model.PaperStatusExtracting,
		model.PaperStatusChunking,
		model.PaperStatusEmbedding,
	}
	stale, err := s.papers.ListStale(ctx, statuses, before)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, paper := range stale {
		if !s.inflight.acquire(paper.ID) {
			continue
		}
		_ = s.fail(ctx, paper, errors.New(interruptedReason))
		s.inflight.release(paper.ID)
		reaped++
	}
	return reaped, nil
}
