package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type staleReaper interface {
	ReapStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

// StaleIngestReaperJob fails papers left mid-ingestion, for example by a restart.
type StaleIngestReaperJob struct {
	papers     staleReaper
	staleAfter time.Duration
}

func NewStaleIngestReaperJob(papers staleReaper, staleAfter time.Duration) *StaleIngestReaperJob {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &StaleIngestReaperJob{papers: papers, staleAfter: staleAfter}
}

func (j *StaleIngestReaperJob) Name() string {
	return "stale_ingest_reaper"
}

func (j *StaleIngestReaperJob) Run(ctx context.Context) error {
	reaped, err := j.papers.ReapStale(ctx, j.staleAfter)
	if err != nil {
		return err
	}
	if reaped > 0 {
		logutil.GetLogger(ctx).Warn("stale ingestions marked failed", zap.Int("count", reaped))
	}
	return nil
}
