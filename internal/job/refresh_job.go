package job

import (
	"context"
	"time"

	"github.com/Priyapatil1612/citebase/internal/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type staleLister interface {
	ListStale(ctx context.Context, before int64, limit int) ([]*model.Project, error)
}

type researcher interface {
	Research(ctx context.Context, id string, force bool) (*model.Project, error)
}

// RefreshJob re-runs research for completed projects whose index has not
// been touched for maxAge. Re-ingestion is forced but content-hash dedup
// keeps unchanged pages from being re-embedded.
type RefreshJob struct {
	store    staleLister
	projects researcher
	maxAge   time.Duration
	batch    int
}

func NewRefreshJob(store staleLister, projects researcher, maxAge time.Duration, batch int) *RefreshJob {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if batch <= 0 {
		batch = 5
	}
	return &RefreshJob{store: store, projects: projects, maxAge: maxAge, batch: batch}
}

func (j *RefreshJob) Name() string {
	return "research_refresh"
}

func (j *RefreshJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.maxAge).UnixMilli()
	stale, err := j.store.ListStale(ctx, cutoff, j.batch)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, p := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := j.projects.Research(ctx, p.ID, true); err != nil {
			// one stale project failing should not stop the rest
			logger.Warn("refresh failed", zap.String("project_id", p.ID), zap.Error(err))
			continue
		}
		logger.Info("project refreshed", zap.String("project_id", p.ID), zap.String("namespace", p.Namespace))
	}
	return nil
}
