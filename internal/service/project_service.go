package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Priyapatil1612/citebase/internal/index"
	"github.com/Priyapatil1612/citebase/internal/model"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ProjectStore is the persistence surface ProjectService needs. The postgres
// repo implements it; tests swap in a fake.
type ProjectStore interface {
	Create(ctx context.Context, p *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	GetByNamespace(ctx context.Context, namespace string) (*model.Project, error)
	List(ctx context.Context, offset int, limit int) ([]*model.Project, error)
	Delete(ctx context.Context, id string) error
	UpdateInfo(ctx context.Context, id string, name string, description string) error
	TransitionState(ctx context.Context, id string, event model.ResearchEvent) (*model.Project, error)
	SaveSummary(ctx context.Context, id string, summary *model.IngestionSummary) error
}

// Ingestor runs the research pipeline for one namespace.
type Ingestor interface {
	Ingest(ctx context.Context, namespace string, topic string, force bool) (*model.IngestionSummary, error)
}

// Answerer produces a grounded answer from an indexed namespace.
type Answerer interface {
	Answer(ctx context.Context, namespace string, question string) (*model.AnsweredQuestion, error)
}

type ProjectService struct {
	store    ProjectStore
	ingestor Ingestor
	answerer Answerer
	idx      index.Index
}

func NewProjectService(store ProjectStore, ingestor Ingestor, answerer Answerer, idx index.Index) *ProjectService {
	return &ProjectService{store: store, ingestor: ingestor, answerer: answerer, idx: idx}
}

func (s *ProjectService) Create(ctx context.Context, name string, description string, topic string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	topic = strings.TrimSpace(topic)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", appErr.ErrInvalid)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: research topic is required", appErr.ErrInvalid)
	}
	namespace, err := s.pickNamespace(ctx, name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	p := &model.Project{
		ID:          newID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Topic:       topic,
		Namespace:   namespace,
		State:       model.StateCreated,
		Ctime:       now,
		Mtime:       now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// pickNamespace retries the random suffix until the namespace is free. The
// unique constraint on the column still backs this up under races.
func (s *ProjectService) pickNamespace(ctx context.Context, name string) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		namespace := namespaceFor(name)
		_, err := s.store.GetByNamespace(ctx, namespace)
		if appErr.IsNotFound(err) {
			return namespace, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: could not allocate a free namespace for %q", appErr.ErrConflict, name)
}

func (s *ProjectService) Get(ctx context.Context, id string) (*model.Project, error) {
	return s.store.GetByID(ctx, id)
}

func (s *ProjectService) List(ctx context.Context, offset int, limit int) ([]*model.Project, error) {
	return s.store.List(ctx, offset, limit)
}

func (s *ProjectService) Update(ctx context.Context, id string, name string, description string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", appErr.ErrInvalid)
	}
	if err := s.store.UpdateInfo(ctx, id, name, strings.TrimSpace(description)); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// Delete removes the project and purges every vector its namespace holds.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	stats, err := s.idx.Sources(ctx, p.Namespace)
	if err != nil {
		return fmt.Errorf("inspect namespace for delete: %w", err)
	}
	for _, stat := range stats {
		if err := s.idx.Delete(ctx, p.Namespace, stat.ChunkIDs); err != nil {
			return fmt.Errorf("purge namespace %s: %w", p.Namespace, err)
		}
	}
	return s.store.Delete(ctx, id)
}

// Research runs the pipeline for a project. The state machine guards the
// run: a project already researching rejects a second trigger, and any
// pipeline failure lands the project in the error state with the cause
// preserved in the returned error.
func (s *ProjectService) Research(ctx context.Context, id string, force bool) (*model.Project, error) {
	p, err := s.store.TransitionState(ctx, id, model.EventStart)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("project_id", p.ID),
		zap.String("namespace", p.Namespace),
	)
	logger.Info("research started", zap.String("topic", p.Topic), zap.Bool("force", force))

	summary, err := s.ingestor.Ingest(ctx, p.Namespace, p.Topic, force)
	if err != nil {
		logger.Error("research failed", zap.Error(err))
		if _, ferr := s.store.TransitionState(ctx, id, model.EventFail); ferr != nil {
			logger.Error("failed to mark project as errored", zap.Error(ferr))
		}
		return nil, err
	}
	if err := s.store.SaveSummary(ctx, id, summary); err != nil {
		logger.Error("failed to persist ingestion summary", zap.Error(err))
		if _, ferr := s.store.TransitionState(ctx, id, model.EventFail); ferr != nil {
			logger.Error("failed to mark project as errored", zap.Error(ferr))
		}
		return nil, err
	}
	p, err = s.store.TransitionState(ctx, id, model.EventComplete)
	if err != nil {
		return nil, err
	}
	p.Summary = summary
	logger.Info("research completed",
		zap.Int("indexed_pages", summary.IndexedPages),
		zap.Int("indexed_chunks", summary.IndexedChunks),
		zap.Bool("did_ingest", summary.DidIngest),
	)
	return p, nil
}

// Ask answers a question against a completed project.
func (s *ProjectService) Ask(ctx context.Context, id string, question string) (*model.AnsweredQuestion, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.State != model.StateCompleted {
		return nil, fmt.Errorf("%w: project is %s", appErr.ErrResearchNotReady, p.State)
	}
	return s.answerer.Answer(ctx, p.Namespace, question)
}
