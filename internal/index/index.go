package index

import (
	"context"
	"fmt"

	"github.com/Priyapatil1612/citebase/internal/model"
)

// Index stores chunk vectors per namespace and serves similarity queries.
// Implementations must reject vectors whose dimension differs from the one
// the namespace was created with.
type Index interface {
	// Upsert inserts or replaces vectors by chunk id.
	Upsert(ctx context.Context, namespace string, vectors []model.ChunkVector) error
	// Query returns the k most similar chunks by cosine similarity, best
	// first. Ties break by seq ascending, then source url.
	Query(ctx context.Context, namespace string, embedding []float32, k int) ([]model.ScoredChunk, error)
	// Delete removes vectors by chunk id. Unknown ids are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error
	// Count reports how many vectors the namespace holds.
	Count(ctx context.Context, namespace string) (int, error)
	// Sources aggregates the namespace's vectors by source url.
	Sources(ctx context.Context, namespace string) ([]model.SourceStat, error)
}

// DimensionError reports a vector that does not match the dimension the
// namespace is locked to. It usually means the embedding model changed
// between ingest runs.
type DimensionError struct {
	Namespace string
	Want      int
	Got       int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("namespace %s expects %d-dimension vectors, got %d", e.Namespace, e.Want, e.Got)
}
