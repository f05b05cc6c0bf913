package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Priyapatil1612/citebase/internal/model"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
)

// MemoryIndex is a process-local Index. It serves the memory vector_store
// mode and every test that should not need a database.
type MemoryIndex struct {
	mu   sync.RWMutex
	data map[string]map[string]model.ChunkVector
	dims map[string]int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		data: make(map[string]map[string]model.ChunkVector),
		dims: make(map[string]int),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, vectors []model.ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dim, locked := m.dims[namespace]
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		if !locked {
			dim = len(v.Embedding)
			locked = true
		}
		if len(v.Embedding) != dim {
			return &DimensionError{Namespace: namespace, Want: dim, Got: len(v.Embedding)}
		}
	}
	ns := m.data[namespace]
	if ns == nil {
		ns = make(map[string]model.ChunkVector)
		m.data[namespace] = ns
	}
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		ns[v.ID] = v
	}
	if len(ns) > 0 {
		m.dims[namespace] = dim
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, namespace string, embedding []float32, k int) ([]model.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.data[namespace]
	if len(ns) == 0 {
		return nil, appErr.ErrEmptyIndex
	}
	if dim := m.dims[namespace]; len(embedding) != dim {
		return nil, &DimensionError{Namespace: namespace, Want: dim, Got: len(embedding)}
	}
	if k <= 0 {
		return nil, nil
	}
	scored := make([]model.ScoredChunk, 0, len(ns))
	for _, v := range ns {
		scored = append(scored, model.ScoredChunk{
			Chunk: v.Chunk,
			Score: cosineSimilarity(embedding, v.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Seq != scored[j].Seq {
			return scored[i].Seq < scored[j].Seq
		}
		return scored[i].SourceURL < scored[j].SourceURL
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.data[namespace]
	if ns == nil {
		return nil
	}
	for _, id := range ids {
		delete(ns, id)
	}
	if len(ns) == 0 {
		delete(m.data, namespace)
		delete(m.dims, namespace)
	}
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[namespace]), nil
}

func (m *MemoryIndex) Sources(ctx context.Context, namespace string) ([]model.SourceStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byURL := make(map[string]*model.SourceStat)
	for _, v := range m.data[namespace] {
		stat := byURL[v.SourceURL]
		if stat == nil {
			stat = &model.SourceStat{
				URL:         v.SourceURL,
				Title:       v.SourceTitle,
				ContentHash: v.ContentHash,
				TextLen:     v.SourceTextLen,
			}
			byURL[v.SourceURL] = stat
		}
		stat.ChunkIDs = append(stat.ChunkIDs, v.ID)
	}
	out := make([]model.SourceStat, 0, len(byURL))
	for _, stat := range byURL {
		sort.Strings(stat.ChunkIDs)
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
