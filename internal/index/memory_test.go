package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/Priyapatil1612/citebase/internal/model"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
	"github.com/stretchr/testify/require"
)

func chunkVector(ns string, url string, seq int, embedding []float32) model.ChunkVector {
	return model.ChunkVector{
		Chunk: model.Chunk{
			ID:          model.ChunkID(ns, url, seq),
			Namespace:   ns,
			SourceURL:   url,
			SourceTitle: "title of " + url,
			Seq:         seq,
			Text:        fmt.Sprintf("chunk %d of %s", seq, url),
			TokenCount:  10,
		},
		Embedding:     embedding,
		ContentHash:   "hash-" + url,
		SourceTextLen: 5000,
	}
}

func TestMemoryIndexQueryRanking(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	err := idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://a.com/1", 0, []float32{1, 0, 0}),
		chunkVector("ns", "https://a.com/1", 1, []float32{0.9, 0.1, 0}),
		chunkVector("ns", "https://b.com/2", 0, []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	got, err := idx.Query(ctx, "ns", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "https://a.com/1", got[0].SourceURL)
	require.Equal(t, 0, got[0].Seq)
	require.InDelta(t, 1.0, got[0].Score, 1e-9)
	require.Equal(t, 1, got[1].Seq)
	require.Greater(t, got[0].Score, got[1].Score)
}

func TestMemoryIndexNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "ns-a", []model.ChunkVector{
		chunkVector("ns-a", "https://a.com/1", 0, []float32{1, 0}),
	}))
	require.NoError(t, idx.Upsert(ctx, "ns-b", []model.ChunkVector{
		chunkVector("ns-b", "https://b.com/1", 0, []float32{1, 0}),
		chunkVector("ns-b", "https://b.com/1", 1, []float32{0, 1}),
	}))

	got, err := idx.Query(ctx, "ns-a", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "https://a.com/1", got[0].SourceURL)

	count, err := idx.Count(ctx, "ns-a")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// a namespace nothing was written to stays empty
	_, err = idx.Query(ctx, "ns-c", []float32{1, 0}, 10)
	require.ErrorIs(t, err, appErr.ErrEmptyIndex)
}

func TestMemoryIndexQueryTieBreak(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	// identical vectors, so similarity ties and order falls back to seq/url
	err := idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://b.com/x", 0, []float32{1, 0}),
		chunkVector("ns", "https://a.com/x", 0, []float32{1, 0}),
		chunkVector("ns", "https://a.com/x", 1, []float32{1, 0}),
	})
	require.NoError(t, err)

	got, err := idx.Query(ctx, "ns", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, "https://a.com/x", got[0].SourceURL)
	require.Equal(t, 0, got[0].Seq)
	require.Equal(t, "https://b.com/x", got[1].SourceURL)
	require.Equal(t, 1, got[2].Seq)
}

func TestMemoryIndexEmptyNamespace(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Query(context.Background(), "missing", []float32{1, 0}, 5)
	require.ErrorIs(t, err, appErr.ErrEmptyIndex)
}

func TestMemoryIndexKClamp(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://a.com/1", 0, []float32{1, 0}),
	}))
	got, err := idx.Query(ctx, "ns", []float32{1, 0}, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMemoryIndexDimensionLock(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://a.com/1", 0, []float32{1, 0, 0}),
	}))

	err := idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://a.com/1", 1, []float32{1, 0}),
	})
	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	require.Equal(t, 3, dimErr.Want)
	require.Equal(t, 2, dimErr.Got)

	_, err = idx.Query(ctx, "ns", []float32{1, 0}, 3)
	require.ErrorAs(t, err, &dimErr)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	v := chunkVector("ns", "https://a.com/1", 0, []float32{1, 0})
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{v}))

	v.Text = "updated text"
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{v}))

	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := idx.Query(ctx, "ns", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, "updated text", got[0].Text)
}

func TestMemoryIndexDeleteAndNamespaceCleanup(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	a := chunkVector("ns", "https://a.com/1", 0, []float32{1, 0})
	b := chunkVector("ns", "https://a.com/1", 1, []float32{0, 1})
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{a, b}))

	require.NoError(t, idx.Delete(ctx, "ns", []string{a.ID, "unknown-id"}))
	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, idx.Delete(ctx, "ns", []string{b.ID}))
	count, err = idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Zero(t, count)

	// dimension lock resets with the namespace
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://a.com/1", 0, []float32{1, 0, 0, 0}),
	}))
}

func TestMemoryIndexSources(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{
		chunkVector("ns", "https://a.com/1", 0, []float32{1, 0}),
		chunkVector("ns", "https://a.com/1", 1, []float32{0, 1}),
		chunkVector("ns", "https://b.com/2", 0, []float32{1, 1}),
	}))

	stats, err := idx.Sources(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, "https://a.com/1", stats[0].URL)
	require.Len(t, stats[0].ChunkIDs, 2)
	require.Equal(t, "hash-https://a.com/1", stats[0].ContentHash)
	require.Equal(t, 5000, stats[0].TextLen)
	require.Equal(t, "https://b.com/2", stats[1].URL)
	require.Len(t, stats[1].ChunkIDs, 1)
}

func TestMemoryIndexSkipsNilEmbeddings(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	good := chunkVector("ns", "https://a.com/1", 0, []float32{1, 0})
	bad := chunkVector("ns", "https://a.com/1", 1, nil)
	require.NoError(t, idx.Upsert(ctx, "ns", []model.ChunkVector{good, bad}))
	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
