package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Priyapatil1612/citebase/internal/index"
	"github.com/Priyapatil1612/citebase/internal/model"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	results []model.SearchResult
	err     error
	calls   int32
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.results, f.err
}

type fakeFetcher struct {
	pages map[string]*model.SourcePage
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*model.SourcePage, error) {
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: boom", url)
	}
	return page, nil
}

// fixedSplitter emits a configurable number of fixed-size chunks per page.
type fixedSplitter struct {
	perPage int
}

func (f *fixedSplitter) Split(ctx context.Context, namespace string, page *model.SourcePage) []model.Chunk {
	n := f.perPage
	if n <= 0 {
		n = 2
	}
	chunks := make([]model.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, model.Chunk{
			ID:          model.ChunkID(namespace, page.URL, i),
			Namespace:   namespace,
			SourceURL:   page.URL,
			SourceTitle: page.Title,
			Seq:         i,
			Text:        fmt.Sprintf("%s part %d", page.Text, i),
			TokenCount:  10,
		})
	}
	return chunks
}

// hashEmbedder derives a deterministic unit-free vector from the text.
type hashEmbedder struct {
	calls int32
}

func (h *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&h.calls, int32(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		out[i] = []float32{float32(sum[0]), float32(sum[1]), float32(sum[2])}
	}
	return out, nil
}

func (h *hashEmbedder) ModelName() string { return "hash" }

func sourcePage(url string, text string) *model.SourcePage {
	sum := sha256.Sum256([]byte(text))
	return &model.SourcePage{
		URL:         url,
		Title:       "Title of " + url,
		FetchedAt:   1,
		Text:        text,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

func newIngestFixture(results []model.SearchResult, pages map[string]*model.SourcePage, cfg IngestConfig) (*IngestService, *fakeSearcher, *hashEmbedder, *index.MemoryIndex) {
	searcher := &fakeSearcher{results: results}
	embedder := &hashEmbedder{}
	idx := index.NewMemoryIndex()
	svc := NewIngestService(searcher, &fakeFetcher{pages: pages}, &fixedSplitter{perPage: 2}, embedder, idx, cfg)
	return svc, searcher, embedder, idx
}

func TestIngestHappyPath(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{
		{Title: "A", URL: "https://a.com/1"},
		{Title: "B", URL: "https://b.com/1"},
		{Title: "C", URL: "https://c.com/1"},
	}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", strings.Repeat("alpha text. ", 50)),
		"https://b.com/1": sourcePage("https://b.com/1", strings.Repeat("beta text. ", 50)),
		// c.com fails to fetch
	}
	svc, _, _, idx := newIngestFixture(results, pages, IngestConfig{})

	summary, err := svc.Ingest(ctx, "ns", "some topic", false)
	require.NoError(t, err)
	require.True(t, summary.DidIngest)
	require.Equal(t, 2, summary.IndexedPages)
	require.Equal(t, 4, summary.IndexedChunks)
	require.Equal(t, 1, summary.SkippedPages)
	require.Len(t, summary.Sources, 2)
	// rank order preserved
	require.Equal(t, "https://a.com/1", summary.Sources[0].URL)

	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestIngestFastPathSkipsSearch(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{{Title: "A", URL: "https://a.com/1"}}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "alpha text"),
	}
	svc, searcher, _, _ := newIngestFixture(results, pages, IngestConfig{})

	first, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	require.True(t, first.DidIngest)
	require.EqualValues(t, 1, atomic.LoadInt32(&searcher.calls))

	second, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	require.False(t, second.DidIngest)
	require.Equal(t, first.IndexedChunks, second.IndexedChunks)
	// no second search happened
	require.EqualValues(t, 1, atomic.LoadInt32(&searcher.calls))
}

func TestIngestForceReusesUnchangedPages(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{{Title: "A", URL: "https://a.com/1"}}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "stable content"),
	}
	svc, _, embedder, _ := newIngestFixture(results, pages, IngestConfig{})

	_, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	embeddedFirst := atomic.LoadInt32(&embedder.calls)
	require.Positive(t, embeddedFirst)

	summary, err := svc.Ingest(ctx, "ns", "topic", true)
	require.NoError(t, err)
	require.True(t, summary.DidIngest)
	require.Equal(t, 1, summary.IndexedPages)
	// content hash matched, nothing was re-embedded
	require.Equal(t, embeddedFirst, atomic.LoadInt32(&embedder.calls))
}

func TestIngestForceReembedsChangedPages(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{{Title: "A", URL: "https://a.com/1"}}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "version one"),
	}
	svc, _, embedder, idx := newIngestFixture(results, pages, IngestConfig{})

	_, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	before := atomic.LoadInt32(&embedder.calls)

	pages["https://a.com/1"] = sourcePage("https://a.com/1", "version two")
	summary, err := svc.Ingest(ctx, "ns", "topic", true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.IndexedPages)
	require.Greater(t, atomic.LoadInt32(&embedder.calls), before)

	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestIngestForcePrunesVanishedSources(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{
		{Title: "A", URL: "https://a.com/1"},
		{Title: "B", URL: "https://b.com/1"},
	}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "alpha"),
		"https://b.com/1": sourcePage("https://b.com/1", "beta"),
	}
	searcher := &fakeSearcher{results: results}
	idx := index.NewMemoryIndex()
	svc := NewIngestService(searcher, &fakeFetcher{pages: pages}, &fixedSplitter{perPage: 2}, &hashEmbedder{}, idx, IngestConfig{})

	_, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)

	// b.com disappears from the results on the forced run
	searcher.results = results[:1]
	summary, err := svc.Ingest(ctx, "ns", "topic", true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.IndexedPages)

	stats, err := idx.Sources(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "https://a.com/1", stats[0].URL)
}

func TestIngestChunkBudgetDropsWholePages(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{
		{Title: "A", URL: "https://a.com/1"},
		{Title: "B", URL: "https://b.com/1"},
		{Title: "C", URL: "https://c.com/1"},
	}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "alpha"),
		"https://b.com/1": sourcePage("https://b.com/1", "beta"),
		"https://c.com/1": sourcePage("https://c.com/1", "gamma"),
	}
	// two chunks per page, budget of five keeps only the first two pages
	svc, _, _, idx := newIngestFixture(results, pages, IngestConfig{MaxTotalChunks: 5})

	summary, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	require.Equal(t, 2, summary.IndexedPages)
	require.Equal(t, 4, summary.IndexedChunks)
	require.Equal(t, 1, summary.SkippedPages)

	stats, err := idx.Sources(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, stats, 2)
}

func TestIngestChunkBudgetTruncatesOversizedFirstPage(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{{Title: "A", URL: "https://a.com/1"}}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "huge page"),
	}
	// seven chunks from one page, budget of three: keep the page but only
	// its first three chunks
	idx := index.NewMemoryIndex()
	svc := NewIngestService(&fakeSearcher{results: results}, &fakeFetcher{pages: pages},
		&fixedSplitter{perPage: 7}, &hashEmbedder{}, idx, IngestConfig{MaxTotalChunks: 3})

	summary, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	require.Equal(t, 1, summary.IndexedPages)
	require.Equal(t, 3, summary.IndexedChunks)
	require.Equal(t, 0, summary.SkippedPages)

	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	stats, err := idx.Sources(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, stats[0].ChunkIDs, 3)
}

func TestIngestAllPagesFail(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{{Title: "A", URL: "https://a.com/1"}}
	svc, _, _, _ := newIngestFixture(results, map[string]*model.SourcePage{}, IngestConfig{})

	_, err := svc.Ingest(ctx, "ns", "topic", false)
	require.ErrorIs(t, err, appErr.ErrNoPagesIngested)
}

func TestIngestNoSearchResults(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newIngestFixture(nil, map[string]*model.SourcePage{}, IngestConfig{})
	_, err := svc.Ingest(ctx, "ns", "topic", false)
	require.ErrorIs(t, err, appErr.ErrNoPagesIngested)
}

func TestIngestSearchError(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{err: fmt.Errorf("provider down")}
	svc := NewIngestService(searcher, &fakeFetcher{}, &fixedSplitter{}, &hashEmbedder{}, index.NewMemoryIndex(), IngestConfig{})
	_, err := svc.Ingest(ctx, "ns", "topic", false)
	require.ErrorContains(t, err, "provider down")
}

func TestIngestDomainCap(t *testing.T) {
	ctx := context.Background()
	results := []model.SearchResult{
		{Title: "A1", URL: "https://a.com/1"},
		{Title: "A2", URL: "https://a.com/2"},
		{Title: "A3", URL: "https://a.com/3"},
	}
	pages := map[string]*model.SourcePage{
		"https://a.com/1": sourcePage("https://a.com/1", "one"),
		"https://a.com/2": sourcePage("https://a.com/2", "two"),
		"https://a.com/3": sourcePage("https://a.com/3", "three"),
	}
	svc, _, _, _ := newIngestFixture(results, pages, IngestConfig{PerDomain: 2})

	summary, err := svc.Ingest(ctx, "ns", "topic", false)
	require.NoError(t, err)
	require.Equal(t, 2, summary.IndexedPages)
}
