package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Priyapatil1612/citebase/internal/ai"
	"github.com/Priyapatil1612/citebase/internal/index"
	"github.com/Priyapatil1612/citebase/internal/model"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
	"github.com/Priyapatil1612/citebase/internal/search"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Searcher yields ranked raw results for a topic query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error)
}

// PageFetcher downloads one URL and returns its cleaned text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*model.SourcePage, error)
}

// Splitter cuts a page into retrieval chunks.
type Splitter interface {
	Split(ctx context.Context, namespace string, page *model.SourcePage) []model.Chunk
}

type IngestConfig struct {
	MaxResults     int
	MaxPages       int
	PerDomain      int
	MaxTotalChunks int
	Workers        int
}

func (c *IngestConfig) fill() {
	if c.MaxResults <= 0 {
		c.MaxResults = 20
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.PerDomain <= 0 {
		c.PerDomain = 2
	}
	if c.MaxTotalChunks <= 0 {
		c.MaxTotalChunks = 200
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// IngestService turns a research topic into an indexed namespace: search,
// fetch, chunk, embed, upsert.
type IngestService struct {
	searcher Searcher
	fetcher  PageFetcher
	splitter Splitter
	embedder ai.Embedder
	idx      index.Index
	cfg      IngestConfig
}

func NewIngestService(searcher Searcher, fetcher PageFetcher, splitter Splitter,
	embedder ai.Embedder, idx index.Index, cfg IngestConfig) *IngestService {
	cfg.fill()
	return &IngestService{
		searcher: searcher,
		fetcher:  fetcher,
		splitter: splitter,
		embedder: embedder,
		idx:      idx,
		cfg:      cfg,
	}
}

// pageResult is one ranked page after the fetch+chunk phase.
type pageResult struct {
	rank   int
	page   *model.SourcePage
	chunks []model.Chunk
	// reused marks a page whose content hash matches what the index already
	// holds, so its existing vectors are kept instead of re-embedded.
	reused     bool
	reusedStat model.SourceStat
}

// Ingest populates the namespace for a topic. When the namespace already has
// vectors and force is false it returns a summary of the existing index
// without touching the network. Success requires at least one indexed page.
func (s *IngestService) Ingest(ctx context.Context, namespace string, topic string, force bool) (*model.IngestionSummary, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("namespace", namespace))

	existing, err := s.idx.Sources(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("inspect namespace: %w", err)
	}
	if len(existing) > 0 && !force {
		logger.Info("namespace already indexed, skipping ingestion", zap.Int("sources", len(existing)))
		return summaryFromStats(namespace, existing, false), nil
	}
	existingByURL := make(map[string]model.SourceStat, len(existing))
	for _, stat := range existing {
		existingByURL[stat.URL] = stat
	}

	raw, err := s.searcher.Search(ctx, topic, s.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("search topic: %w", err)
	}
	results := search.Dedupe(raw, s.cfg.PerDomain, s.cfg.MaxPages)
	logger.Info("search completed", zap.Int("raw_results", len(raw)), zap.Int("candidates", len(results)))
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: search returned no usable results", appErr.ErrNoPagesIngested)
	}

	pages, skipped := s.fetchAndChunk(ctx, namespace, results, existingByURL)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: all %d candidate pages failed", appErr.ErrNoPagesIngested, len(results))
	}

	pages, dropped := applyChunkBudget(pages, s.cfg.MaxTotalChunks)
	skipped += dropped
	if dropped > 0 {
		logger.Info("chunk budget reached, dropping lowest ranked pages", zap.Int("dropped_pages", dropped))
	}

	summary, err := s.embedAndUpsert(ctx, namespace, pages, existingByURL)
	if err != nil {
		return nil, err
	}
	summary.SkippedPages = skipped
	logger.Info("ingestion completed",
		zap.Int("indexed_pages", summary.IndexedPages),
		zap.Int("indexed_chunks", summary.IndexedChunks),
		zap.Int("skipped_pages", summary.SkippedPages),
	)
	return summary, nil
}

// fetchAndChunk downloads candidates concurrently and splits them. Failures
// only cost the page, never the run. Results come back in rank order.
func (s *IngestService) fetchAndChunk(ctx context.Context, namespace string,
	results []model.SearchResult, existingByURL map[string]model.SourceStat) ([]pageResult, int) {
	var mu sync.Mutex
	var pages []pageResult
	skipped := 0

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Workers)
	for rank, result := range results {
		rank, result := rank, result
		eg.Go(func() error {
			page, err := s.fetcher.Fetch(egCtx, result.URL)
			if err != nil {
				logutil.GetLogger(egCtx).Warn("page skipped",
					zap.String("url", result.URL), zap.Error(err))
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			if page.Title == "" || page.Title == page.URL {
				if result.Title != "" {
					page.Title = result.Title
				}
			}
			pr := pageResult{rank: rank, page: page}
			if stat, ok := existingByURL[page.URL]; ok && stat.ContentHash == page.ContentHash {
				pr.reused = true
				pr.reusedStat = stat
			} else {
				pr.chunks = s.splitter.Split(egCtx, namespace, page)
			}
			mu.Lock()
			if pr.reused || len(pr.chunks) > 0 {
				pages = append(pages, pr)
			} else {
				skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	sort.Slice(pages, func(i, j int) bool { return pages[i].rank < pages[j].rank })
	return pages, skipped
}

// applyChunkBudget keeps pages in rank order until the total chunk count
// would exceed the budget. Later pages are dropped whole; the first page is
// truncated to what fits, so a single huge page can neither blow the cap nor
// zero out the run.
func applyChunkBudget(pages []pageResult, maxTotal int) ([]pageResult, int) {
	total := 0
	kept := make([]pageResult, 0, len(pages))
	dropped := 0
	for _, pr := range pages {
		n := len(pr.chunks)
		if pr.reused {
			n = len(pr.reusedStat.ChunkIDs)
		}
		remaining := maxTotal - total
		if n > remaining {
			if len(kept) == 0 {
				if pr.reused {
					// vectors from an earlier run, keep them intact
					total += n
					kept = append(kept, pr)
					continue
				}
				pr.chunks = pr.chunks[:remaining]
				total = maxTotal
				kept = append(kept, pr)
				continue
			}
			dropped++
			continue
		}
		total += n
		kept = append(kept, pr)
	}
	return kept, dropped
}

func (s *IngestService) embedAndUpsert(ctx context.Context, namespace string,
	pages []pageResult, existingByURL map[string]model.SourceStat) (*model.IngestionSummary, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("namespace", namespace))

	var texts []string
	type chunkRef struct{ pageIdx, chunkIdx int }
	var refs []chunkRef
	for i, pr := range pages {
		if pr.reused {
			continue
		}
		for j, ch := range pr.chunks {
			texts = append(texts, ch.Text)
			refs = append(refs, chunkRef{pageIdx: i, chunkIdx: j})
		}
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
	}
	embByChunk := make(map[chunkRef][]float32, len(refs))
	for i, ref := range refs {
		if vectors[i] == nil {
			continue
		}
		embByChunk[ref] = vectors[i]
	}

	summary := &model.IngestionSummary{Namespace: namespace, DidIngest: true}
	keptURLs := make(map[string]bool, len(pages))
	for i, pr := range pages {
		keptURLs[pr.page.URL] = true
		if pr.reused {
			summary.IndexedPages++
			summary.IndexedChunks += len(pr.reusedStat.ChunkIDs)
			summary.Sources = append(summary.Sources, model.SourceRef{
				Title: pr.reusedStat.Title, URL: pr.reusedStat.URL, TextLen: pr.reusedStat.TextLen,
			})
			continue
		}
		batch := make([]model.ChunkVector, 0, len(pr.chunks))
		for j, ch := range pr.chunks {
			emb := embByChunk[chunkRef{pageIdx: i, chunkIdx: j}]
			if emb == nil {
				continue
			}
			batch = append(batch, model.ChunkVector{
				Chunk:         ch,
				Embedding:     emb,
				ContentHash:   pr.page.ContentHash,
				SourceTextLen: len(pr.page.Text),
			})
		}
		if len(batch) == 0 {
			logger.Warn("page lost all chunks to embedding failures", zap.String("url", pr.page.URL))
			summary.SkippedPages++
			continue
		}
		if err := s.idx.Upsert(ctx, namespace, batch); err != nil {
			return nil, fmt.Errorf("index page %s: %w", pr.page.URL, err)
		}
		if err := s.pruneStaleChunks(ctx, namespace, pr, batch, existingByURL); err != nil {
			return nil, err
		}
		summary.IndexedPages++
		summary.IndexedChunks += len(batch)
		summary.Sources = append(summary.Sources, model.SourceRef{
			Title: pr.page.Title, URL: pr.page.URL, TextLen: len(pr.page.Text),
		})
	}
	if summary.IndexedPages == 0 {
		return nil, appErr.ErrNoPagesIngested
	}

	// sources that vanished from this run's results no longer back any
	// answer, drop their vectors
	for url, stat := range existingByURL {
		if keptURLs[url] {
			continue
		}
		if err := s.idx.Delete(ctx, namespace, stat.ChunkIDs); err != nil {
			return nil, fmt.Errorf("prune vanished source %s: %w", url, err)
		}
		logger.Info("pruned vanished source", zap.String("url", url), zap.Int("chunks", len(stat.ChunkIDs)))
	}
	return summary, nil
}

// pruneStaleChunks removes ids a changed page used to have but no longer
// produces, e.g. when the page shrank between runs.
func (s *IngestService) pruneStaleChunks(ctx context.Context, namespace string,
	pr pageResult, batch []model.ChunkVector, existingByURL map[string]model.SourceStat) error {
	stat, ok := existingByURL[pr.page.URL]
	if !ok {
		return nil
	}
	current := make(map[string]bool, len(batch))
	for _, v := range batch {
		current[v.ID] = true
	}
	var stale []string
	for _, id := range stat.ChunkIDs {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.idx.Delete(ctx, namespace, stale); err != nil {
		return fmt.Errorf("prune stale chunks of %s: %w", pr.page.URL, err)
	}
	return nil
}

func summaryFromStats(namespace string, stats []model.SourceStat, didIngest bool) *model.IngestionSummary {
	summary := &model.IngestionSummary{Namespace: namespace, DidIngest: didIngest}
	for _, stat := range stats {
		summary.IndexedPages++
		summary.IndexedChunks += len(stat.ChunkIDs)
		summary.Sources = append(summary.Sources, model.SourceRef{
			Title: stat.Title, URL: stat.URL, TextLen: stat.TextLen,
		})
	}
	return summary
}
