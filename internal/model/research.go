package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// SearchResult is one ranked hit from a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SourcePage is a fetched and cleaned web page. It lives only for the
// duration of an ingestion run; the content hash is what survives, for
// change detection on re-ingestion.
type SourcePage struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	FetchedAt   int64  `json:"fetched_at"`
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

// Chunk is the unit of retrieval: a bounded segment of one source page.
// Chunks are immutable once created and their ids are deterministic, so a
// re-ingestion overwrites instead of duplicating.
type Chunk struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title"`
	Seq         int    `json:"seq"`
	Text        string `json:"text"`
	TokenCount  int    `json:"token_count"`
}

// ChunkID derives the stable chunk identifier from the namespace, the source
// URL and the chunk's position within that source.
func ChunkID(namespace, sourceURL string, seq int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d", namespace, sourceURL, seq)))
	return hex.EncodeToString(sum[:])
}

// ChunkVector pairs a chunk with its embedding. The extra per-source fields
// let the index answer dedup questions without keeping raw pages around.
type ChunkVector struct {
	Chunk
	Embedding     []float32 `json:"embedding"`
	ContentHash   string    `json:"content_hash"`
	SourceTextLen int       `json:"source_text_len"`
}

// ScoredChunk is a query hit with its similarity score.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// SourceStat summarizes what the index currently holds for one source URL
// within a namespace.
type SourceStat struct {
	URL         string
	Title       string
	ContentHash string
	TextLen     int
	ChunkIDs    []string
}

type SourceRef struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	TextLen int    `json:"text_len"`
}

// IngestionSummary is the outcome of one ingestion run. DidIngest=false
// marks the idempotent fast path: the namespace was already populated and
// force was not set.
type IngestionSummary struct {
	Namespace     string      `json:"namespace"`
	IndexedPages  int         `json:"indexed_pages"`
	IndexedChunks int         `json:"indexed_chunks"`
	SkippedPages  int         `json:"skipped_pages"`
	Sources       []SourceRef `json:"sources"`
	DidIngest     bool        `json:"did_ingest"`
}

type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// AnsweredQuestion is a grounded answer with the citations the answer
// actually relied on and a best-effort trace of the pipeline steps.
type AnsweredQuestion struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Trace     []string   `json:"trace"`
}
