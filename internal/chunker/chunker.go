package chunker

import (
	"context"
	"strings"
	"unicode"

	"github.com/Priyapatil1612/citebase/internal/model"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 120
)

// Chunker splits page text into token-bounded chunks with a sentence-level
// overlap between consecutive chunks.
type Chunker struct {
	size    int
	overlap int
	counter TokenCounter
}

func New(size int, overlap int, counter TokenCounter) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	if counter == nil {
		counter = heuristicCounter{}
	}
	return &Chunker{size: size, overlap: overlap, counter: counter}
}

type sentence struct {
	text   string
	tokens int
}

// Split breaks a page into chunks. The same page text always yields the same
// chunks with the same IDs, so re-ingest can dedupe by content hash.
func (c *Chunker) Split(ctx context.Context, namespace string, page *model.SourcePage) []model.Chunk {
	sentences := c.sentences(page.Text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []model.Chunk
	var current []sentence
	currentTokens := 0
	freshCount := 0

	flush := func() {
		if freshCount == 0 {
			return
		}
		parts := make([]string, 0, len(current))
		for _, s := range current {
			parts = append(parts, s.text)
		}
		seq := len(chunks)
		chunkText := strings.Join(parts, " ")
		chunks = append(chunks, model.Chunk{
			ID:          model.ChunkID(namespace, page.URL, seq),
			Namespace:   namespace,
			SourceURL:   page.URL,
			SourceTitle: page.Title,
			Seq:         seq,
			Text:        chunkText,
			TokenCount:  c.counter.Count(chunkText),
		})
		// carry trailing sentences into the next chunk for continuity
		carried := make([]sentence, 0, 4)
		carriedTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			if carriedTokens+current[i].tokens > c.overlap {
				break
			}
			carriedTokens += current[i].tokens
			carried = append([]sentence{current[i]}, carried...)
		}
		current = carried
		currentTokens = carriedTokens
		freshCount = 0
	}

	for _, s := range sentences {
		if currentTokens > 0 && currentTokens+s.tokens > c.size {
			flush()
		}
		current = append(current, s)
		currentTokens += s.tokens
		freshCount++
	}
	flush()

	logutil.GetLogger(ctx).Debug("split page into chunks",
		zap.String("url", page.URL),
		zap.Int("sentences", len(sentences)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// sentences parses the text as markdown, walks its block nodes in order and
// splits each block into sentences. Block boundaries always end a sentence.
func (c *Chunker) sentences(content string) []sentence {
	md := goldmark.New()
	reader := text.NewReader([]byte(content))
	doc := md.Parser().Parse(reader)

	var out []sentence
	appendBlock := func(blockText string) {
		for _, raw := range splitSentences(blockText) {
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" {
				continue
			}
			out = append(out, sentence{text: trimmed, tokens: c.counter.Count(trimmed)})
		}
	}
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		blockText := extractText(node, reader.Source())
		if blockText == "" {
			continue
		}
		appendBlock(blockText)
	}
	if len(out) == 0 {
		appendBlock(content)
	}
	return out
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			seg := node.(*ast.Text).Segment
			sb.Write(seg.Value(source))
			if node.(*ast.Text).HardLineBreak() || node.(*ast.Text).SoftLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// splitSentences cuts after terminal punctuation followed by whitespace.
// Trailing text without a terminator is kept as its own sentence.
func splitSentences(blockText string) []string {
	var parts []string
	runes := []rune(blockText)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?', '。', '！', '？':
			// consume any run of terminators, then require a break
			j := i
			for j+1 < len(runes) && isTerminator(runes[j+1]) {
				j++
			}
			if j+1 >= len(runes) || unicode.IsSpace(runes[j+1]) {
				parts = append(parts, string(runes[start:j+1]))
				i = j + 1
				start = i + 1
			} else {
				i = j
			}
		}
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '"', '\'', ')', ']', '）':
		return true
	}
	return false
}
