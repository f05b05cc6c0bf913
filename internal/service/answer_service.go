package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Priyapatil1612/citebase/internal/ai"
	"github.com/Priyapatil1612/citebase/internal/index"
	"github.com/Priyapatil1612/citebase/internal/model"
	"github.com/samber/lo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultTopK      = 6
	maxContextChars  = 12000
	groundedSysRules = "You are a research assistant. Answer the question using ONLY the provided sources. " +
		"Cite sources inline by their number, like [1] or [2]. " +
		"If the sources do not contain enough information to answer, say so explicitly. " +
		"End your answer with a \"Sources:\" section listing each cited source's number, title and URL."
)

type AnswerConfig struct {
	TopK int
}

// AnswerService answers questions against an indexed namespace: embed the
// question, retrieve the nearest chunks, prompt the generator with them and
// extract which sources the answer actually used.
type AnswerService struct {
	embedder ai.Embedder
	gen      ai.Generator
	idx      index.Index
	topK     int
}

func NewAnswerService(embedder ai.Embedder, gen ai.Generator, idx index.Index, cfg AnswerConfig) *AnswerService {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &AnswerService{embedder: embedder, gen: gen, idx: idx, topK: cfg.TopK}
}

func (s *AnswerService) Answer(ctx context.Context, namespace string, question string) (*model.AnsweredQuestion, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	var trace []string
	trace = append(trace, fmt.Sprintf("Thought: I need grounded context for %q before answering.", question))

	vecs, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 || vecs[0] == nil {
		return nil, fmt.Errorf("embed question: no vector produced")
	}
	trace = append(trace, fmt.Sprintf("Action: retrieve top %d chunks from namespace %s", s.topK, namespace))

	hits, err := s.idx.Query(ctx, namespace, vecs[0], s.topK)
	if err != nil {
		return nil, err
	}
	trace = append(trace, fmt.Sprintf("Observation: retrieved %d chunks across %d sources.",
		len(hits), len(uniqueSources(hits))))

	prompt, included := buildPrompt(question, hits)
	logutil.GetLogger(ctx).Debug("built grounded prompt",
		zap.Int("hits", len(hits)),
		zap.Int("included", len(included)),
		zap.Int("prompt_chars", len(prompt)),
	)
	trace = append(trace, "Action: generate answer from the retrieved context.")

	answer, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	citations := extractCitations(answer, included)
	trace = append(trace, fmt.Sprintf("Observation: answer cites %d sources.", len(citations)))

	return &model.AnsweredQuestion{
		Question:  question,
		Answer:    answer,
		Citations: citations,
		Trace:     trace,
	}, nil
}

// buildPrompt renders the retrieved chunks as numbered source blocks under a
// character cap. The returned slice holds the sources that made it into the
// prompt, in the order they were numbered.
func buildPrompt(question string, hits []model.ScoredChunk) (string, []model.Citation) {
	var sb strings.Builder
	sb.WriteString(groundedSysRules)
	sb.WriteString("\n\nSOURCES:\n")

	var included []model.Citation
	numberByURL := make(map[string]int)
	used := 0
	for _, hit := range hits {
		num, ok := numberByURL[hit.SourceURL]
		if !ok {
			num = len(included) + 1
		}
		block := fmt.Sprintf("\n[%d] %s\nURL: %s\n---\n%s\n", num, hit.SourceTitle, hit.SourceURL, hit.Text)
		if used+len(block) > maxContextChars && used > 0 {
			break
		}
		sb.WriteString(block)
		used += len(block)
		if !ok {
			numberByURL[hit.SourceURL] = num
			included = append(included, model.Citation{URL: hit.SourceURL, Title: hit.SourceTitle})
		}
	}
	sb.WriteString("\nQUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n\nANSWER:")
	return sb.String(), included
}

// extractCitations keeps the prompt sources whose URL or number the answer
// references, in retrieval rank order. A model that cites nothing
// recognizable falls back to every source it was shown, since the whole
// prompt was grounded on them.
func extractCitations(answer string, included []model.Citation) []model.Citation {
	var cited []model.Citation
	for i, c := range included {
		marker := fmt.Sprintf("[%d]", i+1)
		if strings.Contains(answer, c.URL) || strings.Contains(answer, marker) {
			cited = append(cited, c)
		}
	}
	if len(cited) == 0 {
		cited = included
	}
	return lo.UniqBy(cited, func(c model.Citation) string { return c.URL })
}

func uniqueSources(hits []model.ScoredChunk) []string {
	return lo.Uniq(lo.Map(hits, func(h model.ScoredChunk, _ int) string { return h.SourceURL }))
}
