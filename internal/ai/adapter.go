package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultBatchSize = 64

type generator struct {
	provider ChatProvider
	model    string
	timeout  time.Duration
}

func NewGenerator(p ChatProvider, model string, timeout time.Duration) Generator {
	return &generator{provider: p, model: model, timeout: timeout}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.provider.Complete(ctx, g.model, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

type embedder struct {
	provider  EmbedProvider
	model     string
	batchSize int
	timeout   time.Duration
}

func NewEmbedder(p EmbedProvider, model string, batchSize int, timeout time.Duration) Embedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &embedder{provider: p, model: model, batchSize: batchSize, timeout: timeout}
}

// Embed splits texts into provider-sized batches. A failed batch degrades to
// one per-item retry; items that still fail are reported as nil vectors so
// the caller can drop them without aborting the run. Only a provider that
// fails for every input turns into an error.
func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	var lastErr error
	succeeded := 0
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vecs, err := e.embedOnce(ctx, batch)
		if err == nil && len(vecs) == len(batch) {
			for i, v := range vecs {
				out[start+i] = v
				succeeded++
			}
			continue
		}
		if err == nil {
			err = fmt.Errorf("provider returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		logutil.GetLogger(ctx).Warn("embedding batch failed, retrying per item",
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		lastErr = err
		for i, text := range batch {
			single, serr := e.embedOnce(ctx, []string{text})
			if serr != nil || len(single) != 1 {
				logutil.GetLogger(ctx).Warn("embedding item dropped", zap.Int("index", start+i), zap.Error(serr))
				continue
			}
			out[start+i] = single[0]
			succeeded++
		}
	}
	if succeeded == 0 && lastErr != nil {
		return nil, fmt.Errorf("embedding failed for all %d inputs: %w", len(texts), lastErr)
	}
	return out, nil
}

func (e *embedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.provider.Embed(ctx, e.model, texts)
}

func (e *embedder) ModelName() string {
	return e.model
}
