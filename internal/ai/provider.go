package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
)

// ErrUnavailable marks a provider that cannot serve requests at all, usually
// because its credentials are missing. Callers treat it as fatal, unlike a
// per-batch embedding failure.
var ErrUnavailable = appErr.ErrAIUnavailable

// ChatProvider completes a prompt against a named model.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

// EmbedProvider converts a batch of texts into fixed-dimension vectors.
// Implementations must return one vector per input text, in order.
type EmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Generator binds a chat provider to one model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder binds an embedding provider to one model and handles batching.
// Inputs that could not be embedded after retry come back as nil vectors;
// the call only errors when the provider failed for every input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

type ChatFactory func(args interface{}) (ChatProvider, error)

type EmbedFactory func(args interface{}) (EmbedProvider, error)

var (
	chatRegistry  = map[string]ChatFactory{}
	embedRegistry = map[string]EmbedFactory{}
)

func Register(name string, factory ChatFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	chatRegistry[key] = factory
}

func RegisterEmbed(name string, factory EmbedFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewChatProvider(name string, args interface{}) (ChatProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai chat provider is required")
	}
	factory := chatRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported chat provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (EmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai embedding provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	if raw, ok := args.(json.RawMessage); ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode ai provider config: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
