package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEmbedProvider struct {
	calls   [][]string
	failIdx map[string]bool
	dim     int
}

func (f *fakeEmbedProvider) Name() string { return "fake" }

func (f *fakeEmbedProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string{}, texts...))
	for _, t := range texts {
		if f.failIdx[t] {
			return nil, fmt.Errorf("bad input: %s", t)
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func TestEmbedderBatching(t *testing.T) {
	p := &fakeEmbedProvider{dim: 4}
	e := NewEmbedder(p, "test-model", 2, 0)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	// batch size 2 over 5 inputs means 3 provider calls
	require.Len(t, p.calls, 3)
	for i, v := range vecs {
		require.Len(t, v, 4)
		require.Equal(t, float32(len(texts[i])), v[0])
	}
}

func TestEmbedderPerItemRetry(t *testing.T) {
	p := &fakeEmbedProvider{dim: 2, failIdx: map[string]bool{"poison": true}}
	e := NewEmbedder(p, "test-model", 3, 0)

	texts := []string{"good", "poison", "fine"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.NotNil(t, vecs[0])
	require.Nil(t, vecs[1])
	require.NotNil(t, vecs[2])
}

func TestEmbedderAllFailed(t *testing.T) {
	p := &fakeEmbedProvider{dim: 2, failIdx: map[string]bool{"x": true, "y": true}}
	e := NewEmbedder(p, "test-model", 2, 0)

	_, err := e.Embed(context.Background(), []string{"x", "y"})
	require.Error(t, err)
}

func TestEmbedderEmptyInput(t *testing.T) {
	p := &fakeEmbedProvider{dim: 2}
	e := NewEmbedder(p, "test-model", 2, 0)
	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
	require.Empty(t, p.calls)
}

type stubGenerator struct {
	resp string
	err  error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.resp, s.err
}

func TestGroupGeneratorFallback(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "primary", Generator: &stubGenerator{err: fmt.Errorf("quota exceeded")}},
		{Name: "backup", Generator: &stubGenerator{resp: "ok"}},
	})
	res, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "ok", res)
}

func TestGroupGeneratorAllFail(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: &stubGenerator{err: fmt.Errorf("down")}},
		{Name: "b", Generator: &stubGenerator{err: fmt.Errorf("also down")}},
	})
	_, err := g.Generate(context.Background(), "hello")
	require.Error(t, err)
}

func TestGroupEmbedderModelName(t *testing.T) {
	p := &fakeEmbedProvider{dim: 2}
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "m1", Embedder: NewEmbedder(p, "m1", 2, 0)},
		{Name: "m2", Embedder: NewEmbedder(p, "m2", 2, 0)},
	})
	require.Equal(t, "m1|m2", g.ModelName())
}

func TestProviderRegistry(t *testing.T) {
	_, err := NewChatProvider("no-such", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}
