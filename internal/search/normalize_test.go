package search

import (
	"testing"

	"github.com/Priyapatil1612/citebase/internal/model"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/Path/", "https://example.com/Path"},
		{"https://example.com/a?utm_source=x&id=7&utm_medium=mail", "https://example.com/a?id=7"},
		{"https://example.com/a?gclid=abc&fbclid=def", "https://example.com/a"},
		{"https://example.com/doc#section-2", "https://example.com/doc"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com/a?b=1&a=2", "https://example.com/a?b=1&a=2"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "ftp://example.com/x", "javascript:alert(1)", "  "} {
		_, err := Normalize(in)
		require.Error(t, err, in)
	}
}

func TestDedupe(t *testing.T) {
	results := []model.SearchResult{
		{Title: "a", URL: "https://example.com/a?utm_source=x"},
		{Title: "a dup", URL: "https://EXAMPLE.com/a"},
		{Title: "b", URL: "https://example.com/b"},
		{Title: "c over domain cap", URL: "https://example.com/c"},
		{Title: "other", URL: "https://other.org/p/"},
		{Title: "bad", URL: "ftp://nope"},
	}
	out := Dedupe(results, 2, 0)
	require.Len(t, out, 3)
	require.Equal(t, "https://example.com/a", out[0].URL)
	require.Equal(t, "https://example.com/b", out[1].URL)
	require.Equal(t, "https://other.org/p", out[2].URL)
}

func TestDedupeLimit(t *testing.T) {
	results := []model.SearchResult{
		{Title: "a", URL: "https://a.com/1"},
		{Title: "b", URL: "https://b.com/1"},
		{Title: "c", URL: "https://c.com/1"},
	}
	out := Dedupe(results, 2, 2)
	require.Len(t, out, 2)
	require.Equal(t, "https://a.com/1", out[0].URL)
}
