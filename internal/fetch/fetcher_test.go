package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func longArticle() string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Consensus Protocols Explained</title></head><body>")
	sb.WriteString("<nav>Home | About | Contact</nav>")
	sb.WriteString("<h1>Consensus Protocols</h1>")
	for i := 0; i < 40; i++ {
		sb.WriteString("<p>Distributed consensus lets a cluster of machines agree on a single value even when some of them fail or messages are delayed arbitrarily.</p>")
	}
	sb.WriteString("<script>trackVisitor();</script>")
	sb.WriteString("<footer>Copyright 2026</footer>")
	sb.WriteString("</body></html>")
	return sb.String()
}

func newTestFetcher(retries int) *Fetcher {
	return New(Config{
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		RateLimit:  1000,
		MinTextLen: 100,
	})
}

func TestFetchExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(longArticle()))
	}))
	defer srv.Close()

	page, err := newTestFetcher(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Consensus Protocols Explained", page.Title)
	require.Contains(t, page.Text, "Distributed consensus")
	require.NotContains(t, page.Text, "trackVisitor")
	require.NotContains(t, page.Text, "Copyright 2026")
	require.Len(t, page.ContentHash, 64)
	require.NotZero(t, page.FetchedAt)
}

func TestFetchDeterministicHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(longArticle()))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	a, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	b, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, a.ContentHash, b.ContentHash)
}

func TestFetchRetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(longArticle()))
	}))
	defer srv.Close()

	page, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotEmpty(t, page.Text)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetryBackoffDoublesAndCaps(t *testing.T) {
	require.Equal(t, 500*time.Millisecond, retryBackoff(1))
	require.Equal(t, time.Second, retryBackoff(2))
	require.Equal(t, 2*time.Second, retryBackoff(3))
	require.Equal(t, 8*time.Second, retryBackoff(5))
	require.Equal(t, 8*time.Second, retryBackoff(20))
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, http.StatusNotFound, ferr.Status)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchRejectsBinaryContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported content type")
}

func TestFetchRejectsThinPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>too short</p></body></html>"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too thin")
}

func TestFetchPlainText(t *testing.T) {
	body := strings.Repeat("Plain text documentation line about the subject at hand.\n", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	page, err := newTestFetcher(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, srv.URL, page.Title)
	require.Contains(t, page.Text, "Plain text documentation")
}

func TestExtractTextHeadings(t *testing.T) {
	text, title, err := ExtractText(`<html><head><title>Doc</title></head><body><h2>Install</h2><p>Run the binary.</p><ul><li>step one</li><li>step two</li></ul></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "Doc", title)
	require.Contains(t, text, "## Install")
	require.Contains(t, text, "- step one")
}

func TestExtractTextTitleFromH1(t *testing.T) {
	_, title, err := ExtractText(`<html><body><h1>Fallback Heading</h1><p>body</p></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "Fallback Heading", title)
}
