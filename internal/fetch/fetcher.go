package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Priyapatil1612/citebase/internal/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent  = "citebase/1.0 (+https://github.com/Priyapatil1612/citebase)"
	defaultMinTextLen = 1200
	maxBodyBytes      = 2 << 20
)

// Error reports why a single page could not be turned into a source. Status
// is zero when the failure happened before a response arrived.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: http %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64
	UserAgent  string
	MinTextLen int
}

// Fetcher downloads pages and extracts readable text. All requests share one
// rate limiter, so concurrent callers stay within the configured budget.
type Fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
	minTextLen int
}

func New(c Config) *Fetcher {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MinTextLen <= 0 {
		c.MinTextLen = defaultMinTextLen
	}
	return &Fetcher{
		client:     &http.Client{Timeout: c.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(c.RateLimit), 1),
		maxRetries: c.MaxRetries,
		userAgent:  c.UserAgent,
		minTextLen: c.MinTextLen,
	}
}

// Fetch downloads one URL and returns its extracted text. Transient upstream
// failures (408, 429, 5xx, transport errors) are retried with backoff; pages
// whose extracted text is shorter than the minimum are rejected as thin.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*model.SourcePage, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, &Error{URL: pageURL, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			logutil.GetLogger(ctx).Debug("retrying fetch",
				zap.String("url", pageURL), zap.Int("attempt", attempt))
		}
		page, retryable, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (*model.SourcePage, bool, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, false, &Error{URL: pageURL, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, &Error{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, &Error{URL: pageURL, Err: ctx.Err()}
		}
		return nil, true, &Error{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ferr := &Error{URL: pageURL, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
		return nil, isRetryableStatus(resp.StatusCode), ferr
	}
	contentType := resp.Header.Get("Content-Type")
	if !isTextContentType(contentType) {
		return nil, false, &Error{URL: pageURL, Status: resp.StatusCode,
			Err: fmt.Errorf("unsupported content type %q", contentType)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, &Error{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}

	var text, title string
	if strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
		text = cleanText(string(body))
	} else {
		text, title, err = ExtractText(string(body))
		if err != nil {
			return nil, false, &Error{URL: pageURL, Err: err}
		}
	}
	if title == "" {
		title = pageURL
	}
	if len(text) < f.minTextLen {
		return nil, false, &Error{URL: pageURL,
			Err: fmt.Errorf("page too thin: %d chars of text, need %d", len(text), f.minTextLen)}
	}
	sum := sha256.Sum256([]byte(text))
	return &model.SourcePage{
		URL:         pageURL,
		Title:       title,
		FetchedAt:   time.Now().UnixMilli(),
		Text:        text,
		ContentHash: hex.EncodeToString(sum[:]),
	}, false, nil
}

// retryBackoff doubles per attempt, starting at 500ms and capped at 8s.
func retryBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 8 * time.Second
	}
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

func isRetryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func isTextContentType(contentType string) bool {
	if contentType == "" {
		// some servers omit the header, assume html and let extraction decide
		return true
	}
	for _, accepted := range []string{"text/html", "application/xhtml+xml", "text/plain", "text/markdown", "application/xml", "text/xml"} {
		if strings.Contains(contentType, accepted) {
			return true
		}
	}
	return false
}
