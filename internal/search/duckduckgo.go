package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priyapatil1612/citebase/internal/model"
	"golang.org/x/net/html"
)

const (
	duckduckgoEndpoint = "https://html.duckduckgo.com/html/"
	duckduckgoBodyCap  = 1 << 20
)

type duckduckgoConfig struct {
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	UserAgent      string `json:"user_agent"`
}

type duckduckgoProvider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

func newDuckDuckGoProvider(args interface{}) (Provider, error) {
	c := &duckduckgoConfig{}
	if err := decodeConfig(args, c); err != nil {
		return nil, err
	}
	if c.Endpoint == "" {
		c.Endpoint = duckduckgoEndpoint
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	return &duckduckgoProvider{
		client:    &http.Client{Timeout: time.Duration(c.TimeoutSeconds) * time.Second},
		endpoint:  c.Endpoint,
		userAgent: c.UserAgent,
	}, nil
}

func (p *duckduckgoProvider) Name() string {
	return "duckduckgo"
}

// Search scrapes the no-javascript HTML frontend, which needs no API key.
func (p *duckduckgoProvider) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	searchURL := fmt.Sprintf("%s?q=%s", p.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, duckduckgoBodyCap))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return parseDuckDuckGoHTML(string(body), maxResults)
}

func parseDuckDuckGoHTML(content string, maxResults int) ([]model.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse search html: %w", err)
	}
	var results []model.SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			cls := attrValue(n, "class")
			if strings.Contains(cls, "result") && strings.Contains(cls, "results_links") {
				r := extractResult(n)
				if r.URL != "" && r.Title != "" {
					results = append(results, r)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractResult(n *html.Node) model.SearchResult {
	var r model.SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			cls := attrValue(n, "class")
			if strings.Contains(cls, "result__a") {
				r.URL = unwrapRedirect(attrValue(n, "href"))
				r.Title = textContent(n)
			} else if strings.Contains(cls, "result__snippet") {
				r.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// unwrapRedirect resolves the //duckduckgo.com/l/?uddg=... indirection back
// to the target URL.
func unwrapRedirect(href string) string {
	const prefix = "//duckduckgo.com/l/?uddg="
	if !strings.HasPrefix(href, prefix) {
		return href
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(href, prefix))
	if err != nil {
		return href
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func init() {
	Register("duckduckgo", newDuckDuckGoProvider)
}
