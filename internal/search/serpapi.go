package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Priyapatil1612/citebase/internal/model"
)

const serpapiEndpoint = "https://serpapi.com/search.json"

type serpapiConfig struct {
	APIKey         string `json:"api_key"`
	Endpoint       string `json:"endpoint"`
	Engine         string `json:"engine"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type serpapiProvider struct {
	client   *http.Client
	endpoint string
	engine   string
	apiKey   string
}

func newSerpAPIProvider(args interface{}) (Provider, error) {
	c := &serpapiConfig{}
	if err := decodeConfig(args, c); err != nil {
		return nil, err
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("serpapi api_key is required")
	}
	if c.Endpoint == "" {
		c.Endpoint = serpapiEndpoint
	}
	if c.Engine == "" {
		c.Engine = "google"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return &serpapiProvider{
		client:   &http.Client{Timeout: time.Duration(c.TimeoutSeconds) * time.Second},
		endpoint: c.Endpoint,
		engine:   c.Engine,
		apiKey:   c.APIKey,
	}, nil
}

func (p *serpapiProvider) Name() string {
	return "serpapi"
}

type serpapiResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

func (p *serpapiProvider) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{}
	params.Set("engine", p.engine)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("api_key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned http %d", resp.StatusCode)
	}
	var parsed serpapiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi error: %s", parsed.Error)
	}
	results := make([]model.SearchResult, 0, len(parsed.OrganicResults))
	for _, item := range parsed.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		if item.Link == "" || item.Title == "" {
			continue
		}
		results = append(results, model.SearchResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}

func init() {
	Register("serpapi", newSerpAPIProvider)
}
