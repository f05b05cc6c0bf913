package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Priyapatil1612/citebase/internal/model"
)

// query parameters that only identify the marketing campaign, never the page
var trackingParams = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"igshid": true,
	"mc_cid": true,
	"mc_eid": true,
	"_hsenc": true,
	"_hsmi":  true,
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	return trackingParams[lower]
}

// Normalize canonicalizes a result URL so the same page fetched from two
// providers dedupes to one entry. Scheme and host are lowercased, the
// fragment and tracking parameters are dropped, a trailing slash on the path
// is trimmed. Only http and https URLs are accepted.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key := pair
			if idx := strings.Index(pair, "="); idx >= 0 {
				key = pair[:idx]
			}
			if isTrackingParam(key) {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}
	return u.String(), nil
}

// Dedupe normalizes URLs, drops duplicates and invalid entries, and caps how
// many results a single domain may contribute. Input order is preserved, so
// provider ranking carries through.
func Dedupe(results []model.SearchResult, perDomain int, limit int) []model.SearchResult {
	if perDomain <= 0 {
		perDomain = 2
	}
	seen := make(map[string]bool, len(results))
	domainCount := make(map[string]int, len(results))
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if limit > 0 && len(out) >= limit {
			break
		}
		normalized, err := Normalize(r.URL)
		if err != nil {
			continue
		}
		if seen[normalized] {
			continue
		}
		u, err := url.Parse(normalized)
		if err != nil {
			continue
		}
		host := u.Hostname()
		if domainCount[host] >= perDomain {
			continue
		}
		seen[normalized] = true
		domainCount[host]++
		r.URL = normalized
		out = append(out, r)
	}
	return out
}
