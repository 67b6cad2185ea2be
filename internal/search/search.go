// Package search wraps the web search service and filters results down to
// target-site profile URLs.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/metrics"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// Service runs one query and returns ordered results.
type Service interface {
	Search(ctx context.Context, query string, count int) ([]talent.SearchResult, error)
}

// Config holds the search client settings.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Client calls a SerpAPI-compatible endpoint.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// New builds a search client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   cfg.Logger,
	}
}

type organicResult struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
}

// Search runs one query. Profile filtering happens here so callers only ever
// see target-site profile URLs; results are fetched with headroom and
// trimmed to count after filtering.
func (c *Client) Search(ctx context.Context, query string, count int) ([]talent.SearchResult, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(count*2)) // headroom for filtered-out hits
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveSearchQuery("error")
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveSearchQuery("error")
		return nil, fmt.Errorf("search request: status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ObserveSearchQuery("error")
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	metrics.ObserveSearchQuery("success")

	results := make([]talent.SearchResult, 0, count)
	for _, r := range body.OrganicResults {
		if !IsProfileURL(r.Link) {
			continue
		}
		results = append(results, talent.SearchResult{
			URL:     NormalizeProfileURL(r.Link),
			Title:   r.Title,
			Snippet: r.Snippet,
		})
		if len(results) == count {
			break
		}
	}
	return results, nil
}

// jobBoardHosts are never profile sources.
var jobBoardHosts = []string{
	"jobs.lever.co",
	"boards.greenhouse.io",
	"apply.workable.com",
	"jobs.ashbyhq.com",
	"jobs.smartrecruiters.com",
}

// IsProfileURL reports whether a result URL is a target-site public profile.
func IsProfileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, board := range jobBoardHosts {
		if host == board {
			return false
		}
	}
	if !strings.HasSuffix(host, "linkedin.com") {
		return false
	}
	path := u.Path
	if strings.HasPrefix(path, "/jobs") {
		return false
	}
	return strings.HasPrefix(path, "/in/") || strings.HasPrefix(path, "/pub/")
}

// NormalizeProfileURL strips query and fragment noise so the same profile
// always dedupes to one URL.
func NormalizeProfileURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// Username extracts the profile slug from a profile URL, empty if absent.
func Username(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(parts[len(parts)-1])
}
