package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	serperSearchEndpoint = "https://google.serper.dev/search"
	duckDuckGoEndpoint   = "https://api.duckduckgo.com/"
)

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher fans a query out to a web-search backend.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchClient queries the Serper API when a key is configured and falls back
// to the DuckDuckGo instant-answer API otherwise.
type SearchClient struct {
	client *resty.Client
	apiKey string
}

func NewSearchClient(apiKey string, timeout time.Duration) *SearchClient {
	c := resty.New().
		SetHeader("User-Agent", "headline-server/1.0").
		SetTimeout(timeout)
	return &SearchClient{client: c, apiKey: apiKey}
}

type serperSearchResp struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *SearchClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 3
	}
	if strings.TrimSpace(s.apiKey) != "" {
		if res, err := s.searchViaSerper(ctx, query, limit); err == nil {
			return res, nil
		}
	}
	return s.searchViaDuckDuckGo(ctx, query, limit)
}

func (s *SearchClient) searchViaSerper(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	var result serperSearchResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"q": query, "num": limit}).
		SetResult(&result).
		Post(serperSearchEndpoint)
	if err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serper search: status %d", resp.StatusCode())
	}

	out := make([]SearchResult, 0, limit)
	for _, o := range result.Organic {
		out = append(out, SearchResult{Title: o.Title, Link: o.Link, Snippet: o.Snippet})
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("serper search: no results")
	}
	return out, nil
}

type duckDuckGoResp struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (s *SearchClient) searchViaDuckDuckGo(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	var result duckDuckGoResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       query,
			"format":  "json",
			"no_html": "1",
		}).
		SetResult(&result).
		Get(duckDuckGoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("duckduckgo search: status %d", resp.StatusCode())
	}

	out := make([]SearchResult, 0, limit)
	if result.AbstractText != "" && result.AbstractURL != "" {
		out = append(out, SearchResult{
			Title:   result.Heading,
			Link:    result.AbstractURL,
			Snippet: result.AbstractText,
		})
	}
	for _, t := range result.RelatedTopics {
		if len(out) >= limit {
			break
		}
		if t.FirstURL == "" || t.Text == "" {
			continue
		}
		out = append(out, SearchResult{Title: t.Text, Link: t.FirstURL, Snippet: t.Text})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("duckduckgo search: no results for %q", query)
	}
	return out, nil
}

// hostOf is used for log context only.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}
