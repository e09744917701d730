package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

// Fetcher loads the readable text of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageFetcher downloads a page and extracts its visible text, capped at
// maxBytes of response body.
type PageFetcher struct {
	client   *resty.Client
	maxBytes int64
}

func NewPageFetcher(timeout time.Duration, maxBytes int64) *PageFetcher {
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}
	c := resty.New().
		SetHeader("User-Agent", "headline-server/1.0").
		SetTimeout(timeout)
	return &PageFetcher{client: c, maxBytes: maxBytes}
}

func (f *PageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", hostOf(url), err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: status %d", hostOf(url), resp.StatusCode())
	}

	body := resp.Body()
	if int64(len(body)) > f.maxBytes {
		body = body[:f.maxBytes]
	}
	return extractText(string(body)), nil
}

// extractText walks the HTML tree and collects text nodes, skipping script
// and style subtrees.
func extractText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}
