package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/venedict/inquest/internal/model"
)

const ddgLiteEndpoint = "https://lite.duckduckgo.com/lite/"

// DuckDuckGoProvider implements the search capability by scraping the
// DuckDuckGo lite HTML interface, which is stable enough for parsing and
// needs no API key.
type DuckDuckGoProvider struct {
	client    *http.Client
	userAgent string
	name      string
}

// NewDuckDuckGoProvider creates a DuckDuckGo searcher
func NewDuckDuckGoProvider(cfg model.ProviderConfig, userAgent string) *DuckDuckGoProvider {
	name := cfg.Name
	if name == "" {
		name = "duckduckgo"
	}
	return &DuckDuckGoProvider{
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: userAgent,
		name:      name,
	}
}

// Name returns the provider name
func (p *DuckDuckGoProvider) Name() string { return p.name }

// Search scrapes the lite results page for the query
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewError(p.name, ErrInvalidResponse, fmt.Errorf("empty query"))
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ddgLiteEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewError(p.name, ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := NewError(p.name, ErrRateLimited, fmt.Errorf("http %d", resp.StatusCode))
		e.RetryAfter = retryAfterHeader(resp)
		return nil, e
	case resp.StatusCode >= 500:
		return nil, NewError(p.name, ErrProviderUnavailable, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, NewError(p.name, ErrInvalidResponse, fmt.Errorf("http %d", resp.StatusCode))
	}

	hits, err := parseLiteResults(resp.Body, maxResults)
	if err != nil {
		return nil, NewError(p.name, ErrInvalidResponse, err)
	}
	return hits, nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return 2 * time.Second
}

// parseLiteResults walks the lite HTML page. Result links carry the
// "result-link" class and snippets follow in "result-snippet" cells.
func parseLiteResults(r io.Reader, maxResults int) ([]model.SearchHit, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var hits []model.SearchHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if maxResults > 0 && len(hits) >= maxResults {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				href := attr(n, "href")
				if href != "" {
					hits = append(hits, model.SearchHit{
						URL:   normalizeDDGURL(href),
						Title: strings.TrimSpace(textContent(n)),
					})
				}
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if len(hits) > 0 && hits[len(hits)-1].Snippet == "" {
					hits[len(hits)-1].Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(hits) == 0 {
		return nil, fmt.Errorf("no results parsed")
	}
	return hits, nil
}

// normalizeDDGURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...)
func normalizeDDGURL(href string) string {
	if strings.Contains(href, "uddg=") {
		if u, err := url.Parse(href); err == nil {
			if target := u.Query().Get("uddg"); target != "" {
				if decoded, err := url.QueryUnescape(target); err == nil {
					return decoded
				}
			}
		}
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
