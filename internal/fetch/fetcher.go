package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/cache"
	"github.com/venedict/inquest/internal/model"
)

// Page is the extracted result of fetching one URL
type Page struct {
	URL          string     `json:"url"`
	FinalURL     string     `json:"final_url"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	StatusCode   int        `json:"status_code"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	RetrievedAt  time.Time  `json:"retrieved_at"`
}

// Fetcher retrieves and extracts web pages for the search stage. Fetches
// go through the layered cache and honor robots.txt when configured.
type Fetcher struct {
	client *http.Client
	cfg    model.HTTPConfig
	robots *RobotsChecker
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewFetcher builds a fetcher from the HTTP configuration. cache may be
// nil to disable caching.
func NewFetcher(cfg model.HTTPConfig, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		cfg:    cfg,
		cache:  c,
		ttl:    cacheTTL,
		logger: logger,
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(cfg.UserAgent, cfg.Timeout)
	}
	return f
}

// Fetch retrieves a page, serving from cache when possible
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.cache != nil {
		if page, ok := f.cachedPage(rawURL); ok {
			return page, nil
		}
	}

	if f.robots != nil {
		allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
		if err == nil && !allowed {
			return nil, fmt.Errorf("robots.txt disallows %s", rawURL)
		}
		if crawlDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(crawlDelay):
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	title, content := ExtractContent(string(body))
	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		Title:       title,
		Content:     content,
		StatusCode:  resp.StatusCode,
		RetrievedAt: time.Now().UTC(),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			page.LastModified = &t
		}
	}

	if f.cache != nil {
		f.storePage(rawURL, page)
	}
	return page, nil
}

func (f *Fetcher) cachedPage(rawURL string) (*Page, bool) {
	data, found := f.cache.Get(cache.Key("fetch:" + rawURL))
	if !found {
		return nil, false
	}
	page, err := decodePage(data)
	if err != nil {
		f.logger.Debug("dropping corrupt cache entry", zap.String("url", rawURL), zap.Error(err))
		_ = f.cache.Delete(cache.Key("fetch:" + rawURL))
		return nil, false
	}
	return page, true
}

func (f *Fetcher) storePage(rawURL string, page *Page) {
	data, err := encodePage(page)
	if err != nil {
		return
	}
	if err := f.cache.Set(cache.Key("fetch:"+rawURL), data, f.ttl); err != nil {
		f.logger.Debug("cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
}

// proxyFunc routes requests through configured proxies, falling back to
// the process environment
func proxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}
	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
