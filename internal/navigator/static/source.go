package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/attraction-crawler/internal/policy/ratelimit"
)

// Page is a fetched HTML document.
type Page struct {
	URL  string
	Body []byte
}

// PageSource loads HTML documents by URL.
type PageSource interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// CollyConfig controls the HTTP collector used by CollySource.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
	// Limiter paces requests per host. Nil disables pacing.
	Limiter *ratelimit.Limiter
}

// CollySource fetches pages over HTTP with a colly collector.
type CollySource struct {
	cfg  CollyConfig
	base *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollySource builds a CollySource. Revisits are allowed because every
// category re-opens its source page.
func NewCollySource(cfg CollyConfig) *CollySource {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &CollySource{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET.
func (s *CollySource) Fetch(ctx context.Context, url string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)
	if err := s.cfg.Limiter.Wait(ctx, url); err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	collector := s.base.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	s.configureHooks(collector, &page, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Page{}, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return page, nil
	}
}

func (s *CollySource) configureHooks(hooks collectorHooks, page *Page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range s.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		*page = Page{
			URL:  r.Request.URL.String(),
			Body: append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// MapSource serves fixed documents keyed by URL. It is safe for concurrent
// use and records every fetch.
type MapSource struct {
	mu      sync.Mutex
	pages   map[string]string
	fetches []string
}

// NewMapSource returns a source serving pages.
func NewMapSource(pages map[string]string) *MapSource {
	m := &MapSource{pages: make(map[string]string, len(pages))}
	for k, v := range pages {
		m.pages[k] = v
	}
	return m
}

// Set adds or replaces the document at url.
func (m *MapSource) Set(url, html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[url] = html
}

// Fetch returns the document stored for url.
func (m *MapSource) Fetch(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, fmt.Errorf("fetch canceled: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, url)
	html, ok := m.pages[url]
	if !ok {
		return Page{}, fmt.Errorf("fetch %s: not found", url)
	}
	return Page{URL: url, Body: []byte(html)}, nil
}

// Fetches lists the requested URLs in order.
func (m *MapSource) Fetches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetches...)
}
