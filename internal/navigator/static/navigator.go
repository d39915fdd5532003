// Package static implements crawler.Navigator over server-rendered HTML.
// Documents come from a PageSource and are queried with goquery. Clicking an
// anchor follows its href; other clicks are counted but change nothing.
package static

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// Navigator is a crawler.Navigator backed by parsed HTML documents.
type Navigator struct {
	source PageSource
	logger *zap.Logger

	mu     sync.Mutex
	doc    *goquery.Document
	url    string
	clicks int
}

var _ crawler.Navigator = (*Navigator)(nil)

// New returns a navigator reading pages from source.
func New(source PageSource, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{source: source, logger: logger}
}

// Open loads and parses the document at rawURL.
func (n *Navigator) Open(ctx context.Context, rawURL string) error {
	page, err := n.source.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("open %s: %w", rawURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	loaded := page.URL
	if loaded == "" {
		loaded = rawURL
	}
	n.mu.Lock()
	n.doc = doc
	n.url = loaded
	n.mu.Unlock()
	n.logger.Debug("page opened", zap.String("url", loaded))
	return nil
}

// URL returns the address of the current document.
func (n *Navigator) URL(context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url, nil
}

// Query returns every element matching selector in the current document.
func (n *Navigator) Query(_ context.Context, selector string) ([]crawler.Element, error) {
	n.mu.Lock()
	doc := n.doc
	n.mu.Unlock()
	if doc == nil {
		return nil, nil
	}
	return split(doc.Find(selector)), nil
}

// QueryWithin returns the elements matching selector below parent.
func (n *Navigator) QueryWithin(_ context.Context, parent crawler.Element, selector string) ([]crawler.Element, error) {
	sel, err := selection(parent)
	if err != nil {
		return nil, err
	}
	return split(sel.Find(selector)), nil
}

// Closest returns the nearest ancestor of el, el included, matching selector.
func (n *Navigator) Closest(_ context.Context, el crawler.Element, selector string) (crawler.Element, bool, error) {
	sel, err := selection(el)
	if err != nil {
		return nil, false, err
	}
	found := sel.Closest(selector)
	if found.Length() == 0 {
		return nil, false, nil
	}
	return found.First(), true, nil
}

// Text returns the text content of el.
func (n *Navigator) Text(_ context.Context, el crawler.Element) (string, error) {
	sel, err := selection(el)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

// Attribute returns the named attribute of el.
func (n *Navigator) Attribute(_ context.Context, el crawler.Element, name string) (string, bool, error) {
	sel, err := selection(el)
	if err != nil {
		return "", false, err
	}
	value, ok := sel.Attr(name)
	return value, ok, nil
}

// Visible reports false when el or an ancestor is hidden through the hidden
// attribute, aria-hidden or an inline display:none style.
func (n *Navigator) Visible(_ context.Context, el crawler.Element) (bool, error) {
	sel, err := selection(el)
	if err != nil {
		return false, err
	}
	for cur := sel; cur.Length() > 0; cur = cur.Parent() {
		if hidden(cur) {
			return false, nil
		}
	}
	return true, nil
}

// ScrollIntoView is a no-op for static documents.
func (n *Navigator) ScrollIntoView(ctx context.Context, _ crawler.Element) error {
	return ctx.Err()
}

// Click follows the href of el or of its enclosing anchor. Any other click is
// counted and has no effect on the document.
func (n *Navigator) Click(ctx context.Context, el crawler.Element) error {
	sel, err := selection(el)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.clicks++
	base := n.url
	n.mu.Unlock()

	anchor := sel.Closest("a[href]")
	if anchor.Length() == 0 {
		return nil
	}
	href, _ := anchor.Attr("href")
	target, err := resolve(base, href)
	if err != nil {
		return err
	}
	return n.Open(ctx, target)
}

// Clicks reports how many clicks were issued.
func (n *Navigator) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicks
}

// WaitSettle returns immediately; static documents never change.
func (n *Navigator) WaitSettle(ctx context.Context) error {
	return ctx.Err()
}

// Evaluate supports window.location.href and document.title. Anything else
// returns crawler.ErrUnsupported.
func (n *Navigator) Evaluate(_ context.Context, expression string, out any) error {
	n.mu.Lock()
	doc, current := n.doc, n.url
	n.mu.Unlock()

	var value any
	switch strings.TrimSpace(expression) {
	case "window.location.href", "document.location.href":
		value = current
	case "document.title":
		if doc != nil {
			value = strings.TrimSpace(doc.Find("title").First().Text())
		} else {
			value = ""
		}
	default:
		return fmt.Errorf("evaluate %q: %w", expression, crawler.ErrUnsupported)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode evaluation result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

// NewTab returns an empty navigator sharing the page source.
func (n *Navigator) NewTab(ctx context.Context) (crawler.Navigator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(n.source, n.logger), nil
}

// Close drops the current document.
func (n *Navigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.doc = nil
	return nil
}

func selection(el crawler.Element) (*goquery.Selection, error) {
	sel, ok := el.(*goquery.Selection)
	if !ok || sel == nil {
		return nil, fmt.Errorf("static navigator: unexpected element %T", el)
	}
	return sel, nil
}

func split(sel *goquery.Selection) []crawler.Element {
	if sel.Length() == 0 {
		return nil
	}
	out := make([]crawler.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

func hidden(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	if v, _ := sel.Attr("aria-hidden"); v == "true" {
		return true
	}
	style, _ := sel.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func resolve(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if ref.IsAbs() || base == "" {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(ref).String(), nil
}
