// Package chromenav implements crawler.Navigator on headless Chrome via
// chromedp. Elements are remote object handles scoped to one tab; they go
// stale when the tab navigates.
package chromenav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/policy/ratelimit"
)

const objectGroup = "crawl"

// Config controls browser launch and per-call timeouts.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	SettleDelay       time.Duration
	// DomainQPS caps navigations per second per host. Zero disables it.
	DomainQPS float64
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 15 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// browser is shared by every tab opened from the same root navigator.
type browser struct {
	allocCancel context.CancelFunc
	limiter     *ratelimit.Limiter
}

// Navigator drives a single Chrome tab.
type Navigator struct {
	cfg     Config
	logger  *zap.Logger
	browser *browser
	tabCtx  context.Context
	cancel  context.CancelFunc
	root    bool
}

var (
	_ crawler.Navigator = (*Navigator)(nil)
	_ crawler.Releaser  = (*Navigator)(nil)
)

// New launches Chrome and returns a navigator bound to its first tab.
func New(cfg Config, logger *zap.Logger) (*Navigator, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Navigator{
		cfg:     cfg,
		logger:  logger,
		browser: &browser{allocCancel: allocCancel, limiter: ratelimit.New(ratelimit.Config{RPS: cfg.DomainQPS})},
		tabCtx:  tabCtx,
		cancel:  tabCancel,
		root:    true,
	}, nil
}

// Open navigates the tab and waits for the body to be ready.
func (n *Navigator) Open(ctx context.Context, rawURL string) error {
	if err := n.waitDomainBudget(ctx, rawURL); err != nil {
		return fmt.Errorf("navigation rate limit: %w", err)
	}
	err := n.run(ctx, n.cfg.NavigationTimeout,
		runtime.ReleaseObjectGroup(objectGroup),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", rawURL, err)
	}
	n.logger.Debug("page opened", zap.String("url", rawURL))
	return nil
}

// URL returns the address the tab currently shows.
func (n *Navigator) URL(ctx context.Context) (string, error) {
	var loc string
	if err := n.run(ctx, n.cfg.ActionTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Query returns every element matching selector in the document.
func (n *Navigator) Query(ctx context.Context, selector string) ([]crawler.Element, error) {
	var out []crawler.Element
	err := n.run(ctx, n.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, err := evaluateObject(ctx, "document")
		if err != nil {
			return err
		}
		out, err = queryAll(ctx, doc, selector)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return out, nil
}

// QueryWithin returns the elements matching selector below parent.
func (n *Navigator) QueryWithin(ctx context.Context, parent crawler.Element, selector string) ([]crawler.Element, error) {
	id, err := objectID(parent)
	if err != nil {
		return nil, err
	}
	var out []crawler.Element
	err = n.run(ctx, n.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var qerr error
		out, qerr = queryAll(ctx, id, selector)
		return qerr
	}))
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return out, nil
}

// Closest returns the nearest ancestor of el, el included, matching selector.
func (n *Navigator) Closest(ctx context.Context, el crawler.Element, selector string) (crawler.Element, bool, error) {
	id, err := objectID(el)
	if err != nil {
		return nil, false, err
	}
	var found runtime.RemoteObjectID
	err = n.run(ctx, n.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		res, cerr := callOn(ctx, id, `function(sel) { return this.closest(sel); }`, false, selector)
		if cerr != nil {
			return cerr
		}
		found = res.ObjectID
		return nil
	}))
	if err != nil {
		return nil, false, fmt.Errorf("closest %q: %w", selector, err)
	}
	if found == "" {
		return nil, false, nil
	}
	return found, true, nil
}

// Text returns the rendered text of el.
func (n *Navigator) Text(ctx context.Context, el crawler.Element) (string, error) {
	var text string
	if err := n.callValue(ctx, el, `function() { return (this.innerText || this.textContent || "").trim(); }`, &text); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return text, nil
}

type attrResult struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

// Attribute returns the named attribute of el.
func (n *Navigator) Attribute(ctx context.Context, el crawler.Element, name string) (string, bool, error) {
	var res attrResult
	err := n.callValue(ctx, el,
		`function(name) { return {ok: this.hasAttribute(name), value: this.getAttribute(name) || ""}; }`,
		&res, name)
	if err != nil {
		return "", false, fmt.Errorf("read attribute %q: %w", name, err)
	}
	return res.Value, res.OK, nil
}

// Visible reports whether el has a rendered box and is not styled hidden.
func (n *Navigator) Visible(ctx context.Context, el crawler.Element) (bool, error) {
	var visible bool
	err := n.callValue(ctx, el, `function() {
		const style = window.getComputedStyle(this);
		if (style.display === "none" || style.visibility === "hidden") return false;
		return this.getClientRects().length > 0;
	}`, &visible)
	if err != nil {
		return false, fmt.Errorf("check visibility: %w", err)
	}
	return visible, nil
}

// ScrollIntoView centers el in the viewport.
func (n *Navigator) ScrollIntoView(ctx context.Context, el crawler.Element) error {
	if err := n.callValue(ctx, el, `function() { this.scrollIntoView({block: "center"}); return true; }`, nil); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return nil
}

// Click dispatches a click on el.
func (n *Navigator) Click(ctx context.Context, el crawler.Element) error {
	if err := n.callValue(ctx, el, `function() { this.click(); return true; }`, nil); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

// WaitSettle waits for the body after the configured settle delay.
func (n *Navigator) WaitSettle(ctx context.Context) error {
	actions := []chromedp.Action{}
	if n.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(n.cfg.SettleDelay))
	}
	actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	if err := n.run(ctx, n.cfg.NavigationTimeout, actions...); err != nil {
		return fmt.Errorf("wait settle: %w", err)
	}
	return nil
}

// Evaluate runs expression in the page and decodes its value into out.
func (n *Navigator) Evaluate(ctx context.Context, expression string, out any) error {
	if err := n.run(ctx, n.cfg.ActionTimeout, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// NewTab opens a second tab in the same browser.
func (n *Navigator) NewTab(ctx context.Context) (crawler.Navigator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(n.tabCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Navigator{
		cfg:     n.cfg,
		logger:  n.logger,
		browser: n.browser,
		tabCtx:  tabCtx,
		cancel:  cancel,
	}, nil
}

// Release drops every remote object handed out since the last navigation.
func (n *Navigator) Release(ctx context.Context) error {
	if err := n.run(ctx, n.cfg.ActionTimeout, runtime.ReleaseObjectGroup(objectGroup)); err != nil {
		return fmt.Errorf("release elements: %w", err)
	}
	return nil
}

// Close closes the tab. Closing the root navigator also stops Chrome.
func (n *Navigator) Close() error {
	n.cancel()
	if n.root {
		n.browser.allocCancel()
	}
	return nil
}

func (n *Navigator) callValue(ctx context.Context, el crawler.Element, fn string, out any, args ...any) error {
	id, err := objectID(el)
	if err != nil {
		return err
	}
	return n.run(ctx, n.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		res, cerr := callOn(ctx, id, fn, true, args...)
		if cerr != nil {
			return cerr
		}
		if out == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal(res.Value, out)
	}))
}

// run executes actions on the tab under timeout. Cancelling ctx aborts them.
func (n *Navigator) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	taskCtx, cancel := context.WithTimeout(n.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (n *Navigator) waitDomainBudget(ctx context.Context, rawURL string) error {
	if n.browser == nil {
		return nil
	}
	return n.browser.limiter.Wait(ctx, rawURL)
}

var errForeignElement = errors.New("element does not belong to a chromedp navigator")

func objectID(el crawler.Element) (runtime.RemoteObjectID, error) {
	id, ok := el.(runtime.RemoteObjectID)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %T", errForeignElement, el)
	}
	return id, nil
}

func evaluateObject(ctx context.Context, expression string) (runtime.RemoteObjectID, error) {
	res, exc, err := runtime.Evaluate(expression).WithObjectGroup(objectGroup).Do(ctx)
	if err != nil {
		return "", err
	}
	if exc != nil {
		return "", fmt.Errorf("javascript exception: %s", exc.Text)
	}
	return res.ObjectID, nil
}

func queryAll(ctx context.Context, scope runtime.RemoteObjectID, selector string) ([]crawler.Element, error) {
	res, err := callOn(ctx, scope, `function(sel) { return this.querySelectorAll(sel).length; }`, true, selector)
	if err != nil {
		return nil, err
	}
	var count int
	if err := json.Unmarshal(res.Value, &count); err != nil {
		return nil, fmt.Errorf("decode match count: %w", err)
	}
	out := make([]crawler.Element, 0, count)
	for i := 0; i < count; i++ {
		item, err := callOn(ctx, scope, `function(sel, i) { return this.querySelectorAll(sel)[i]; }`, false, selector, i)
		if err != nil {
			return nil, err
		}
		if item.ObjectID != "" {
			out = append(out, item.ObjectID)
		}
	}
	return out, nil
}

func callOn(ctx context.Context, target runtime.RemoteObjectID, fn string, byValue bool, args ...any) (*runtime.RemoteObject, error) {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode argument: %w", err)
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
	}
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(target).
		WithArguments(callArgs).
		WithReturnByValue(byValue).
		WithAwaitPromise(true).
		WithObjectGroup(objectGroup).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("javascript exception: %s", exc.Text)
	}
	return res, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
