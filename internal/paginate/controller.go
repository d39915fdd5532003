// Package paginate walks the pages of a listing and hands each page to a
// visitor. Any failure to advance ends the walk for that category.
package paginate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/metrics"
)

// Default selectors and limits.
const (
	DefaultMaxPages         = 5
	DefaultNextPageSelector = `a[aria-label="Next page"]`
	DefaultShowMoreSelector = ".show-more button"
)

// State is a position in the pagination state machine.
type State int

// Pagination states.
const (
	AtPage State = iota
	Advancing
	Exhausted
)

func (s State) String() string {
	switch s {
	case AtPage:
		return "at_page"
	case Advancing:
		return "advancing"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config selects the pagination modes of a listing.
type Config struct {
	// Numbered enables page-to-page advance through numbered links.
	Numbered bool
	// LoadMore enables in-place reveals before each page is visited.
	LoadMore bool
	MaxPages int
	// MaxReveals bounds load-more clicks per page.
	MaxReveals       int
	NextPageSelector string
	ShowMoreSelector string
	PageTurn         crawler.Window
	RevealBefore     crawler.Window
	RevealAfter      crawler.Window
}

// Visit processes the items of the page the cursor points at.
type Visit func(ctx context.Context, cursor crawler.TraversalCursor) error

// Stats summarizes one walk.
type Stats struct {
	Pages   int
	Reveals int
	Final   State
}

// Controller drives the pagination state machine.
type Controller struct {
	cfg    Config
	pacer  crawler.Pacer
	logger *zap.Logger
}

// New builds a Controller.
func New(cfg Config, pacer crawler.Pacer, logger *zap.Logger) *Controller {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.NextPageSelector == "" {
		cfg.NextPageSelector = DefaultNextPageSelector
	}
	if cfg.ShowMoreSelector == "" {
		cfg.ShowMoreSelector = DefaultShowMoreSelector
	}
	if pacer == nil {
		pacer = crawler.NoPacer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, pacer: pacer, logger: logger}
}

// Run visits page 1 of the listing currently open in nav and keeps advancing
// until the listing is exhausted. Only context errors are returned.
func (c *Controller) Run(ctx context.Context, nav crawler.Navigator, source, category string, visit Visit) (Stats, error) {
	cursor := crawler.TraversalCursor{Source: source, Category: category, Page: 1}
	logger := c.logger.With(zap.String("source", source), zap.String("category", category))
	var stats Stats
	state := AtPage

	for state != Exhausted {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch state {
		case AtPage:
			if c.cfg.LoadMore {
				n, err := c.Reveal(ctx, nav)
				stats.Reveals += n
				metrics.ObserveReveals(source, n)
				if err != nil {
					return stats, err
				}
			}
			metrics.ObservePage(source, category)
			stats.Pages++
			if err := visit(ctx, cursor); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				logger.Warn("page visit failed", zap.Int("page", cursor.Page), zap.Error(err))
				state = Exhausted
				continue
			}
			if !c.cfg.Numbered || cursor.Page >= c.cfg.MaxPages {
				state = Exhausted
				continue
			}
			state = Advancing

		case Advancing:
			advanced, err := c.advance(ctx, nav, cursor.Page)
			switch {
			case err != nil && ctx.Err() != nil:
				return stats, ctx.Err()
			case err != nil:
				logger.Warn("could not advance to next page", zap.Int("page", cursor.Page), zap.Error(err))
				state = Exhausted
			case !advanced:
				logger.Info("no next page", zap.Int("page", cursor.Page))
				state = Exhausted
			default:
				cursor.Page++
				cursor.Item = 0
				state = AtPage
			}
		}
	}
	stats.Final = state
	return stats, nil
}

func (c *Controller) advance(ctx context.Context, nav crawler.Navigator, page int) (bool, error) {
	selectors := []string{fmt.Sprintf(`a[aria-label="%d"]`, page+1), c.cfg.NextPageSelector}
	for _, sel := range selectors {
		links, err := nav.Query(ctx, sel)
		if err != nil {
			return false, fmt.Errorf("query %s: %w", sel, err)
		}
		if len(links) == 0 {
			continue
		}
		if err := nav.ScrollIntoView(ctx, links[0]); err != nil {
			return false, fmt.Errorf("scroll to next page: %w", err)
		}
		if err := nav.Click(ctx, links[0]); err != nil {
			return false, fmt.Errorf("click next page: %w", err)
		}
		if err := nav.WaitSettle(ctx); err != nil {
			return false, fmt.Errorf("wait for page %d: %w", page+1, err)
		}
		c.pacer.Pause(ctx, c.cfg.PageTurn)
		return true, nil
	}
	return false, nil
}

// Reveal clicks the load-more control while it is visible, at most
// MaxReveals times, and returns the number of clicks. Interaction errors end
// the reveal loop; only context errors are returned.
func (c *Controller) Reveal(ctx context.Context, nav crawler.Navigator) (int, error) {
	reveals := 0
	for reveals < c.cfg.MaxReveals {
		if err := ctx.Err(); err != nil {
			return reveals, err
		}
		btn, ok, err := c.visibleShowMore(ctx, nav)
		if err == nil && !ok {
			break
		}
		if err == nil {
			err = c.clickShowMore(ctx, nav, btn)
		}
		if err != nil {
			if isContextErr(err) && ctx.Err() != nil {
				return reveals, ctx.Err()
			}
			c.logger.Warn("load more failed", zap.Int("reveals", reveals), zap.Error(err))
			break
		}
		reveals++
	}
	return reveals, nil
}

func (c *Controller) visibleShowMore(ctx context.Context, nav crawler.Navigator) (crawler.Element, bool, error) {
	buttons, err := nav.Query(ctx, c.cfg.ShowMoreSelector)
	if err != nil {
		return nil, false, fmt.Errorf("query show more: %w", err)
	}
	for _, btn := range buttons {
		visible, err := nav.Visible(ctx, btn)
		if err != nil {
			return nil, false, fmt.Errorf("check show more: %w", err)
		}
		if visible {
			return btn, true, nil
		}
	}
	return nil, false, nil
}

func (c *Controller) clickShowMore(ctx context.Context, nav crawler.Navigator, btn crawler.Element) error {
	if err := nav.ScrollIntoView(ctx, btn); err != nil {
		return fmt.Errorf("scroll to show more: %w", err)
	}
	c.pacer.Pause(ctx, c.cfg.RevealBefore)
	if err := nav.Click(ctx, btn); err != nil {
		return fmt.Errorf("click show more: %w", err)
	}
	if err := nav.WaitSettle(ctx); err != nil {
		return fmt.Errorf("wait after show more: %w", err)
	}
	c.pacer.Pause(ctx, c.cfg.RevealAfter)
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
