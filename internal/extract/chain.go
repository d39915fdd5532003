// Package extract reads record fields from rendered pages through ordered
// fallback chains.
package extract

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/metrics"
)

// Scope is the part of a page a strategy reads from. A nil Root means the
// whole document.
type Scope struct {
	Nav  crawler.Navigator
	Root crawler.Element
}

// Document scopes nav to its whole page.
func Document(nav crawler.Navigator) Scope {
	return Scope{Nav: nav}
}

// Within scopes nav to the subtree under root.
func Within(nav crawler.Navigator, root crawler.Element) Scope {
	return Scope{Nav: nav, Root: root}
}

// Query finds selector inside the scope.
func (s Scope) Query(ctx context.Context, selector string) ([]crawler.Element, error) {
	if s.Root == nil {
		return s.Nav.Query(ctx, selector)
	}
	return s.Nav.QueryWithin(ctx, s.Root, selector)
}

// First returns the first match for selector inside the scope.
func (s Scope) First(ctx context.Context, selector string) (crawler.Element, bool, error) {
	els, err := s.Query(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, false, err
	}
	return els[0], true, nil
}

// Strategy is one way of reading a field. Extract reports ok=false when the
// strategy found nothing.
type Strategy[T any] struct {
	Name    string
	Extract func(ctx context.Context, scope Scope) (T, bool, error)
}

// Result is the outcome of a chain. Strategy is empty when every strategy
// failed and Value holds the chain default.
type Result[T any] struct {
	Value    T
	Strategy string
}

// Found reports whether any strategy matched.
func (r Result[T]) Found() bool {
	return r.Strategy != ""
}

// Chain is an ordered fallback list for one field.
type Chain[T any] struct {
	Field      string
	Default    T
	Strategies []Strategy[T]
}

// Run evaluates the strategies in order and returns the first match. Strategy
// errors are logged and treated as no match; only context errors abort.
func (c Chain[T]) Run(ctx context.Context, scope Scope, logger *zap.Logger) (Result[T], error) {
	res, err := FirstMatch(ctx, scope, logger, c.Strategies...)
	if err != nil {
		return Result[T]{Value: c.Default}, err
	}
	if c.Field != "" {
		metrics.ObserveField(c.Field, res.Strategy)
	}
	if !res.Found() {
		if logger != nil && c.Field != "" {
			logger.Warn("field not found, using default",
				zap.String("field", c.Field),
				zap.Int("strategies", len(c.Strategies)),
			)
		}
		res.Value = c.Default
	}
	return res, nil
}

// FirstMatch returns the result of the first strategy that matches.
func FirstMatch[T any](ctx context.Context, scope Scope, logger *zap.Logger, strategies ...Strategy[T]) (Result[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}
		value, ok, err := s.Extract(ctx, scope)
		if err != nil {
			if isContextErr(err) && ctx.Err() != nil {
				return Result[T]{}, err
			}
			logger.Warn("extraction strategy failed", zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if ok {
			return Result[T]{Value: value, Strategy: s.Name}, nil
		}
	}
	return Result[T]{}, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// TextOf reads the trimmed text of the first element matching selector.
// Blank text counts as no match.
func TextOf(selector string) Strategy[string] {
	return Strategy[string]{
		Name: "text:" + selector,
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			el, ok, err := scope.First(ctx, selector)
			if err != nil || !ok {
				return "", false, err
			}
			return text(ctx, scope.Nav, el)
		},
	}
}

// TextIn reads inner text inside the first block matching block.
func TextIn(block, inner string) Strategy[string] {
	return Strategy[string]{
		Name: "text:" + block + " " + inner,
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			root, ok, err := scope.First(ctx, block)
			if err != nil || !ok {
				return "", false, err
			}
			el, ok, err := Within(scope.Nav, root).First(ctx, inner)
			if err != nil || !ok {
				return "", false, err
			}
			return text(ctx, scope.Nav, el)
		},
	}
}

// AttrOf reads attr from the first element matching selector. With
// visibleOnly set, hidden matches are skipped.
func AttrOf(selector, attr string, visibleOnly bool) Strategy[string] {
	return Strategy[string]{
		Name: "attr:" + selector + "@" + attr,
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			els, err := scope.Query(ctx, selector)
			if err != nil {
				return "", false, err
			}
			for _, el := range els {
				if visibleOnly {
					visible, err := scope.Nav.Visible(ctx, el)
					if err != nil {
						return "", false, err
					}
					if !visible {
						continue
					}
				}
				value, ok, err := scope.Nav.Attribute(ctx, el, attr)
				if err != nil {
					return "", false, err
				}
				if value = strings.TrimSpace(value); ok && value != "" {
					return value, true, nil
				}
			}
			return "", false, nil
		},
	}
}

// AttrIn reads attr from inner inside the first block matching block.
func AttrIn(block, inner, attr string) Strategy[string] {
	return Strategy[string]{
		Name: "attr:" + block + " " + inner + "@" + attr,
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			root, ok, err := scope.First(ctx, block)
			if err != nil || !ok {
				return "", false, err
			}
			return AttrOf(inner, attr, false).Extract(ctx, Within(scope.Nav, root))
		},
	}
}

// Location evaluates window.location.href in the page.
func Location() Strategy[string] {
	return Strategy[string]{
		Name: "location",
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			var href string
			if err := scope.Nav.Evaluate(ctx, "window.location.href", &href); err != nil {
				return "", false, err
			}
			href = strings.TrimSpace(href)
			return href, href != "", nil
		},
	}
}

// CurrentURL asks the navigator for the address it last loaded.
func CurrentURL() Strategy[string] {
	return Strategy[string]{
		Name: "navigator-url",
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			u, err := scope.Nav.URL(ctx)
			if err != nil {
				return "", false, err
			}
			u = strings.TrimSpace(u)
			return u, u != "", nil
		},
	}
}

// Map wraps a string strategy and transforms its value. A blank result counts
// as no match.
func Map(s Strategy[string], fn func(string) string) Strategy[string] {
	return Strategy[string]{
		Name: s.Name,
		Extract: func(ctx context.Context, scope Scope) (string, bool, error) {
			value, ok, err := s.Extract(ctx, scope)
			if err != nil || !ok {
				return "", false, err
			}
			value = strings.TrimSpace(fn(value))
			return value, value != "", nil
		},
	}
}

func text(ctx context.Context, nav crawler.Navigator, el crawler.Element) (string, bool, error) {
	value, err := nav.Text(ctx, el)
	if err != nil {
		return "", false, err
	}
	value = strings.TrimSpace(value)
	return value, value != "", nil
}
