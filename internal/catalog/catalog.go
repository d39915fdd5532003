// Package catalog describes the listing layouts the crawler understands.
// A Profile knows how to pick a category, find item cards, read listing
// fields and complete a record from the item's detail page.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/extract"
	"github.com/JakeFAU/attraction-crawler/internal/paginate"
)

// Profile names accepted in configuration.
const (
	ProfileAttractions = "attractions"
	ProfileTours       = "tours"
)

// ErrCategoryNotFound is returned when a listing offers no control for the
// requested category.
var ErrCategoryNotFound = errors.New("category not found")

// ErrNoName is returned for a card without a display name.
var ErrNoName = errors.New("card has no name")

// Source is one configured catalog entry point.
type Source struct {
	Name       string   `mapstructure:"name" yaml:"name"`
	URL        string   `mapstructure:"url" yaml:"url"`
	Categories []string `mapstructure:"categories" yaml:"categories"`
}

// Card holds what the listing page says about an item.
type Card struct {
	Name      string
	DetailURL string
	Price     string
}

// Page carries per-page extraction state in traversal order.
type Page interface {
	// Skip accounts for a card that will not be extracted.
	Skip(ctx context.Context, nav crawler.Navigator) error
	// Preview reads listing-page fields for card into rec.
	Preview(ctx context.Context, nav crawler.Navigator, card Card, rec *crawler.Record) error
}

// Profile is a listing layout.
type Profile interface {
	Name() string
	Pagination() paginate.Config
	SelectCategory(ctx context.Context, nav crawler.Navigator, category string) error
	Cards(ctx context.Context, nav crawler.Navigator) ([]crawler.Element, error)
	Describe(ctx context.Context, nav crawler.Navigator, card crawler.Element) (Card, error)
	BeginPage() Page
	// Detail completes rec from the item's own page open in nav.
	Detail(ctx context.Context, nav crawler.Navigator, card Card, rec *crawler.Record) error
}

// DefaultSources returns the built-in entry points of a profile.
func DefaultSources(profile string) ([]Source, error) {
	switch profile {
	case ProfileAttractions, "":
		return defaultAttractionSources(), nil
	case ProfileTours:
		return []Source{{Name: "Berlin", URL: DefaultToursURL, Categories: []string{DefaultTourCategory}}}, nil
	default:
		return nil, fmt.Errorf("unknown profile %q", profile)
	}
}

func defaultAttractionSources() []Source {
	cities := []struct{ name, url string }{
		{"Berlin", "https://www.tripadvisor.com/Attractions-g187323-Activities-oa0-Berlin.html"},
		{"Cologne", "https://www.tripadvisor.com/Attractions-g187371-Activities-a_allAttractions.true-Cologne_North_Rhine_Westphalia.html"},
		{"Munich", "https://www.tripadvisor.com/Attractions-g187309-Activities-a_allAttractions.true-Munich_Upper_Bavaria_Bavaria.html"},
		{"Hamburg", "https://www.tripadvisor.com/Attractions-g187331-Activities-a_allAttractions.true-Hamburg.html"},
		{"Frankfurt", "https://www.tripadvisor.com/Attractions-g187337-Activities-a_allAttractions.true-Frankfurt_Hesse.html"},
		{"Stuttgart", "https://www.tripadvisor.com/Attractions-g187291-Activities-a_allAttractions.true-Stuttgart_Baden_Wurttemberg.html"},
		{"Dusseldorf", "https://www.tripadvisor.com/Attractions-g187373-Activities-a_allAttractions.true-Dusseldorf_North_Rhine_Westphalia.html"},
		{"Dortmund", "https://www.tripadvisor.com/Attractions-g187372-Activities-a_allAttractions.true-Dortmund_North_Rhine_Westphalia.html"},
		{"Essen", "https://www.tripadvisor.com/Attractions-g187375-Activities-a_allAttractions.true-Essen_North_Rhine_Westphalia.html"},
		{"Leipzig", "https://www.tripadvisor.com/Attractions-g187400-Activities-c42-Leipzig_Saxony.html"},
	}
	out := make([]Source, 0, len(cities))
	for _, c := range cities {
		out = append(out, Source{Name: c.name, URL: c.url, Categories: append([]string(nil), DefaultAttractionCategories...)})
	}
	return out
}

// absolute resolves href against the page open in nav.
func absolute(ctx context.Context, nav crawler.Navigator, href string) (string, error) {
	base, err := nav.URL(ctx)
	if err != nil {
		return "", fmt.Errorf("read page url: %w", err)
	}
	return extract.ResolveURL(base, href)
}
