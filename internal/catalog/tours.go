package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/extract"
	"github.com/JakeFAU/attraction-crawler/internal/paginate"
)

// Tour listing defaults.
const (
	DefaultToursURL     = "https://www.getyourguide.com/berlin-l17/"
	DefaultTourCategory = "Tours"
	TourCardSelector    = "article"
)

// TourOptions configures the tours profile.
type TourOptions struct {
	Logger *zap.Logger
	// BaseURL resolves relative card links; the open page is used when empty.
	BaseURL    string
	Pagination paginate.Config
}

// Tours is the tour listing layout: one unfiltered listing grown with a
// load-more button, with details on each tour's own page.
type Tours struct {
	extractor  extract.TourExtractor
	pagination paginate.Config
}

var _ Profile = (*Tours)(nil)

// NewTours builds the tours profile.
func NewTours(opts TourOptions) *Tours {
	pagination := opts.Pagination
	pagination.Numbered = false
	pagination.LoadMore = true
	return &Tours{
		extractor:  extract.TourExtractor{Logger: opts.Logger, BaseURL: opts.BaseURL},
		pagination: pagination,
	}
}

// Name implements Profile.
func (t *Tours) Name() string { return ProfileTours }

// Pagination implements Profile.
func (t *Tours) Pagination() paginate.Config { return t.pagination }

// SelectCategory is a no-op: a tour category is only a label.
func (t *Tours) SelectCategory(ctx context.Context, _ crawler.Navigator, _ string) error {
	return ctx.Err()
}

// Cards implements Profile.
func (t *Tours) Cards(ctx context.Context, nav crawler.Navigator) ([]crawler.Element, error) {
	return nav.Query(ctx, TourCardSelector)
}

// Describe reads title, price and link of a tour card.
func (t *Tours) Describe(ctx context.Context, nav crawler.Navigator, card crawler.Element) (Card, error) {
	ex := t.extractor
	if ex.BaseURL == "" {
		base, err := nav.URL(ctx)
		if err != nil {
			return Card{}, fmt.Errorf("read page url: %w", err)
		}
		ex.BaseURL = base
	}
	tc, err := ex.Card(ctx, nav, card)
	if err != nil {
		return Card{}, err
	}
	return Card{Name: tc.Title, DetailURL: tc.Link, Price: tc.Price}, nil
}

// BeginPage implements Profile. Tours keep no per-page state.
func (t *Tours) BeginPage() Page { return tourPage{} }

// Detail reads duration, languages and meeting point from the tour page.
func (t *Tours) Detail(ctx context.Context, nav crawler.Navigator, card Card, rec *crawler.Record) error {
	detail, err := t.extractor.Detail(ctx, nav)
	if err != nil {
		return err
	}
	rec.Duration = detail.Duration
	rec.Languages = detail.Languages
	rec.MeetingPoint = detail.MeetingPoint
	rec.MeetingPointMapsLink = detail.MeetingPointMapsLink
	rec.SourceURL = card.DetailURL
	return nil
}

type tourPage struct{}

func (tourPage) Skip(ctx context.Context, _ crawler.Navigator) error { return ctx.Err() }

func (tourPage) Preview(_ context.Context, _ crawler.Navigator, card Card, rec *crawler.Record) error {
	rec.Price = card.Price
	return nil
}
