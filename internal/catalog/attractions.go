package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/extract"
	"github.com/JakeFAU/attraction-crawler/internal/paginate"
)

// Attraction listing selectors.
const (
	AttractionCardSelector  = "div.XfVdV.o.AIbhI"
	ClassificationSlots     = "div.dxkoL.y div.NxKBB.BKifx.y div.alPVI.eNNhq.PgLKC.tnGGX.yzLvM"
	ClassificationLabel     = "div.biGQs._P.VImYz.ZNjnF"
	categoryControlTemplate = `span:contains("%s")`
)

// DefaultAttractionCategories are visited for every attraction source unless
// configured otherwise.
var DefaultAttractionCategories = []string{"Sights & Landmarks", "Museums", "Nightlife", "Nature & Parks"}

// AttractionOptions configures the attractions profile.
type AttractionOptions struct {
	Logger       *zap.Logger
	Pacer        crawler.Pacer
	RevealPause  crawler.Window
	NoiseMarkers []string
	Pagination   paginate.Config
}

// Attractions is the attraction listing layout: categories picked from a
// filter bar, numbered pages and classification tags beside the cards.
type Attractions struct {
	logger     *zap.Logger
	classifier extract.Classifier
	detail     extract.AttractionExtractor
	pagination paginate.Config
}

var _ Profile = (*Attractions)(nil)

// NewAttractions builds the attractions profile.
func NewAttractions(opts AttractionOptions) *Attractions {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pagination := opts.Pagination
	pagination.Numbered = true
	pagination.LoadMore = false
	return &Attractions{
		logger: logger,
		classifier: extract.Classifier{
			Containers:   ClassificationSlots,
			Label:        ClassificationLabel,
			NoiseMarkers: opts.NoiseMarkers,
		},
		detail: extract.AttractionExtractor{
			Logger:      logger,
			Pacer:       opts.Pacer,
			RevealPause: opts.RevealPause,
		},
		pagination: pagination,
	}
}

// Name implements Profile.
func (a *Attractions) Name() string { return ProfileAttractions }

// Pagination implements Profile.
func (a *Attractions) Pagination() paginate.Config { return a.pagination }

// SelectCategory clicks the filter control whose text contains category.
func (a *Attractions) SelectCategory(ctx context.Context, nav crawler.Navigator, category string) error {
	sel := fmt.Sprintf(categoryControlTemplate, strings.ReplaceAll(category, `"`, `\"`))
	controls, err := nav.Query(ctx, sel)
	if err != nil {
		return fmt.Errorf("query category control: %w", err)
	}
	if len(controls) == 0 {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	if err := nav.Click(ctx, controls[0]); err != nil {
		return fmt.Errorf("select category %s: %w", category, err)
	}
	if err := nav.WaitSettle(ctx); err != nil {
		return fmt.Errorf("wait for category %s: %w", category, err)
	}
	return nil
}

// Cards implements Profile.
func (a *Attractions) Cards(ctx context.Context, nav crawler.Navigator) ([]crawler.Element, error) {
	return nav.Query(ctx, AttractionCardSelector)
}

// Describe reads the display name and detail link of a card.
func (a *Attractions) Describe(ctx context.Context, nav crawler.Navigator, card crawler.Element) (Card, error) {
	raw, err := nav.Text(ctx, card)
	if err != nil {
		return Card{}, fmt.Errorf("read card text: %w", err)
	}
	name := extract.CleanName(firstLine(raw))
	if name == "" {
		return Card{}, ErrNoName
	}
	href, err := a.link(ctx, nav, card)
	if err != nil {
		return Card{Name: name}, err
	}
	if href == "" {
		return Card{Name: name}, nil
	}
	detailURL, err := absolute(ctx, nav, href)
	if err != nil {
		return Card{Name: name}, err
	}
	return Card{Name: name, DetailURL: detailURL}, nil
}

func (a *Attractions) link(ctx context.Context, nav crawler.Navigator, card crawler.Element) (string, error) {
	if anchor, ok, err := nav.Closest(ctx, card, "a[href]"); err != nil {
		return "", fmt.Errorf("find card link: %w", err)
	} else if ok {
		href, _, err := nav.Attribute(ctx, anchor, "href")
		return strings.TrimSpace(href), err
	}
	res, _, err := extract.AttrOf("a[href]", "href", false).Extract(ctx, extract.Within(nav, card))
	if err != nil {
		return "", fmt.Errorf("find card link: %w", err)
	}
	return res, nil
}

// BeginPage starts a new classification cursor.
func (a *Attractions) BeginPage() Page {
	return &attractionPage{classifier: a.classifier, logger: a.logger}
}

// Detail reads hours, image and source URL from the attraction page.
func (a *Attractions) Detail(ctx context.Context, nav crawler.Navigator, card Card, rec *crawler.Record) error {
	detail, err := a.detail.Detail(ctx, nav)
	if err != nil {
		return err
	}
	rec.OperatingHours = detail.OperatingHours
	rec.ImageURL = detail.ImageURL
	rec.SourceURL = detail.SourceURL
	if rec.SourceURL == "" {
		rec.SourceURL = card.DetailURL
	}
	return nil
}

type attractionPage struct {
	classifier extract.Classifier
	logger     *zap.Logger
	cursor     extract.SlotCursor
}

func (p *attractionPage) Skip(ctx context.Context, nav crawler.Navigator) error {
	next, err := p.classifier.Skip(ctx, nav, p.cursor)
	p.cursor = next
	return err
}

func (p *attractionPage) Preview(ctx context.Context, nav crawler.Navigator, _ Card, rec *crawler.Record) error {
	text, ok, next, err := p.classifier.Take(ctx, nav, p.cursor)
	p.cursor = next
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("could not read classification", zap.Error(err))
		return nil
	}
	if ok {
		rec.Classification = text
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
