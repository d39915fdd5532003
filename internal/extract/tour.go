package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// ErrNoTitle is returned when a tour card has no readable title.
var ErrNoTitle = errors.New("tour card has no title")

const meetingBlock = "#meeting-point-links, .meeting-points-block"

// TourCard holds the fields shown on a tour listing card.
type TourCard struct {
	Title string
	Price string
	Link  string
}

// TourDetail holds the fields read from a tour's own page.
type TourDetail struct {
	Duration             string
	Languages            []string
	MeetingPoint         string
	MeetingPointMapsLink string
}

// TourExtractor reads tour listing cards and tour pages.
type TourExtractor struct {
	Logger *zap.Logger
	// BaseURL resolves relative card links.
	BaseURL string
}

var (
	titleChain = Chain[string]{
		Field:      "title",
		Strategies: []Strategy[string]{TextOf("h3")},
	}
	priceChain = Chain[string]{
		Field:      "price",
		Default:    crawler.Unknown,
		Strategies: []Strategy[string]{TextOf(".activity-price__text-price")},
	}
	linkChain = Chain[string]{
		Field:      "link",
		Strategies: []Strategy[string]{AttrOf("a[href]", "href", false)},
	}
	durationChain = Chain[string]{
		Field:   "duration",
		Default: crawler.Unknown,
		Strategies: []Strategy[string]{
			Map(TextIn("#icon-label-duration", "dt .text-atom--body-strong"), stripDurationLabel),
			Map(TextIn("#icon-label-duration", "dt"), stripDurationLabel),
		},
	}
	languagesChain = Chain[string]{
		Field: "languages",
		Strategies: []Strategy[string]{
			TextIn("#icon-label-tourGuides", "dd .text-atom--caption"),
			TextIn("#icon-label-audioGuides", "dd .text-atom--caption"),
		},
	}
	meetingPointChain = Chain[string]{
		Field:      "meeting_point",
		Default:    crawler.Unknown,
		Strategies: []Strategy[string]{TextIn(meetingBlock, ".text-atom--body")},
	}
	mapsLinkChain = Chain[string]{
		Field:   "meeting_point_maps_link",
		Default: crawler.Unknown,
		Strategies: []Strategy[string]{
			AttrIn(meetingBlock, "a.link-button[href*='maps.google.com']", "href"),
			AttrOf("a[href*='maps.google.com']", "href", false),
		},
	}
)

// Card reads a listing card. A card without a title is an error; a missing
// link leaves Link empty.
func (e TourExtractor) Card(ctx context.Context, nav crawler.Navigator, card crawler.Element) (TourCard, error) {
	logger := e.logger()
	scope := Within(nav, card)

	title, err := titleChain.Run(ctx, scope, logger)
	if err != nil {
		return TourCard{}, err
	}
	if !title.Found() {
		return TourCard{}, ErrNoTitle
	}
	price, err := priceChain.Run(ctx, scope, logger)
	if err != nil {
		return TourCard{}, err
	}
	link, err := linkChain.Run(ctx, scope, logger)
	if err != nil {
		return TourCard{}, err
	}
	resolved := ""
	if link.Found() {
		resolved, err = ResolveURL(e.BaseURL, link.Value)
		if err != nil {
			logger.Warn("could not resolve tour link", zap.String("href", link.Value), zap.Error(err))
			resolved = ""
		}
	}
	return TourCard{Title: title.Value, Price: price.Value, Link: resolved}, nil
}

// Detail reads a tour page. Missing fields hold crawler.Unknown.
func (e TourExtractor) Detail(ctx context.Context, nav crawler.Navigator) (TourDetail, error) {
	logger := e.logger()
	scope := Document(nav)
	var detail TourDetail

	duration, err := durationChain.Run(ctx, scope, logger)
	if err != nil {
		return detail, err
	}
	detail.Duration = duration.Value

	languages, err := languagesChain.Run(ctx, scope, logger)
	if err != nil {
		return detail, err
	}
	detail.Languages = SplitLanguages(languages.Value)

	meeting, err := meetingPointChain.Run(ctx, scope, logger)
	if err != nil {
		return detail, err
	}
	detail.MeetingPoint = meeting.Value

	maps, err := mapsLinkChain.Run(ctx, scope, logger)
	if err != nil {
		return detail, err
	}
	detail.MeetingPointMapsLink = maps.Value
	return detail, nil
}

// SplitLanguages turns "English, German" into a list. Blank input yields the
// single entry crawler.Unknown.
func SplitLanguages(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{crawler.Unknown}
	}
	return out
}

// ResolveURL makes href absolute against base.
func ResolveURL(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	if ref.IsAbs() || base == "" {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return b.ResolveReference(ref).String(), nil
}

func stripDurationLabel(s string) string {
	return strings.ReplaceAll(s, "Duration", "")
}

func (e TourExtractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
