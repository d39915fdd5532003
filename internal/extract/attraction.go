package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// Attraction detail page selectors.
const (
	HoursButtonSelector = "button.keqHA.f._S.G_.w"
	HoursPanelSelector  = `div[data-automation="attractionsPoiHoursForDay"]`
	HoursRowSelector    = HoursPanelSelector + " > div"
)

var weekdays = map[string]struct{}{
	"Monday": {}, "Tuesday": {}, "Wednesday": {}, "Thursday": {},
	"Friday": {}, "Saturday": {}, "Sunday": {},
}

// AttractionDetail holds the fields read from an attraction's own page.
type AttractionDetail struct {
	OperatingHours map[string]string
	ImageURL       string
	SourceURL      string
}

// AttractionExtractor reads attraction detail pages.
type AttractionExtractor struct {
	Logger      *zap.Logger
	Pacer       crawler.Pacer
	RevealPause crawler.Window
}

var (
	imageChain = Chain[string]{
		Field: "image_url",
		Strategies: []Strategy[string]{
			AttrOf("picture.NhWcC img", "src", true),
			AttrOf("div.ZGLUM img", "src", true),
		},
	}
	sourceURLChain = Chain[string]{
		Field: "source_url",
		Strategies: []Strategy[string]{
			AttrOf(`link[rel="canonical"]`, "href", false),
			Location(),
			CurrentURL(),
		},
	}
)

// Detail reads hours, image and source URL from the current page. Field
// failures are logged and left empty; only context errors are returned.
func (e AttractionExtractor) Detail(ctx context.Context, nav crawler.Navigator) (AttractionDetail, error) {
	logger := e.logger()
	var detail AttractionDetail

	hours, err := e.Hours(ctx, nav)
	switch {
	case err != nil && ctx.Err() != nil:
		return detail, ctx.Err()
	case err != nil:
		logger.Warn("could not read operating hours", zap.Error(err))
	default:
		detail.OperatingHours = hours
	}

	image, err := imageChain.Run(ctx, Document(nav), logger)
	if err != nil {
		return detail, err
	}
	detail.ImageURL = image.Value

	source, err := sourceURLChain.Run(ctx, Document(nav), logger)
	if err != nil {
		return detail, err
	}
	detail.SourceURL = source.Value
	return detail, nil
}

// Hours clicks the first button labelled with Hours or Open that reveals the
// hours panel and parses it. No such button yields nil hours.
func (e AttractionExtractor) Hours(ctx context.Context, nav crawler.Navigator) (map[string]string, error) {
	buttons, err := nav.Query(ctx, HoursButtonSelector)
	if err != nil {
		return nil, fmt.Errorf("query hours buttons: %w", err)
	}
	for _, btn := range buttons {
		label, err := nav.Text(ctx, btn)
		if err != nil {
			return nil, fmt.Errorf("read hours button: %w", err)
		}
		if !strings.Contains(label, "Hours") && !strings.Contains(label, "Open") {
			continue
		}
		if err := nav.ScrollIntoView(ctx, btn); err != nil {
			return nil, fmt.Errorf("scroll to hours button: %w", err)
		}
		if err := nav.Click(ctx, btn); err != nil {
			return nil, fmt.Errorf("click hours button: %w", err)
		}
		if err := nav.WaitSettle(ctx); err != nil {
			return nil, fmt.Errorf("wait for hours panel: %w", err)
		}
		if e.Pacer != nil {
			e.Pacer.Pause(ctx, e.RevealPause)
		}
		panel, err := nav.Query(ctx, HoursPanelSelector)
		if err != nil {
			return nil, fmt.Errorf("query hours panel: %w", err)
		}
		if len(panel) == 0 {
			continue
		}
		rows, err := nav.Query(ctx, HoursRowSelector)
		if err != nil {
			return nil, fmt.Errorf("query hours rows: %w", err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			text, err := nav.Text(ctx, row)
			if err != nil {
				return nil, fmt.Errorf("read hours row: %w", err)
			}
			lines = append(lines, text)
		}
		return ParseHours(lines), nil
	}
	return nil, nil
}

// ParseHours turns the rows of an hours panel into day -> hours text. A
// weekday row sets the current day; the next row mentioning AM or PM is its
// hours. Rows before any weekday are ignored.
func ParseHours(rows []string) map[string]string {
	hours := make(map[string]string)
	current := ""
	for _, row := range rows {
		text := strings.TrimSpace(row)
		if text == "" {
			continue
		}
		if _, ok := weekdays[text]; ok {
			current = text
			continue
		}
		if current != "" && (strings.Contains(text, "AM") || strings.Contains(text, "PM")) {
			hours[current] = text
		}
	}
	return hours
}

// CleanName strips a leading rank such as "12. " from a card title.
func CleanName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	if unicode.IsDigit([]rune(name)[0]) {
		if _, rest, ok := strings.Cut(name, " "); ok {
			name = strings.TrimSpace(rest)
		}
	}
	return name
}

func (e AttractionExtractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
