package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// DefaultNoiseMarkers are banner texts that occupy a classification slot
// without describing any item.
var DefaultNoiseMarkers = []string{"Admission Tickets Available"}

// SlotCursor indexes the flattened classification container list of one
// listing page. It starts at zero for every page and only moves forward.
type SlotCursor int

// Classifier reads classification tags that sit beside, not inside, the
// item cards. Successive items share one SlotCursor in traversal order.
type Classifier struct {
	Containers   string
	Label        string
	NoiseMarkers []string
}

// Take reads the tag at cursor. A noise slot is skipped once. The returned
// cursor is one past the slot actually used; when cursor is out of range ok
// is false and the cursor advances by one.
func (c Classifier) Take(ctx context.Context, nav crawler.Navigator, cursor SlotCursor) (string, bool, SlotCursor, error) {
	slots, err := nav.Query(ctx, c.Containers)
	if err != nil {
		return "", false, cursor + 1, fmt.Errorf("query classification slots: %w", err)
	}
	idx := int(cursor)
	if idx < 0 || idx >= len(slots) {
		return "", false, cursor + 1, nil
	}
	label, err := c.label(ctx, nav, slots[idx])
	if err != nil {
		return "", false, cursor + 1, err
	}
	if c.isNoise(label) {
		idx++
		if idx >= len(slots) {
			return "", false, SlotCursor(idx + 1), nil
		}
		if label, err = c.label(ctx, nav, slots[idx]); err != nil {
			return "", false, SlotCursor(idx + 1), err
		}
	}
	return label, label != "", SlotCursor(idx + 1), nil
}

// Skip advances past the slots an already processed item would have used,
// keeping later items aligned with their tags.
func (c Classifier) Skip(ctx context.Context, nav crawler.Navigator, cursor SlotCursor) (SlotCursor, error) {
	_, _, next, err := c.Take(ctx, nav, cursor)
	return next, err
}

func (c Classifier) label(ctx context.Context, nav crawler.Navigator, slot crawler.Element) (string, error) {
	nodes, err := nav.QueryWithin(ctx, slot, c.Label)
	if err != nil {
		return "", fmt.Errorf("query classification label: %w", err)
	}
	if len(nodes) == 0 {
		return "", nil
	}
	text, err := nav.Text(ctx, nodes[0])
	if err != nil {
		return "", fmt.Errorf("read classification label: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (c Classifier) isNoise(label string) bool {
	if label == "" {
		return false
	}
	markers := c.NoiseMarkers
	if markers == nil {
		markers = DefaultNoiseMarkers
	}
	for _, m := range markers {
		if m != "" && strings.Contains(label, m) {
			return true
		}
	}
	return false
}
