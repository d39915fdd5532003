package extract_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/extract"
)

const attractionHTML = `<html><head>
<link rel="canonical" href="https://example.test/Attraction_Review-Pergamon.html">
</head><body>
<button class="keqHA f _S G_ w">Write a review</button>
<button class="keqHA f _S G_ w">Open now</button>
<div data-automation="attractionsPoiHoursForDay">
  <div>Monday</div><div>Closed</div>
  <div>Tuesday</div><div>10:00 AM - 6:00 PM</div>
  <div>Wednesday</div><div>10:00 AM - 8:00 PM</div>
</div>
<div class="ZGLUM"><img src="https://img.test/fallback.jpg"></div>
</body></html>`

func TestAttractionDetail(t *testing.T) {
	t.Parallel()

	nav := openPage(t, "https://example.test/detail", attractionHTML)
	detail, err := extract.AttractionExtractor{Pacer: crawler.NoPacer{}}.Detail(context.Background(), nav)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Tuesday":   "10:00 AM - 6:00 PM",
		"Wednesday": "10:00 AM - 8:00 PM",
	}, detail.OperatingHours)
	assert.Equal(t, "https://img.test/fallback.jpg", detail.ImageURL, "image falls back to the secondary selector")
	assert.Equal(t, "https://example.test/Attraction_Review-Pergamon.html", detail.SourceURL)
	assert.Equal(t, 1, nav.Clicks(), "only the hours button is clicked")
}

func TestAttractionDetailWithoutOptionalFields(t *testing.T) {
	t.Parallel()

	nav := openPage(t, "https://example.test/bare", `<html><body><h1>Nothing here</h1></body></html>`)
	detail, err := extract.AttractionExtractor{}.Detail(context.Background(), nav)
	require.NoError(t, err)

	assert.Nil(t, detail.OperatingHours)
	assert.Empty(t, detail.ImageURL)
	assert.Equal(t, "https://example.test/bare", detail.SourceURL)
}

func TestParseHours(t *testing.T) {
	t.Parallel()

	hours := extract.ParseHours([]string{
		"9:00 AM - 5:00 PM",
		"Friday",
		"  ",
		"9:00 AM - 5:00 PM",
		"Saturday",
		"Sunday",
		"11:00 AM - 4:00 PM",
	})
	assert.Equal(t, map[string]string{
		"Friday": "9:00 AM - 5:00 PM",
		"Sunday": "11:00 AM - 4:00 PM",
	}, hours)
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"12. Kölner Dom":   "Kölner Dom",
		"  1. Pergamon  ":  "Pergamon",
		"Museum Island":    "Museum Island",
		"1989":             "1989",
		"":                 "",
		"3D Museum Berlin": "Museum Berlin",
	}
	for in, want := range cases {
		assert.Equal(t, want, extract.CleanName(in), in)
	}
}
