package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	Init()
	Init()

	if crawlItemsTotal == nil || crawlFieldUnknownTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveField(t *testing.T) {
	ObserveField("image_url", "picture")
	ObserveField("image_url", "")
	ObserveField("image_url", "")

	if val := testutil.ToFloat64(crawlFieldStrategyTotal.WithLabelValues("image_url", "picture")); val != 1 {
		t.Errorf("expected strategy counter 1, got %f", val)
	}
	if val := testutil.ToFloat64(crawlFieldUnknownTotal.WithLabelValues("image_url")); val != 2 {
		t.Errorf("expected unknown counter 2, got %f", val)
	}
}

func TestObserveItemAndReveals(t *testing.T) {
	ObserveItem("Leipzig", "Museums", OutcomeSkipped)
	ObserveReveals("Leipzig", 0)
	ObserveReveals("Leipzig", 3)
	ObserveStore("append", 5*time.Millisecond)

	if val := testutil.ToFloat64(crawlItemsTotal.WithLabelValues("Leipzig", "Museums", OutcomeSkipped)); val != 1 {
		t.Errorf("expected item counter 1, got %f", val)
	}
	if val := testutil.ToFloat64(crawlRevealsTotal.WithLabelValues("Leipzig")); val != 3 {
		t.Errorf("expected reveals counter 3, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
