package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/attraction-crawler/internal/catalog"
	"github.com/JakeFAU/attraction-crawler/internal/extract"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, catalog.ProfileAttractions, cfg.Profile)
	assert.Len(t, cfg.Sources, 10)
	assert.Equal(t, "Berlin", cfg.Sources[0].Name)
	assert.Equal(t, 5, cfg.Crawler.MaxPages)
	assert.Equal(t, extract.DefaultNoiseMarkers, cfg.Crawler.NoiseMarkers)
	assert.Equal(t, 5*time.Second, cfg.Crawler.Pacing.PageTurn.Min)
	assert.Equal(t, 7*time.Second, cfg.Crawler.Pacing.PageTurn.Max)
	assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
	assert.Equal(t, BackendFile, cfg.Checkpoint.Backend)
	assert.Equal(t, "processed_attractions.json", cfg.Checkpoint.Path)
	assert.Equal(t, "attractions.json", cfg.Records.Path)
	assert.Empty(t, cfg.Runs.DSN)
	assert.Equal(t, "crawl_runs", cfg.Runs.Table)
	assert.Empty(t, cfg.Status.Addr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
profile: tours
sources:
  - name: Munich
    url: https://www.getyourguide.com/munich-l26/
    categories: ["Tours", "Day trips"]
crawler:
  max_pages: 2
  max_reveals: 4
  pacing:
    item:
      min: 10ms
      max: 20ms
browser:
  driver: static
  nav_timeout: 5s
checkpoint:
  backend: sqlite
  path: /tmp/checkpoint.db
records:
  backend: postgres
  dsn: postgres://crawler@localhost/crawl
pubsub:
  project_id: demo
  topic: records
export:
  gcs_bucket: exports
  object: tours/records.json
runs:
  dsn: postgres://crawler@localhost/crawl
  table: tour_runs
status:
  addr: ":9091"
logging:
  development: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, catalog.ProfileTours, cfg.Profile)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, []string{"Tours", "Day trips"}, cfg.Sources[0].Categories)
	assert.Equal(t, 2, cfg.Crawler.MaxPages)
	assert.Equal(t, 4, cfg.Crawler.MaxReveals)
	assert.Equal(t, 10*time.Millisecond, cfg.Crawler.Pacing.Item.Min)
	assert.Equal(t, 20*time.Millisecond, cfg.Crawler.Pacing.Item.Max)
	assert.Equal(t, 3*time.Second, cfg.Crawler.Pacing.Entry.Min)
	assert.Equal(t, DriverStatic, cfg.Browser.Driver)
	assert.Equal(t, 5*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, BackendSQLite, cfg.Checkpoint.Backend)
	assert.Equal(t, BackendPostgres, cfg.Records.Backend)
	assert.Equal(t, "records", cfg.PubSub.Topic)
	assert.Equal(t, "tours/records.json", cfg.Export.Object)
	assert.Equal(t, "postgres://crawler@localhost/crawl", cfg.Runs.DSN)
	assert.Equal(t, "tour_runs", cfg.Runs.Table)
	assert.Equal(t, ":9091", cfg.Status.Addr)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadToursDefaultSources(t *testing.T) {
	cfg, err := Load(writeConfig(t, "profile: tours\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, []string{catalog.DefaultTourCategory}, cfg.Sources[0].Categories)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_BROWSER_DRIVER", "static")
	t.Setenv("CRAWLER_CHECKPOINT_PATH", "/data/processed.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverStatic, cfg.Browser.Driver)
	assert.Equal(t, "/data/processed.json", cfg.Checkpoint.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDiscoversConfigInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("crawler:\n  max_pages: 9\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Crawler.MaxPages)
}

func TestDir(t *testing.T) {
	assert.Equal(t, AppName, filepath.Base(Dir()))
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown profile", func(c *Config) { c.Profile = "hotels" }},
		{"source without url", func(c *Config) { c.Sources[0].URL = "" }},
		{"source without categories", func(c *Config) { c.Sources[0].Categories = nil }},
		{"zero max pages", func(c *Config) { c.Crawler.MaxPages = 0 }},
		{"negative reveals", func(c *Config) { c.Crawler.MaxReveals = -1 }},
		{"inverted window", func(c *Config) { c.Crawler.Pacing.Item.Max = time.Millisecond }},
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }},
		{"sqlite records", func(c *Config) { c.Records.Backend = BackendSQLite }},
		{"postgres without dsn", func(c *Config) { c.Checkpoint.Backend = BackendPostgres }},
		{"file without path", func(c *Config) { c.Records.Path = " " }},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "records" }},
		{"bucket without object", func(c *Config) { c.Export.GCSBucket = "exports" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Sources = append([]catalog.Source(nil), base.Sources...)
			cfg.Sources[0].Categories = append([]string(nil), base.Sources[0].Categories...)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
