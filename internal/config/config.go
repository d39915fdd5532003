// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/attraction-crawler/internal/catalog"
	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/extract"
)

// AppName names the per-user configuration directory.
const AppName = "attraction-crawler"

// Backend names shared by the checkpoint and records sections.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Navigator drivers.
const (
	DriverChromedp = "chromedp"
	DriverStatic   = "static"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Profile    string           `mapstructure:"profile"`
	Sources    []catalog.Source `mapstructure:"sources"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Checkpoint StoreConfig      `mapstructure:"checkpoint"`
	Records    StoreConfig      `mapstructure:"records"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Export     ExportConfig     `mapstructure:"export"`
	Runs       RunsConfig       `mapstructure:"runs"`
	Status     StatusConfig     `mapstructure:"status"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlerConfig governs traversal limits and pacing.
type CrawlerConfig struct {
	MaxPages     int          `mapstructure:"max_pages"`
	MaxReveals   int          `mapstructure:"max_reveals"`
	NoiseMarkers []string     `mapstructure:"noise_markers"`
	Pacing       PacingConfig `mapstructure:"pacing"`
}

// PacingConfig holds the random pause windows between navigation steps.
type PacingConfig struct {
	Entry        crawler.Window `mapstructure:"entry"`
	Category     crawler.Window `mapstructure:"category"`
	Item         crawler.Window `mapstructure:"item"`
	Detail       crawler.Window `mapstructure:"detail"`
	Hours        crawler.Window `mapstructure:"hours"`
	PageTurn     crawler.Window `mapstructure:"page_turn"`
	RevealBefore crawler.Window `mapstructure:"reveal_before"`
	RevealAfter  crawler.Window `mapstructure:"reveal_after"`
}

// BrowserConfig selects and tunes the page navigator.
type BrowserConfig struct {
	Driver     string        `mapstructure:"driver"`
	Headless   bool          `mapstructure:"headless"`
	UserAgent  string        `mapstructure:"user_agent"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
	Settle     time.Duration `mapstructure:"settle"`
	MaxQPS     float64       `mapstructure:"max_qps"`
}

// StoreConfig picks a backend for checkpoints or records.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// PubSubConfig holds the record fan-out target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ExportConfig names the GCS object the finished records are copied to.
type ExportConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Object    string `mapstructure:"object"`
}

// RunsConfig points at the Postgres table that keeps run history. An empty
// DSN disables it.
type RunsConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// StatusConfig controls the status HTTP server. An empty address disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Dir is the per-user configuration directory searched when no config file
// is given.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load builds a Config from disk/environment. An empty path searches for
// config.{yaml,json,toml} in the working directory and then in Dir.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		sources, err := catalog.DefaultSources(cfg.Profile)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources = sources
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", catalog.ProfileAttractions)
	v.SetDefault("crawler.max_pages", 5)
	v.SetDefault("crawler.max_reveals", 20)
	v.SetDefault("crawler.noise_markers", extract.DefaultNoiseMarkers)
	setWindow(v, "crawler.pacing.entry", 3*time.Second, 5*time.Second)
	setWindow(v, "crawler.pacing.category", 3*time.Second, 5*time.Second)
	setWindow(v, "crawler.pacing.item", 1500*time.Millisecond, 2500*time.Millisecond)
	setWindow(v, "crawler.pacing.detail", 1500*time.Millisecond, 2*time.Second)
	setWindow(v, "crawler.pacing.hours", 2*time.Second, 2*time.Second)
	setWindow(v, "crawler.pacing.page_turn", 5*time.Second, 7*time.Second)
	setWindow(v, "crawler.pacing.reveal_before", time.Second, 3*time.Second)
	setWindow(v, "crawler.pacing.reveal_after", 2*time.Second, 4*time.Second)
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout", 45*time.Second)
	v.SetDefault("browser.settle", 500*time.Millisecond)
	v.SetDefault("browser.max_qps", 0.5)
	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("checkpoint.path", "processed_attractions.json")
	v.SetDefault("checkpoint.dsn", "")
	v.SetDefault("checkpoint.table", "processed_items")
	v.SetDefault("records.backend", BackendFile)
	v.SetDefault("records.path", "attractions.json")
	v.SetDefault("records.dsn", "")
	v.SetDefault("records.table", "crawl_records")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.object", "")
	v.SetDefault("runs.dsn", "")
	v.SetDefault("runs.table", "crawl_runs")
	v.SetDefault("status.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

func setWindow(v *viper.Viper, key string, lo, hi time.Duration) {
	v.SetDefault(key+".min", lo)
	v.SetDefault(key+".max", hi)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Profile {
	case catalog.ProfileAttractions, catalog.ProfileTours:
	default:
		return fmt.Errorf("profile must be %q or %q", catalog.ProfileAttractions, catalog.ProfileTours)
	}
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Name) == "" || strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("sources[%d] needs a name and a url", i)
		}
		if len(src.Categories) == 0 {
			return fmt.Errorf("sources[%d] (%s) has no categories", i, src.Name)
		}
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.MaxReveals < 0 {
		return fmt.Errorf("crawler.max_reveals must be >= 0")
	}
	if err := c.Crawler.Pacing.validate(); err != nil {
		return err
	}
	switch c.Browser.Driver {
	case DriverChromedp, DriverStatic:
	default:
		return fmt.Errorf("browser.driver must be %q or %q", DriverChromedp, DriverStatic)
	}
	if c.Browser.MaxQPS < 0 {
		return fmt.Errorf("browser.max_qps must be >= 0")
	}
	if err := c.Checkpoint.validate("checkpoint", BackendFile, BackendSQLite, BackendPostgres, BackendMemory); err != nil {
		return err
	}
	if err := c.Records.validate("records", BackendFile, BackendPostgres, BackendMemory); err != nil {
		return err
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Export.GCSBucket != "" && c.Export.Object == "" {
		return fmt.Errorf("export.object must be set when export.gcs_bucket is set")
	}
	return nil
}

func (s StoreConfig) validate(section string, allowed ...string) error {
	known := false
	for _, b := range allowed {
		if s.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%s.backend must be one of %s", section, strings.Join(allowed, ", "))
	}
	switch s.Backend {
	case BackendFile, BackendSQLite:
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("%s.path must be set for the %s backend", section, s.Backend)
		}
	case BackendPostgres:
		if strings.TrimSpace(s.DSN) == "" {
			return fmt.Errorf("%s.dsn must be set for the postgres backend", section)
		}
	}
	return nil
}

func (p PacingConfig) validate() error {
	windows := map[string]crawler.Window{
		"entry":         p.Entry,
		"category":      p.Category,
		"item":          p.Item,
		"detail":        p.Detail,
		"hours":         p.Hours,
		"page_turn":     p.PageTurn,
		"reveal_before": p.RevealBefore,
		"reveal_after":  p.RevealAfter,
	}
	for name, w := range windows {
		if w.Min < 0 || w.Max < w.Min {
			return fmt.Errorf("crawler.pacing.%s must satisfy 0 <= min <= max", name)
		}
	}
	return nil
}
