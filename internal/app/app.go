// Package app builds the long-lived services of a crawl from configuration
// and owns their shutdown. It is the dependency container the CLI commands
// work through.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/attraction-crawler/internal/api"
	"github.com/JakeFAU/attraction-crawler/internal/catalog"
	filecheckpoint "github.com/JakeFAU/attraction-crawler/internal/checkpoint/file"
	memcheckpoint "github.com/JakeFAU/attraction-crawler/internal/checkpoint/memory"
	pgcheckpoint "github.com/JakeFAU/attraction-crawler/internal/checkpoint/postgres"
	sqlitecheckpoint "github.com/JakeFAU/attraction-crawler/internal/checkpoint/sqlite"
	"github.com/JakeFAU/attraction-crawler/internal/clock/system"
	"github.com/JakeFAU/attraction-crawler/internal/config"
	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/export"
	"github.com/JakeFAU/attraction-crawler/internal/export/gcs"
	"github.com/JakeFAU/attraction-crawler/internal/id/uuid"
	chromenav "github.com/JakeFAU/attraction-crawler/internal/navigator/chromedp"
	"github.com/JakeFAU/attraction-crawler/internal/navigator/static"
	"github.com/JakeFAU/attraction-crawler/internal/orchestrator"
	"github.com/JakeFAU/attraction-crawler/internal/paginate"
	"github.com/JakeFAU/attraction-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/attraction-crawler/internal/progress"
	"github.com/JakeFAU/attraction-crawler/internal/progress/sinks"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
	runspg "github.com/JakeFAU/attraction-crawler/internal/runs/postgres"
	pubsubpublisher "github.com/JakeFAU/attraction-crawler/internal/publisher/pubsub"
	filesink "github.com/JakeFAU/attraction-crawler/internal/sink/file"
	memsink "github.com/JakeFAU/attraction-crawler/internal/sink/memory"
	pgsink "github.com/JakeFAU/attraction-crawler/internal/sink/postgres"
)

// CheckpointStore is a checkpoint backend that can list what it committed.
type CheckpointStore interface {
	crawler.CheckpointStore
	Keys() []string
	Len() int
}

// RecordStore is a record backend that can list what it stored.
type RecordStore interface {
	crawler.RecordSink
	crawler.RecordReader
}

// Options override collaborators, mostly for tests.
type Options struct {
	// DryRun keeps checkpoints and records in memory and disables
	// publishing and export.
	DryRun bool
	// Source replaces the HTTP page source of the static driver.
	Source static.PageSource
	// Exporter replaces the GCS uploader.
	Exporter export.ObjectWriter
	// Runs replaces the Postgres run history.
	Runs  runs.Repository
	Pacer crawler.Pacer
	Clock crawler.Clock
	IDs   crawler.IDGenerator
}

// Result describes a finished crawl.
type Result struct {
	RunID     string
	Summary   orchestrator.Summary
	ExportURI string
}

// App holds the shared services of one process.
type App struct {
	cfg         config.Config
	opts        Options
	logger      *zap.Logger
	checkpoints CheckpointStore
	records     RecordStore
	publisher   crawler.Publisher
	runs        runs.Repository
	closers     []closer
}

type closer struct {
	name string
	fn   func() error
}

// OpenStores builds the checkpoint and record backends and loads the
// processed set. A corrupt checkpoint aborts startup.
func OpenStores(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	a := &App{cfg: cfg, opts: opts, logger: logger}
	if err := a.openCheckpoints(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRecords(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRuns(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if _, err := a.checkpoints.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return a, nil
}

// New builds every service a crawl needs.
func New(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*App, error) {
	a, err := OpenStores(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	if cfg.PubSub.Topic != "" && !opts.DryRun {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = pub
		a.onClose("pubsub", pub.Close)
	}
	return a, nil
}

// Checkpoints returns the checkpoint backend.
func (a *App) Checkpoints() CheckpointStore { return a.checkpoints }

// Records returns the record backend.
func (a *App) Records() RecordStore { return a.records }

// Runs returns the run history, or nil when it is not configured.
func (a *App) Runs() runs.Repository { return a.runs }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Crawl runs one crawl over the configured sources. The status server, when
// configured, is up for the duration of the run.
func (a *App) Crawl(ctx context.Context) (Result, error) {
	ids := a.opts.IDs
	if ids == nil {
		ids = uuid.NewUUIDGenerator("run-")
	}
	runID, err := ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	pacer := a.opts.Pacer
	if pacer == nil {
		pacer = crawler.NewRandomPacer()
	}

	nav, err := a.newNavigator()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := nav.Close(); cerr != nil {
			a.logger.Warn("navigator close failed", zap.Error(cerr))
		}
	}()

	tracker := progress.NewTracker()
	progressSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), tracker}
	if a.runs != nil {
		progressSinks = append(progressSinks, sinks.NewStoreSink(a.runs, a.logger.Named("runs")))
	}
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")}, progressSinks...)

	stopStatus := a.startStatus(ctx, tracker)

	pacing := a.cfg.Crawler.Pacing
	orch := orchestrator.New(
		orchestrator.Config{
			RunID:   runID,
			Sources: a.cfg.Sources,
			Pacing: orchestrator.Pacing{
				Entry:    pacing.Entry,
				Category: pacing.Category,
				Item:     pacing.Item,
				Detail:   pacing.Detail,
			},
			Topic: a.topic(),
		},
		a.newProfile(pacer),
		nav,
		a.checkpoints,
		a.records,
		a.publisher,
		pacer,
		a.opts.Clock,
		hub,
		a.logger.Named("orchestrator"),
	)
	summary, runErr := orch.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	stopStatus()

	result := Result{RunID: runID, Summary: summary}
	if runErr != nil {
		return result, fmt.Errorf("crawl %s: %w", runID, runErr)
	}
	uri, err := a.export(ctx)
	if err != nil {
		return result, err
	}
	result.ExportURI = uri
	return result, nil
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) topic() string {
	if a.publisher == nil {
		return ""
	}
	return a.cfg.PubSub.Topic
}

func (a *App) openCheckpoints(ctx context.Context) error {
	cfg := a.cfg.Checkpoint
	logger := a.logger.Named("checkpoint")
	if a.opts.DryRun {
		a.checkpoints = memcheckpoint.New()
		return nil
	}
	switch cfg.Backend {
	case config.BackendFile:
		store, err := filecheckpoint.New(filecheckpoint.Config{Path: cfg.Path}, logger)
		if err != nil {
			return fmt.Errorf("init file checkpoint: %w", err)
		}
		a.checkpoints = store
	case config.BackendSQLite:
		store, err := sqlitecheckpoint.Open(ctx, sqlitecheckpoint.Config{Path: cfg.Path, EnableWAL: true}, a.opts.Clock, logger)
		if err != nil {
			return fmt.Errorf("init sqlite checkpoint: %w", err)
		}
		a.checkpoints = store
		a.onClose("sqlite checkpoint", store.Close)
	case config.BackendPostgres:
		store, err := pgcheckpoint.New(ctx, pgcheckpoint.Config{DSN: cfg.DSN, Table: cfg.Table}, a.opts.Clock, logger)
		if err != nil {
			return fmt.Errorf("init postgres checkpoint: %w", err)
		}
		a.checkpoints = store
		a.onClose("postgres checkpoint", func() error { store.Close(); return nil })
	case config.BackendMemory:
		a.checkpoints = memcheckpoint.New()
	default:
		return fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
	return nil
}

func (a *App) openRecords(ctx context.Context) error {
	cfg := a.cfg.Records
	if a.opts.DryRun {
		a.records = memsink.New()
		return nil
	}
	switch cfg.Backend {
	case config.BackendFile:
		sink, err := filesink.New(filesink.Config{Path: cfg.Path})
		if err != nil {
			return fmt.Errorf("init file records: %w", err)
		}
		a.records = sink
	case config.BackendPostgres:
		sink, err := pgsink.New(ctx, pgsink.Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return fmt.Errorf("init postgres records: %w", err)
		}
		a.records = sink
		a.onClose("postgres records", func() error { sink.Close(); return nil })
	case config.BackendMemory:
		a.records = memsink.New()
	default:
		return fmt.Errorf("unknown records backend %q", cfg.Backend)
	}
	return nil
}

func (a *App) openRuns(ctx context.Context) error {
	if a.opts.DryRun {
		return nil
	}
	if a.opts.Runs != nil {
		a.runs = a.opts.Runs
		return nil
	}
	cfg := a.cfg.Runs
	if cfg.DSN == "" {
		return nil
	}
	store, err := runspg.New(ctx, runspg.Config{DSN: cfg.DSN, Table: cfg.Table})
	if err != nil {
		return fmt.Errorf("init run history: %w", err)
	}
	a.runs = store
	a.onClose("run history", func() error { store.Close(); return nil })
	return nil
}

func (a *App) newNavigator() (crawler.Navigator, error) {
	b := a.cfg.Browser
	logger := a.logger.Named("navigator")
	switch b.Driver {
	case config.DriverStatic:
		source := a.opts.Source
		if source == nil {
			source = static.NewCollySource(static.CollyConfig{
				UserAgent: b.UserAgent,
				Timeout:   b.NavTimeout,
				Limiter:   ratelimit.New(ratelimit.Config{RPS: b.MaxQPS}),
			})
		}
		return static.New(source, logger), nil
	case config.DriverChromedp:
		nav, err := chromenav.New(chromenav.Config{
			Headless:          b.Headless,
			UserAgent:         b.UserAgent,
			NavigationTimeout: b.NavTimeout,
			SettleDelay:       b.Settle,
			DomainQPS:         b.MaxQPS,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init chromedp navigator: %w", err)
		}
		return nav, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", b.Driver)
	}
}

func (a *App) newProfile(pacer crawler.Pacer) catalog.Profile {
	c := a.cfg.Crawler
	pagination := paginate.Config{
		MaxPages:     c.MaxPages,
		MaxReveals:   c.MaxReveals,
		PageTurn:     c.Pacing.PageTurn,
		RevealBefore: c.Pacing.RevealBefore,
		RevealAfter:  c.Pacing.RevealAfter,
	}
	logger := a.logger.Named("catalog")
	if a.cfg.Profile == catalog.ProfileTours {
		return catalog.NewTours(catalog.TourOptions{Logger: logger, Pagination: pagination})
	}
	return catalog.NewAttractions(catalog.AttractionOptions{
		Logger:       logger,
		Pacer:        pacer,
		RevealPause:  c.Pacing.Hours,
		NoiseMarkers: c.NoiseMarkers,
		Pagination:   pagination,
	})
}

// startStatus serves the status API until the returned stop func is called.
func (a *App) startStatus(ctx context.Context, tracker *progress.Tracker) func() {
	addr := a.cfg.Status.Addr
	if addr == "" {
		return func() {}
	}
	deps := api.Deps{
		Progress:    tracker,
		Checkpoints: a.checkpoints,
		Records:     a.records,
	}
	if a.runs != nil {
		deps.Runs = a.runs
	}
	srv := api.NewServer(deps, a.logger.Named("api"))
	srvCtx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		return srv.ListenAndServe(srvCtx, addr)
	})
	return func() {
		cancel()
		if err := g.Wait(); err != nil {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}
}

var errExportDisabled = errors.New("export disabled")

func (a *App) export(ctx context.Context) (string, error) {
	w, err := a.exporter(ctx)
	if errors.Is(err, errExportDisabled) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	uri, err := export.Records(ctx, a.records, w, a.cfg.Export.Object, a.logger.Named("export"))
	if err != nil {
		return "", fmt.Errorf("export records: %w", err)
	}
	return uri, nil
}

func (a *App) exporter(ctx context.Context) (export.ObjectWriter, error) {
	if a.opts.DryRun || a.cfg.Export.GCSBucket == "" {
		return nil, errExportDisabled
	}
	if a.opts.Exporter != nil {
		return a.opts.Exporter, nil
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	a.onClose("storage", client.Close)
	up, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.GCSBucket})
	if err != nil {
		return nil, fmt.Errorf("init gcs uploader: %w", err)
	}
	return up, nil
}
