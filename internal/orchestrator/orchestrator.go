// Package orchestrator drives a crawl across sources and categories. It
// filters already processed items, extracts the rest and records each one
// durably before marking it processed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/catalog"
	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/metrics"
	"github.com/JakeFAU/attraction-crawler/internal/paginate"
	"github.com/JakeFAU/attraction-crawler/internal/progress"
)

// ErrNoDetailView is returned when an item's own page cannot be reached.
var ErrNoDetailView = errors.New("item has no detail view")

var errListShrank = errors.New("card list shrank")

// Pacing holds the random pauses inserted between navigation steps.
type Pacing struct {
	Entry    crawler.Window
	Category crawler.Window
	Item     crawler.Window
	Detail   crawler.Window
}

// Config controls a crawl run.
type Config struct {
	RunID   string
	Sources []catalog.Source
	Pacing  Pacing
	// Topic receives every committed record. Empty disables publishing.
	Topic string
}

// Summary counts the outcome of a run.
type Summary struct {
	Extracted         int `json:"extracted"`
	Skipped           int `json:"skipped"`
	Failed            int `json:"failed"`
	Pages             int `json:"pages"`
	Reveals           int `json:"reveals"`
	Categories        int `json:"categories"`
	CategoriesSkipped int `json:"categories_skipped"`
}

// Orchestrator runs one crawl at a time.
type Orchestrator struct {
	cfg       Config
	profile   catalog.Profile
	nav       crawler.Navigator
	store     crawler.CheckpointStore
	sink      crawler.RecordSink
	publisher crawler.Publisher
	pacer     crawler.Pacer
	clock     crawler.Clock
	events    progress.Emitter
	pager     *paginate.Controller
	logger    *zap.Logger

	mu      sync.Mutex
	summary Summary
}

// New constructs an Orchestrator. publisher, events and clock may be nil.
func New(
	cfg Config,
	profile catalog.Profile,
	nav crawler.Navigator,
	store crawler.CheckpointStore,
	sink crawler.RecordSink,
	publisher crawler.Publisher,
	pacer crawler.Pacer,
	clock crawler.Clock,
	events progress.Emitter,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pacer == nil {
		pacer = crawler.NoPacer{}
	}
	if events == nil {
		events = progress.Discard
	}
	return &Orchestrator{
		cfg:       cfg,
		profile:   profile,
		nav:       nav,
		store:     store,
		sink:      sink,
		publisher: publisher,
		pacer:     pacer,
		clock:     clock,
		events:    events,
		pager:     paginate.New(profile.Pagination(), pacer, logger.Named("paginate")),
		logger:    logger,
	}
}

// Run visits every configured (source, category) pair in order. Item,
// category and pagination failures are logged and skipped; only context
// cancellation ends the run early and is returned.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	o.mu.Lock()
	o.summary = Summary{}
	o.mu.Unlock()

	o.emit(progress.Event{Stage: progress.StageRunStart})
	o.logger.Info("crawl started",
		zap.String("run_id", o.cfg.RunID),
		zap.String("profile", o.profile.Name()),
		zap.Int("sources", len(o.cfg.Sources)),
	)

	for _, source := range o.cfg.Sources {
		for _, category := range source.Categories {
			if err := ctx.Err(); err != nil {
				return o.finish(err)
			}
			if err := o.runCategory(ctx, source, category); err != nil {
				return o.finish(err)
			}
		}
	}
	return o.finish(nil)
}

// finish emits the run's final event. A non-nil err marks the run as
// interrupted.
func (o *Orchestrator) finish(err error) (Summary, error) {
	summary := o.Summary()
	evt := progress.Event{Stage: progress.StageRunDone}
	fields := []zap.Field{
		zap.String("run_id", o.cfg.RunID),
		zap.Int("extracted", summary.Extracted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("pages", summary.Pages),
	}
	if err != nil {
		evt.Note = "interrupted: " + err.Error()
		o.emit(evt)
		o.logger.Warn("crawl interrupted", append(fields, zap.Error(err))...)
		return summary, err
	}
	o.emit(evt)
	o.logger.Info("crawl finished", fields...)
	return summary, nil
}

// Summary returns the counters of the current or last run.
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

func (o *Orchestrator) runCategory(ctx context.Context, source catalog.Source, category string) error {
	logger := o.logger.With(zap.String("source", source.Name), zap.String("category", category))

	if err := o.enterCategory(ctx, source, category); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("skipping category", zap.Error(err))
		metrics.ObserveCategory(source.Name, "skipped")
		o.count(func(s *Summary) { s.CategoriesSkipped++ })
		o.emit(progress.Event{Stage: progress.StageCategorySkipped, Source: source.Name, Category: category, Note: err.Error()})
		return nil
	}
	metrics.ObserveCategory(source.Name, "entered")
	o.count(func(s *Summary) { s.Categories++ })
	o.emit(progress.Event{Stage: progress.StageCategoryStart, Source: source.Name, Category: category})
	logger.Info("category entered")

	stats, err := o.pager.Run(ctx, o.nav, source.Name, category, o.visitPage)
	o.count(func(s *Summary) {
		s.Pages += stats.Pages
		s.Reveals += stats.Reveals
	})
	if err != nil {
		return err
	}
	logger.Info("category exhausted", zap.Int("pages", stats.Pages), zap.Int("reveals", stats.Reveals))
	return nil
}

func (o *Orchestrator) enterCategory(ctx context.Context, source catalog.Source, category string) error {
	if err := o.nav.Open(ctx, source.URL); err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	o.pacer.Pause(ctx, o.cfg.Pacing.Entry)
	if err := o.profile.SelectCategory(ctx, o.nav, category); err != nil {
		return err
	}
	o.pacer.Pause(ctx, o.cfg.Pacing.Category)
	return nil
}

func (o *Orchestrator) visitPage(ctx context.Context, cursor crawler.TraversalCursor) error {
	// Handles from earlier pages and per-item re-queries are stale by now.
	if r, ok := o.nav.(crawler.Releaser); ok {
		if err := r.Release(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Debug("release elements failed", zap.Error(err))
		}
	}
	cards, err := o.profile.Cards(ctx, o.nav)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}
	o.emit(progress.Event{Stage: progress.StagePage, Source: cursor.Source, Category: cursor.Category, Page: cursor.Page})
	o.logger.Debug("page listed",
		zap.String("source", cursor.Source),
		zap.String("category", cursor.Category),
		zap.Int("page", cursor.Page),
		zap.Int("cards", len(cards)),
	)

	page := o.profile.BeginPage()
	for i := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.pacer.Pause(ctx, o.cfg.Pacing.Item)
		err := o.processItem(ctx, page, cursor.AtItem(i))
		switch {
		case errors.Is(err, errListShrank):
			o.logger.Warn("card list shrank during page",
				zap.String("source", cursor.Source),
				zap.String("category", cursor.Category),
				zap.Int("page", cursor.Page),
				zap.Int("index", i),
			)
			return nil
		case err != nil:
			return err
		}
	}
	return nil
}

// processItem handles the card at cursor.Item. Item-level failures are
// logged and swallowed; context errors and errListShrank are returned.
func (o *Orchestrator) processItem(ctx context.Context, page catalog.Page, cursor crawler.TraversalCursor) error {
	// Handles go stale after the detail tab and reveals; query afresh.
	cards, err := o.profile.Cards(ctx, o.nav)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.fail(cursor, "", fmt.Errorf("list cards: %w", err))
		return nil
	}
	if cursor.Item >= len(cards) {
		return errListShrank
	}

	card, err := o.profile.Describe(ctx, o.nav, cards[cursor.Item])
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if skipErr := page.Skip(ctx, o.nav); skipErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		o.fail(cursor, card.Name, fmt.Errorf("describe card: %w", err))
		return nil
	}

	key := crawler.ItemKey{Source: cursor.Source, Category: cursor.Category, Name: card.Name}
	if o.store.Contains(key) {
		if err := page.Skip(ctx, o.nav); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		o.skip(cursor, card.Name)
		return nil
	}

	record := crawler.Record{
		Name:      card.Name,
		City:      cursor.Source,
		Category:  cursor.Category,
		ScrapedAt: o.now(),
	}
	if err := page.Preview(ctx, o.nav, card, &record); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.fail(cursor, card.Name, fmt.Errorf("preview card: %w", err))
		return nil
	}
	if err := o.completeDetail(ctx, card, &record); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.fail(cursor, card.Name, err)
		return nil
	}
	if err := o.persist(ctx, key, record); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.fail(cursor, card.Name, err)
		return nil
	}

	o.count(func(s *Summary) { s.Extracted++ })
	metrics.ObserveItem(cursor.Source, cursor.Category, metrics.OutcomeExtracted)
	o.emit(progress.Event{
		Stage:    progress.StageItemExtracted,
		Source:   cursor.Source,
		Category: cursor.Category,
		Item:     card.Name,
		Page:     cursor.Page,
		Index:    cursor.Item,
	})
	o.logger.Info("item saved",
		zap.String("source", cursor.Source),
		zap.String("category", cursor.Category),
		zap.String("item", card.Name),
		zap.Int("page", cursor.Page),
		zap.Int("index", cursor.Item),
	)
	o.publish(ctx, record)
	return nil
}

// completeDetail opens the item's own page in a new tab and reads its fields.
func (o *Orchestrator) completeDetail(ctx context.Context, card catalog.Card, record *crawler.Record) error {
	if card.DetailURL == "" {
		return ErrNoDetailView
	}
	tab, err := o.nav.NewTab(ctx)
	if err != nil {
		return fmt.Errorf("%w: new tab: %w", ErrNoDetailView, err)
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			o.logger.Debug("close detail tab", zap.Error(cerr))
		}
	}()
	if err := tab.Open(ctx, card.DetailURL); err != nil {
		return fmt.Errorf("%w: %w", ErrNoDetailView, err)
	}
	o.pacer.Pause(ctx, o.cfg.Pacing.Detail)
	if err := o.profile.Detail(ctx, tab, card, record); err != nil {
		return fmt.Errorf("read detail view: %w", err)
	}
	return nil
}

// persist appends the record and only then commits its key. A crash between
// the two leaves a duplicate record on the next run, never a lost one.
func (o *Orchestrator) persist(ctx context.Context, key crawler.ItemKey, record crawler.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	start := time.Now()
	if err := o.sink.Append(ctx, record); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	metrics.ObserveStore("append", time.Since(start))

	start = time.Now()
	if err := o.store.Commit(ctx, key); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	metrics.ObserveStore("commit", time.Since(start))
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, record crawler.Record) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, record)
	if err != nil {
		metrics.ObservePublish("error")
		o.logger.Warn("publish record failed",
			zap.String("source", record.City),
			zap.String("category", record.Category),
			zap.String("item", record.Name),
			zap.Error(err),
		)
		return
	}
	metrics.ObservePublish("ok")
	o.logger.Debug("record published", zap.String("item", record.Name), zap.String("message_id", id))
}

func (o *Orchestrator) skip(cursor crawler.TraversalCursor, name string) {
	o.count(func(s *Summary) { s.Skipped++ })
	metrics.ObserveItem(cursor.Source, cursor.Category, metrics.OutcomeSkipped)
	o.emit(progress.Event{
		Stage:    progress.StageItemSkipped,
		Source:   cursor.Source,
		Category: cursor.Category,
		Item:     name,
		Page:     cursor.Page,
		Index:    cursor.Item,
	})
	o.logger.Debug("skipping already processed item",
		zap.String("source", cursor.Source),
		zap.String("category", cursor.Category),
		zap.String("item", name),
	)
}

func (o *Orchestrator) fail(cursor crawler.TraversalCursor, name string, err error) {
	o.count(func(s *Summary) { s.Failed++ })
	metrics.ObserveItem(cursor.Source, cursor.Category, metrics.OutcomeFailed)
	o.emit(progress.Event{
		Stage:    progress.StageItemFailed,
		Source:   cursor.Source,
		Category: cursor.Category,
		Item:     name,
		Page:     cursor.Page,
		Index:    cursor.Item,
		Note:     err.Error(),
	})
	o.logger.Warn("item failed",
		zap.String("source", cursor.Source),
		zap.String("category", cursor.Category),
		zap.String("item", name),
		zap.Int("page", cursor.Page),
		zap.Int("index", cursor.Item),
		zap.Error(err),
	)
}

func (o *Orchestrator) count(fn func(*Summary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.summary)
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.RunID = o.cfg.RunID
	evt.TS = o.now()
	o.events.Emit(evt)
}

func (o *Orchestrator) now() time.Time {
	if o.clock == nil {
		return time.Now().UTC()
	}
	return o.clock.Now()
}
