package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by a Navigator for a capability its backend lacks.
var ErrUnsupported = errors.New("navigator: operation not supported")

// Element is an opaque handle to a node of a rendered document. Only the
// Navigator that returned it can interpret it, and handles may go stale after
// navigation.
type Element interface{}

// Navigator is the page navigation capability the crawl consumes. Missing
// elements are reported as empty results, not errors.
type Navigator interface {
	Open(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Query(ctx context.Context, selector string) ([]Element, error)
	QueryWithin(ctx context.Context, parent Element, selector string) ([]Element, error)
	Closest(ctx context.Context, el Element, selector string) (Element, bool, error)
	Text(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	Visible(ctx context.Context, el Element) (bool, error)
	ScrollIntoView(ctx context.Context, el Element) error
	Click(ctx context.Context, el Element) error
	WaitSettle(ctx context.Context) error
	Evaluate(ctx context.Context, expression string, out any) error
	// NewTab opens an independent view in the same browser session.
	NewTab(ctx context.Context) (Navigator, error)
	Close() error
}

// Releaser is implemented by navigators whose element handles hold remote
// resources. Release invalidates every element returned so far.
type Releaser interface {
	Release(ctx context.Context) error
}

// CheckpointStore persists the ProcessedSet across process restarts.
type CheckpointStore interface {
	// Load reads durable state. A missing backing store yields an empty set.
	Load(ctx context.Context) (*ProcessedSet, error)
	Contains(key ItemKey) bool
	// Commit durably persists key before marking it processed in memory.
	Commit(ctx context.Context, key ItemKey) error
}

// RecordSink durably persists each extracted record before returning.
type RecordSink interface {
	Append(ctx context.Context, record Record) error
}

// RecordReader lists the records a sink has stored.
type RecordReader interface {
	Records(ctx context.Context) ([]Record, error)
}

// Publisher pushes committed records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer inserts deliberate delays between navigation actions.
type Pacer interface {
	Pause(ctx context.Context, window Window)
}

// Window bounds a random pause.
type Window struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
