package crawler

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// RandomPacer sleeps for a uniformly random duration inside a Window.
type RandomPacer struct{}

// NewRandomPacer returns a pacer backed by crypto/rand.
func NewRandomPacer() *RandomPacer {
	return &RandomPacer{}
}

// Pause blocks for a random delay in [window.Min, window.Max] or until ctx ends.
func (p *RandomPacer) Pause(ctx context.Context, window Window) {
	delay := window.Min + randomJitter(window.Max-window.Min)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit) + 1)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// NoPacer never waits. Tests and dry runs use it.
type NoPacer struct{}

// Pause returns immediately.
func (NoPacer) Pause(context.Context, Window) {}
