package crawler

import (
	"context"
	"testing"
	"time"
)

func TestRandomJitterBounds(t *testing.T) {
	t.Parallel()

	if got := randomJitter(0); got != 0 {
		t.Fatalf("expected zero jitter for zero limit, got %v", got)
	}
	for i := 0; i < 50; i++ {
		got := randomJitter(10 * time.Millisecond)
		if got < 0 || got > 10*time.Millisecond {
			t.Fatalf("jitter %v outside [0, 10ms]", got)
		}
	}
}

func TestRandomPacerHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	NewRandomPacer().Pause(ctx, Window{Min: time.Minute, Max: time.Minute})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected canceled pause to return immediately, took %v", elapsed)
	}
}

func TestRandomPacerZeroWindow(t *testing.T) {
	t.Parallel()

	start := time.Now()
	NewRandomPacer().Pause(context.Background(), Window{})
	NoPacer{}.Pause(context.Background(), Window{Min: time.Hour, Max: time.Hour})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected zero window to skip sleeping, took %v", elapsed)
	}
}
