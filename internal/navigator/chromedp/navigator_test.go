package chromenav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/attraction-crawler/internal/policy/ratelimit"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{SettleDelay: -time.Second}.withDefaults()
	assert.Equal(t, 45*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 15*time.Second, cfg.ActionTimeout)
	assert.Zero(t, cfg.SettleDelay)

	cfg = Config{NavigationTimeout: time.Second, ActionTimeout: 2 * time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.ActionTimeout)
}

func TestObjectIDRejectsForeignElements(t *testing.T) {
	t.Parallel()

	_, err := objectID("plain string")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errForeignElement))

	_, err = objectID(runtime.RemoteObjectID(""))
	assert.ErrorIs(t, err, errForeignElement)

	id, err := objectID(runtime.RemoteObjectID("42.1"))
	require.NoError(t, err)
	assert.Equal(t, runtime.RemoteObjectID("42.1"), id)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to propagate")
	}
}

func TestForwardCancelStop(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	assert.NoError(t, child.Err())
}

func TestWaitDomainBudget(t *testing.T) {
	t.Parallel()

	n := &Navigator{browser: &browser{limiter: ratelimit.New(ratelimit.Config{RPS: 1000})}}
	require.NoError(t, n.waitDomainBudget(context.Background(), "https://example.com/a"))
	require.NoError(t, n.waitDomainBudget(context.Background(), "https://example.com/b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := &Navigator{browser: &browser{limiter: ratelimit.New(ratelimit.Config{RPS: 0.001})}}
	require.NoError(t, slow.waitDomainBudget(context.Background(), "https://example.com/"))
	assert.Error(t, slow.waitDomainBudget(ctx, "https://example.com/"))

	disabled := &Navigator{browser: &browser{}}
	assert.NoError(t, disabled.waitDomainBudget(ctx, "https://example.com/"))
}

func TestReleaseHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := &Navigator{tabCtx: context.Background()}
	err := n.Release(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := &Navigator{tabCtx: context.Background()}
	err := n.run(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
