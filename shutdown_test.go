package outbox

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShutdownCoordinator(t *testing.T) {
	t.Run("first signal cancels, second forces", func(t *testing.T) {
		signals := make(chan os.Signal, 2)
		forced := make(chan struct{})
		c := newShutdownCoordinator(signals, func() { close(forced) }, zap.NewNop())
		defer c.Stop()

		ctx := c.Watch(context.Background())
		require.NoError(t, ctx.Err())

		signals <- syscall.SIGTERM
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("context not cancelled on first signal")
		}

		select {
		case <-forced:
			t.Fatal("forced exit on first signal")
		default:
		}

		signals <- syscall.SIGINT
		select {
		case <-forced:
		case <-time.After(time.Second):
			t.Fatal("second signal did not force exit")
		}
	})

	t.Run("stop releases the watcher", func(t *testing.T) {
		c := newShutdownCoordinator(make(chan os.Signal, 2), func() { t.Error("unexpected force") }, zap.NewNop())
		ctx := c.Watch(context.Background())

		c.Stop()
		c.Stop()
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("parent cancellation propagates", func(t *testing.T) {
		c := newShutdownCoordinator(make(chan os.Signal, 2), func() { t.Error("unexpected force") }, zap.NewNop())
		defer c.Stop()

		parent, cancel := context.WithCancel(context.Background())
		ctx := c.Watch(parent)
		cancel()

		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	})
}
