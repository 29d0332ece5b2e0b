package outbox

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// ShutdownCoordinator turns termination signals into cancellation of the poll loop.
// The first signal cancels the context returned by Watch, so no new batch is
// claimed while the batch in flight finishes. A second signal calls the force
// hook; records still leased are then recovered through lease expiry.
type ShutdownCoordinator struct {
	signals chan os.Signal
	force   func()
	logger  *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
}

func NewShutdownCoordinator(logger *zap.Logger) *ShutdownCoordinator {
	c := newShutdownCoordinator(make(chan os.Signal, 2), func() { os.Exit(1) }, logger)
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
	return c
}

func newShutdownCoordinator(signals chan os.Signal, force func(), logger *zap.Logger) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		signals: signals,
		force:   force,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Watch returns a context cancelled on the first signal. Only the poll loop should consume it.
func (c *ShutdownCoordinator) Watch(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		defer cancel()

		select {
		case sig := <-c.signals:
			c.logger.Info("received signal, finishing in-flight batch before exit", zap.Stringer("signal", sig))
			cancel()
		case <-c.done:
			return
		case <-parent.Done():
			return
		}

		select {
		case sig := <-c.signals:
			c.logger.Warn("received second signal, forcing exit; leased records recover after lease expiry", zap.Stringer("signal", sig))
			c.force()
		case <-c.done:
		}
	}()

	return ctx
}

// Stop unregisters signal delivery and releases the watcher.
func (c *ShutdownCoordinator) Stop() {
	c.stopOnce.Do(func() {
		signal.Stop(c.signals)
		close(c.done)
	})
}
