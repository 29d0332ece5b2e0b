package outbox_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	outbox "github.com/TimKotowski/pg-outbox-relay"
	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
	"github.com/TimKotowski/pg-outbox-relay/testHelper/memstore"
)

var _ outbox.JobHandler = &countingHandler{}

type countingHandler struct {
	name     string
	runs     atomic.Int64
	schedule string
	onRun    func()
}

func (h *countingHandler) PeriodicSchedule() string {
	if h.schedule == "" {
		return "* * * * * *"
	}
	return h.schedule
}

func (h *countingHandler) Name() string {
	return h.name
}

func (h *countingHandler) Handle(context.Context) error {
	h.runs.Add(1)
	if h.onRun != nil {
		h.onRun()
	}
	return nil
}

func waitForTimer(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestBackgroundJobProcessor(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 4, 0, 0, time.UTC)

	t.Run("runs a job on its schedule", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(start)
		store := memstore.New(clock)
		bg := outbox.NewBackgroundJobProcessor(outbox.NewConfig(), store, clock, zap.NewNop())
		defer bg.Close()

		handler := &countingHandler{name: "every second"}
		bg.Register(handler)
		bg.Start()

		waitForTimer(t, clock)
		assert.Zero(t, handler.runs.Load())
		clock.Advance(time.Second)

		assert.Eventually(t, func() bool {
			return handler.runs.Load() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("fires every job that is due", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(start)
		store := memstore.New(clock)
		bg := outbox.NewBackgroundJobProcessor(outbox.NewConfig(), store, clock, zap.NewNop())
		defer bg.Close()

		first := &countingHandler{name: "first"}
		second := &countingHandler{name: "second"}
		hourly := &countingHandler{name: "hourly", schedule: "@hourly"}
		bg.Register(first)
		bg.Register(second)
		bg.Register(hourly)
		bg.Start()

		waitForTimer(t, clock)
		clock.Advance(time.Second)

		assert.Eventually(t, func() bool {
			return first.runs.Load() == 1 && second.runs.Load() == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Zero(t, hourly.runs.Load())
	})

	t.Run("built-in jobs report stalled and failed records", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(start)
		store := memstore.New(clock)
		core, logs := observer.New(zapcore.DebugLevel)

		stalled := &outboxdb.Record{TargetEntity: "res.partner", Operation: outboxdb.OperationUpsert, IdempotencyKey: "stalled"}
		failed := &outboxdb.Record{TargetEntity: "res.partner", Operation: outboxdb.OperationUpsert, IdempotencyKey: "failed"}
		_, err := store.Insert(context.Background(), nil, stalled, failed)
		require.NoError(t, err)
		store.Update(stalled.ID, func(r *outboxdb.Record) {
			owner := "worker-gone"
			expired := start.Add(-time.Minute)
			r.Status = outboxdb.StatusProcessing
			r.LeaseOwner = &owner
			r.LeaseExpiresAt = &expired
		})
		store.Update(failed.ID, func(r *outboxdb.Record) {
			r.Status = outboxdb.StatusFailed
		})

		bg := outbox.NewBackgroundJobProcessor(outbox.NewConfig(), store, clock, zap.New(core))
		defer bg.Close()
		bg.SetUp()
		bg.Start()

		// Every built-in job is due at 00:05.
		waitForTimer(t, clock)
		clock.Advance(time.Minute)

		assert.Eventually(t, func() bool {
			return logs.FilterMessage("records with expired leases waiting to be reclaimed").Len() == 1 &&
				logs.FilterMessage("failed records need operator attention").Len() == 1
		}, 2*time.Second, 10*time.Millisecond)

		entry := logs.FilterMessage("records with expired leases waiting to be reclaimed").All()[0]
		assert.Equal(t, "maintenance", entry.LoggerName)
		assert.EqualValues(t, 1, entry.ContextMap()["count"])
		assert.Zero(t, logs.FilterMessage("failed to execute maintenance job").Len())
	})

	t.Run("register after start is ignored", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(start)
		core, logs := observer.New(zapcore.WarnLevel)
		bg := outbox.NewBackgroundJobProcessor(outbox.NewConfig(), memstore.New(clock), clock, zap.New(core))

		bg.Register(&countingHandler{name: "early"})
		bg.Start()
		late := &countingHandler{name: "late"}
		bg.Register(late)

		waitForTimer(t, clock)
		clock.Advance(time.Second)
		bg.Close()
		bg.Close()

		assert.Zero(t, late.runs.Load())
		assert.Equal(t, 1, logs.FilterMessage("job registered after start, ignoring").Len())
	})

	t.Run("close waits for running jobs", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(start)
		bg := outbox.NewBackgroundJobProcessor(outbox.NewConfig(), memstore.New(clock), clock, zap.NewNop())

		running := make(chan struct{})
		release := make(chan struct{})
		var finished atomic.Bool
		handler := &countingHandler{name: "slow", onRun: func() {
			close(running)
			<-release
			finished.Store(true)
		}}
		bg.Register(handler)
		bg.Start()

		waitForTimer(t, clock)
		clock.Advance(time.Second)
		<-running

		closed := make(chan struct{})
		go func() {
			bg.Close()
			close(closed)
		}()

		select {
		case <-closed:
			t.Fatal("close returned while a job was running")
		case <-time.After(50 * time.Millisecond):
		}
		close(release)
		<-closed
		assert.True(t, finished.Load())
	})
}
