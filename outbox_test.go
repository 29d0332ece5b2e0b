package outbox_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	outbox "github.com/TimKotowski/pg-outbox-relay"
	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
	"github.com/TimKotowski/pg-outbox-relay/testHelper"
	"github.com/TimKotowski/pg-outbox-relay/testHelper/postgres"
)

func TestIdempotencyKey(t *testing.T) {
	entry := outbox.Entry{
		TargetEntity:  "res.partner",
		Operation:     outbox.OperationUpsert,
		Payload:       outbox.Payload{"name": "Acme", "email": "ops@acme.test"},
		SourceVersion: "2025-06-01T09:00:00Z",
	}

	key, err := outbox.IdempotencyKey(entry)
	require.NoError(t, err)
	assert.Len(t, key, 64)

	t.Run("independent of payload key order", func(t *testing.T) {
		reordered := entry
		reordered.Payload = outbox.Payload{"email": "ops@acme.test", "name": "Acme"}
		other, err := outbox.IdempotencyKey(reordered)
		require.NoError(t, err)
		assert.Equal(t, key, other)
	})

	t.Run("changes with the source version", func(t *testing.T) {
		next := entry
		next.SourceVersion = "2025-06-01T09:05:00Z"
		other, err := outbox.IdempotencyKey(next)
		require.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("changes with the operation", func(t *testing.T) {
		del := entry
		del.Operation = outbox.OperationDelete
		other, err := outbox.IdempotencyKey(del)
		require.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("unencodable payload", func(t *testing.T) {
		bad := entry
		bad.Payload = outbox.Payload{"ch": make(chan int)}
		_, err := outbox.IdempotencyKey(bad)
		assert.Error(t, err)
	})
}

func truncateOutbox(t *testing.T, db *bun.DB) {
	t.Helper()
	_, err := db.NewTruncateTable().Model((*outboxdb.Record)(nil)).Exec(context.Background())
	require.NoError(t, err)
}

func TestOutboxPostgres(t *testing.T) {
	pool := postgres.NewPool(t)
	resource := postgres.SetUp(pool, t)
	ctx := context.Background()

	newOutbox := func(opts ...outbox.ConfigFunc) *outbox.Outbox {
		return outbox.New(resource.DB, outbox.NewConfig(opts...), clockwork.NewRealClock(), zap.NewNop())
	}

	t.Run("migrate is idempotent", func(t *testing.T) {
		ob := newOutbox()
		require.NoError(t, ob.Migrate(ctx))
		require.NoError(t, ob.Migrate(ctx))
	})

	t.Run("enqueue skips entries already queued", func(t *testing.T) {
		truncateOutbox(t, resource.DB)
		ob := newOutbox()
		entries := []outbox.Entry{
			{TargetEntity: "res.partner", Operation: outbox.OperationUpsert, Payload: outbox.Payload{"name": "Acme"}, SourceVersion: "1"},
			{TargetEntity: "res.partner", Operation: outbox.OperationUpsert, Payload: outbox.Payload{"name": "Globex"}, SourceVersion: "1"},
		}

		inserted, err := ob.EnqueueBatchMessages(ctx, entries...)
		require.NoError(t, err)
		assert.Equal(t, 2, inserted)

		inserted, err = ob.EnqueueBatchMessages(ctx, entries...)
		require.NoError(t, err)
		assert.Zero(t, inserted)

		stats, err := ob.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats[outbox.StatusQueued])
	})

	t.Run("invalid entry rolls back the batch", func(t *testing.T) {
		truncateOutbox(t, resource.DB)
		ob := newOutbox()

		_, err := ob.EnqueueBatchMessages(ctx,
			outbox.Entry{TargetEntity: "res.partner", Operation: outbox.OperationUpsert, Payload: outbox.Payload{"name": "Acme"}},
			outbox.Entry{TargetEntity: "res.partner", Operation: "merge"},
		)
		assert.ErrorIs(t, err, outbox.ErrUnknownOperation)

		stats, err := ob.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats[outbox.StatusQueued])
	})

	t.Run("one worker per outbox", func(t *testing.T) {
		ob := newOutbox(outbox.WithMaintenance(false))
		_, err := ob.NewWorker(testHelper.NewFakeDownstream())
		require.NoError(t, err)

		_, err = ob.NewWorker(testHelper.NewFakeDownstream())
		assert.Error(t, err)
	})

	t.Run("relays enqueued entries end to end", func(t *testing.T) {
		truncateOutbox(t, resource.DB)
		ob := newOutbox(outbox.WithMaintenance(false), outbox.WithBatchSize(10))
		downstream := testHelper.NewFakeDownstream()
		downstream.FailNext(nil, outbox.Permanent(assert.AnError))

		inserted, err := ob.EnqueueBatchMessages(ctx,
			outbox.Entry{TargetEntity: "res.partner", Operation: outbox.OperationUpsert, Payload: outbox.Payload{"name": "Acme"}},
			outbox.Entry{TargetEntity: "res.partner", Operation: outbox.OperationUpsert, Payload: outbox.Payload{"name": "Globex"}},
			outbox.Entry{TargetEntity: "res.partner", Operation: outbox.OperationDelete, Payload: outbox.Payload{"odoo_id": 7}},
		)
		require.NoError(t, err)
		require.Equal(t, 3, inserted)

		worker, err := ob.NewWorker(downstream)
		require.NoError(t, err)
		require.NoError(t, worker.Authenticate(ctx))

		summary, err := worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, outbox.BatchSummary{Claimed: 3, Succeeded: 2, Failed: 1}, summary)
		assert.Equal(t, 0, outbox.ExitCode(summary, err))

		calls := downstream.Calls()
		require.Len(t, calls, 3)
		assert.Equal(t, "Acme", calls[0].Payload["name"])
		assert.Equal(t, outbox.OperationDelete, calls[2].Operation)
		assert.EqualValues(t, 7, calls[2].Identifier)

		stats, err := ob.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats[outbox.StatusDone])
		assert.Equal(t, 1, stats[outbox.StatusFailed])
		assert.Zero(t, stats[outbox.StatusProcessing])
	})
}
