package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-outbox-relay/internal/api"
	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
	"github.com/TimKotowski/pg-outbox-relay/testHelper/memstore"
)

type brokenStore struct {
	*memstore.Store
}

func (brokenStore) CountByStatus(context.Context) (map[outboxdb.Status]int, error) {
	return nil, errors.New("connection refused")
}

func TestStatusServer(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := memstore.New(clock)
	_, err := store.Insert(ctx, nil,
		&outboxdb.Record{TargetEntity: "res.partner", Operation: outboxdb.OperationUpsert, IdempotencyKey: "a"},
		&outboxdb.Record{TargetEntity: "res.partner", Operation: outboxdb.OperationUpsert, IdempotencyKey: "b"},
	)
	require.NoError(t, err)

	t.Run("healthz", func(t *testing.T) {
		srv := api.NewServer(":0", store, "worker-1", zap.NewNop())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","owner":"worker-1"}`, rec.Body.String())
	})

	t.Run("healthz with unreachable store", func(t *testing.T) {
		srv := api.NewServer(":0", brokenStore{store}, "worker-1", zap.NewNop())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		_, err := store.ClaimBatch(ctx, "worker-1", 1, 0)
		require.NoError(t, err)
		clock.Advance(1)

		srv := api.NewServer(":0", store, "worker-1", zap.NewNop())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp api.StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "worker-1", resp.Owner)
		assert.Equal(t, 1, resp.Records[outboxdb.StatusQueued])
		assert.Equal(t, 1, resp.Records[outboxdb.StatusProcessing])
		assert.Equal(t, 0, resp.Records[outboxdb.StatusFailed])
		assert.Equal(t, 1, resp.ExpiredLeases)
	})

	t.Run("run stops with the context", func(t *testing.T) {
		srv := api.NewServer("127.0.0.1:0", store, "worker-1", zap.NewNop())
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- srv.Run(runCtx) }()

		cancel()
		assert.NoError(t, <-done)
	})
}
