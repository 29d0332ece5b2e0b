package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	outbox "github.com/TimKotowski/pg-outbox-relay"
	mock_outbox "github.com/TimKotowski/pg-outbox-relay/mocks"
)

func newDispatcher(t *testing.T, opts ...outbox.ConfigFunc) (*outbox.Dispatcher, *mock_outbox.MockDownstreamClient) {
	ctrl := gomock.NewController(t)
	client := mock_outbox.NewMockDownstreamClient(ctrl)
	return outbox.NewDispatcher(client, outbox.DefaultSchemaRegistry(), outbox.NewConfig(opts...), zap.NewNop()), client
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert hands the record to the client", func(t *testing.T) {
		d, client := newDispatcher(t)
		rec := outbox.Record{
			ID:             3,
			TargetEntity:   "res.partner",
			Operation:      outbox.OperationUpsert,
			Payload:        outbox.Payload{"name": "Acme", "odoo_id": float64(12)},
			IdempotencyKey: "key-3",
		}

		client.EXPECT().Upsert(gomock.Any(), outbox.Mutation{
			RecordID:       3,
			TargetEntity:   "res.partner",
			Operation:      outbox.OperationUpsert,
			Payload:        rec.Payload,
			Identifier:     float64(12),
			IdempotencyKey: "key-3",
		}).Return(nil)

		assert.NoError(t, d.Dispatch(ctx, rec))
	})

	t.Run("delete uses the first identifier present", func(t *testing.T) {
		d, client := newDispatcher(t)
		rec := outbox.Record{
			TargetEntity: "res.partner",
			Operation:    outbox.OperationDelete,
			Payload:      outbox.Payload{"odoo_id": false, "id": "uuid-9"},
		}

		client.EXPECT().Delete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m outbox.Mutation) error {
			assert.Equal(t, "uuid-9", m.Identifier)
			return nil
		})

		assert.NoError(t, d.Dispatch(ctx, rec))
	})

	t.Run("delete without identifier never reaches the client", func(t *testing.T) {
		d, _ := newDispatcher(t)
		rec := outbox.Record{
			TargetEntity: "res.partner",
			Operation:    outbox.OperationDelete,
			Payload:      outbox.Payload{"name": "Acme"},
		}

		err := d.Dispatch(ctx, rec)
		assert.ErrorIs(t, err, outbox.ErrMissingIdentifier)
		assert.Equal(t, outbox.KindValidation, outbox.KindOf(err))
	})

	t.Run("unknown operation is a validation error", func(t *testing.T) {
		d, _ := newDispatcher(t)
		_, err := d.Prepare(outbox.Record{TargetEntity: "res.partner", Operation: "merge"})
		assert.ErrorIs(t, err, outbox.ErrUnknownOperation)
		assert.Equal(t, outbox.KindValidation, outbox.KindOf(err))
	})

	t.Run("invalid payload is a validation error", func(t *testing.T) {
		d, _ := newDispatcher(t)
		err := d.Dispatch(ctx, outbox.Record{
			TargetEntity: "res.partner",
			Operation:    outbox.OperationUpsert,
			Payload:      outbox.Payload{"email": 3},
		})
		assert.ErrorIs(t, err, outbox.ErrInvalidPayload)
		assert.Equal(t, outbox.KindValidation, outbox.KindOf(err))
	})

	t.Run("client errors keep their kind", func(t *testing.T) {
		d, client := newDispatcher(t)
		rejected := outbox.Permanent(errors.New("rejected"))
		client.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(rejected)

		err := d.Dispatch(ctx, outbox.Record{
			ID:           8,
			TargetEntity: "res.partner",
			Operation:    outbox.OperationUpsert,
			Payload:      outbox.Payload{"name": "Acme"},
		})
		assert.ErrorIs(t, err, rejected)
		assert.Equal(t, outbox.KindPermanent, outbox.KindOf(err))
		assert.Contains(t, err.Error(), "record 8")
	})

	t.Run("call outlives cancellation but not the timeout", func(t *testing.T) {
		d, client := newDispatcher(t, outbox.WithDispatchTimeout(time.Minute))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		client.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(callCtx context.Context, _ outbox.Mutation) error {
			require.NoError(t, callCtx.Err())
			deadline, ok := callCtx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
			return nil
		})

		assert.NoError(t, d.Dispatch(cancelled, outbox.Record{
			TargetEntity: "res.partner",
			Operation:    outbox.OperationUpsert,
			Payload:      outbox.Payload{"name": "Acme"},
		}))
	})
}
