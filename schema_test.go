package outbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

func TestSchemaRegistryValidate(t *testing.T) {
	registry := outbox.DefaultSchemaRegistry()

	cases := []struct {
		name    string
		entity  string
		op      outbox.Operation
		payload outbox.Payload
		wantErr error
	}{
		{
			name:    "valid partner",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", "email": "ops@acme.test", "is_company": true, "odoo_id": float64(4)},
		},
		{
			name:    "null clears a field",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", "phone": nil},
		},
		{
			name:    "matching schema version",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", outbox.SchemaVersionKey: float64(1)},
		},
		{
			name:    "missing required field",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"email": "ops@acme.test"},
			wantErr: outbox.ErrInvalidPayload,
		},
		{
			name:    "wrong field type",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", "is_company": "yes"},
			wantErr: outbox.ErrInvalidPayload,
		},
		{
			name:    "fractional id",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", "odoo_id": 4.5},
			wantErr: outbox.ErrInvalidPayload,
		},
		{
			name:    "unexpected field",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", "vat": "BE0123"},
			wantErr: outbox.ErrInvalidPayload,
		},
		{
			name:    "newer schema version",
			entity:  "res.partner",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "Acme", outbox.SchemaVersionKey: float64(2)},
			wantErr: outbox.ErrInvalidPayload,
		},
		{
			name:    "delete only checks the version",
			entity:  "res.partner",
			op:      outbox.OperationDelete,
			payload: outbox.Payload{"odoo_id": float64(4)},
		},
		{
			name:    "unknown entity",
			entity:  "sale.order",
			op:      outbox.OperationUpsert,
			payload: outbox.Payload{"name": "SO001"},
			wantErr: outbox.ErrUnknownEntity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := registry.Validate(tc.entity, tc.op, tc.payload)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("permissive registry passes unknown entities", func(t *testing.T) {
		permissive := outbox.NewSchemaRegistry()
		permissive.AllowUnregistered = true
		assert.NoError(t, permissive.Validate("sale.order", outbox.OperationUpsert, outbox.Payload{"anything": 1}))
	})

	t.Run("extra fields allowed when the schema says so", func(t *testing.T) {
		r := outbox.NewSchemaRegistry(outbox.Schema{
			Entity:     "product.product",
			Version:    1,
			Fields:     map[string]outbox.FieldType{"name": outbox.FieldString, "tags": outbox.FieldArray},
			Required:   []string{"name"},
			AllowExtra: true,
		})
		assert.NoError(t, r.Validate("product.product", outbox.OperationUpsert, outbox.Payload{"name": "Chair", "tags": []any{"a"}, "x": 1}))

		_, ok := r.Lookup("product.product")
		assert.True(t, ok)
	})
}
