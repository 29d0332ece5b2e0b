package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultIdentifierKeys are looked up in order for the downstream id of a record.
var DefaultIdentifierKeys = []string{"odoo_id", "id"}

// Dispatcher applies one record to the downstream client and reports the classified outcome.
type Dispatcher struct {
	client         DownstreamClient
	schemas        *SchemaRegistry
	identifierKeys []string
	timeout        time.Duration
	logger         *zap.Logger
}

func NewDispatcher(client DownstreamClient, schemas *SchemaRegistry, conf *Config, logger *zap.Logger) *Dispatcher {
	keys := conf.IdentifierKeys
	if len(keys) == 0 {
		keys = DefaultIdentifierKeys
	}
	if schemas == nil {
		schemas = NewSchemaRegistry()
		schemas.AllowUnregistered = true
	}

	return &Dispatcher{
		client:         client,
		schemas:        schemas,
		identifierKeys: keys,
		timeout:        conf.DispatchTimeout,
		logger:         logger,
	}
}

// Prepare validates rec and builds its mutation without contacting the downstream.
func (d *Dispatcher) Prepare(rec Record) (Mutation, error) {
	if !validOperation(rec.Operation) {
		return Mutation{}, Validation(fmt.Errorf("%w %q", ErrUnknownOperation, rec.Operation))
	}
	if err := d.schemas.Validate(rec.TargetEntity, rec.Operation, rec.Payload); err != nil {
		return Mutation{}, Validation(err)
	}

	m := Mutation{
		RecordID:       rec.ID,
		TargetEntity:   rec.TargetEntity,
		Operation:      rec.Operation,
		Payload:        rec.Payload,
		Identifier:     d.identifier(rec.Payload),
		IdempotencyKey: rec.IdempotencyKey,
	}
	if rec.Operation == OperationDelete && m.Identifier == nil {
		return Mutation{}, Validation(fmt.Errorf("%w: expected one of %v", ErrMissingIdentifier, d.identifierKeys))
	}

	return m, nil
}

// Dispatch makes exactly one downstream call for rec. The call is detached from
// cancellation of ctx: shutdown waits for it instead of leaving the downstream
// state unknown. It is still bounded by the dispatch timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, rec Record) error {
	m, err := d.Prepare(rec)
	if err != nil {
		return err
	}

	callCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}

	d.logger.Debug("dispatching record",
		zap.Int64("record_id", rec.ID),
		zap.String("operation", rec.Operation),
		zap.String("target_entity", rec.TargetEntity),
		zap.String("idempotency_key", rec.IdempotencyKey),
	)

	switch m.Operation {
	case OperationDelete:
		err = d.client.Delete(callCtx, m)
	default:
		err = d.client.Upsert(callCtx, m)
	}
	if err != nil {
		return fmt.Errorf("%s %s record %d: %w", m.Operation, m.TargetEntity, rec.ID, err)
	}

	return nil
}

func (d *Dispatcher) identifier(payload Payload) any {
	for _, key := range d.identifierKeys {
		v, ok := payload[key]
		if !ok || isZeroIdentifier(v) {
			continue
		}
		return v
	}
	return nil
}

func isZeroIdentifier(v any) bool {
	switch id := v.(type) {
	case nil:
		return true
	case bool:
		// Odoo writes false for an unset many2one.
		return !id
	case string:
		return id == ""
	}
	if n, ok := asFloat(v); ok {
		return n == 0
	}
	return false
}
