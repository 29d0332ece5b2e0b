package outbox

import "context"

//go:generate mockgen -destination=mocks/mock_downstream.go -package=mock_outbox . DownstreamClient
//go:generate mockgen -destination=mocks/mock_outboxdb.go -package=mock_outbox ./internal/outboxdb OutboxDB

// Mutation is one record as handed to the downstream system.
type Mutation struct {
	RecordID     int64
	TargetEntity string
	Operation    Operation
	Payload      Payload
	// Identifier is the downstream id of the entity. Always set for deletes,
	// set for upserts whose payload carries one.
	Identifier any
	// IdempotencyKey is stable across redeliveries of the same record.
	IdempotencyKey string
}

// DownstreamClient applies mutations to the system of record.
// Returned errors should be tagged with Transient, Permanent or Validation;
// untagged errors are retried as transient.
type DownstreamClient interface {
	// Authenticate is called once at startup, before any mutation.
	Authenticate(ctx context.Context) error
	// Upsert must accept the same mutation twice without a second side effect.
	Upsert(ctx context.Context, mutation Mutation) error
	Delete(ctx context.Context, mutation Mutation) error
}
