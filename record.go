package outbox

import (
	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

type (
	Record    = outboxdb.Record
	Payload   = outboxdb.Payload
	Status    = outboxdb.Status
	Operation = outboxdb.Operation
)

const (
	StatusQueued     = outboxdb.StatusQueued
	StatusProcessing = outboxdb.StatusProcessing
	StatusDone       = outboxdb.StatusDone
	StatusFailed     = outboxdb.StatusFailed

	OperationUpsert = outboxdb.OperationUpsert
	OperationDelete = outboxdb.OperationDelete
)

func validOperation(op Operation) bool {
	return op == OperationUpsert || op == OperationDelete
}
