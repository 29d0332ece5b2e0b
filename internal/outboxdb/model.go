package outboxdb

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

const TableName = "outbox_records"

type Status = string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

type Operation = string

const (
	OperationUpsert Operation = "upsert"
	OperationDelete Operation = "delete"
)

// Payload is the jsonb document a record carries to the downstream system.
type Payload map[string]any

type Record struct {
	bun.BaseModel `bun:"table:outbox_records,alias:o"`

	ID             int64      `bun:"id,pk,autoincrement"`
	TargetEntity   string     `bun:"target_entity,notnull"`
	Operation      Operation  `bun:"operation,notnull"`
	Payload        Payload    `bun:"payload,type:jsonb,notnull"`
	IdempotencyKey string     `bun:"idempotency_key,notnull,unique"`
	Status         Status     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseOwner     *string    `bun:"lease_owner"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at"`
	LastError      *string    `bun:"last_error"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
	ProcessedAt    *time.Time `bun:"processed_at"`
}

func (r *Record) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if r.Status == "" {
			r.Status = StatusQueued
		}
		if r.Payload == nil {
			r.Payload = Payload{}
		}
	}
	return nil
}

// Owner returns the lease owner or an empty string when the record is not leased.
func (r Record) Owner() string {
	if r.LeaseOwner == nil {
		return ""
	}
	return *r.LeaseOwner
}

func (r Record) LastErrorMessage() string {
	if r.LastError == nil {
		return ""
	}
	return *r.LastError
}

// Terminal reports whether the record reached done or failed and must not be mutated again.
func (r Record) Terminal() bool {
	return r.Status == StatusDone || r.Status == StatusFailed
}

type StatusCount struct {
	Status Status `bun:"status"`
	Count  int    `bun:"count"`
}
