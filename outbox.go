package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-outbox-relay/hash"
	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
	"github.com/TimKotowski/pg-outbox-relay/migrations"
)

type Outbox struct {
	conf       *Config
	repository outboxdb.OutboxDB
	db         *bun.DB
	clock      clockwork.Clock
	logger     *zap.Logger
	state      atomic.Uint32
}

func NewFromConfig(ctx context.Context, conf *Config, logger *zap.Logger) (*Outbox, error) {
	db, err := GetDBConnection(ctx, conf)
	if err != nil {
		return nil, err
	}

	return New(db, conf, clockwork.NewRealClock(), logger), nil
}

// New wraps an open database. Close closes it.
func New(db *bun.DB, conf *Config, clock clockwork.Clock, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Outbox{
		conf:       conf,
		repository: outboxdb.NewOutboxDB(db, clock),
		db:         db,
		clock:      clock,
		logger:     logger,
	}
}

// Migrate creates the outbox table. Safe to run from several processes at once.
func (o *Outbox) Migrate(ctx context.Context) error {
	return migrations.Migrate(ctx, o.db, o.logger)
}

// NewWorker builds the relay worker on this outbox. With maintenance enabled,
// the cron jobs run for as long as the worker's Run does.
func (o *Outbox) NewWorker(client DownstreamClient, opts ...WorkerOption) (*Worker, error) {
	if !o.state.CompareAndSwap(uninitialized, running) {
		return nil, errors.New("outbox worker already created for this outbox")
	}

	base := []WorkerOption{WithClock(o.clock), WithLogger(o.logger)}
	if o.conf.MaintenanceEnabled && !o.conf.DryRun {
		scheduler := NewBackgroundJobProcessor(o.conf, o.repository, o.clock, o.logger)
		scheduler.SetUp()
		base = append(base, WithScheduler(scheduler))
	}

	return NewWorker(o.conf, o.repository, client, append(base, opts...)...)
}

func (o *Outbox) Repository() outboxdb.OutboxDB {
	return o.repository
}

func (o *Outbox) Stats(ctx context.Context) (map[Status]int, error) {
	return o.repository.CountByStatus(ctx)
}

func (o *Outbox) Close() error {
	o.state.Store(closed)
	return o.db.Close()
}

// Entry is one mutation a producer wants relayed.
type Entry struct {
	TargetEntity string
	Operation    Operation
	Payload      Payload
	// IdempotencyKey is derived from the entry when empty.
	IdempotencyKey string
	// SourceVersion distinguishes repeated, otherwise identical mutations of the same
	// source row, e.g. its updated_at or a revision counter.
	SourceVersion string
}

func (e Entry) isValid() error {
	if e.TargetEntity == "" {
		return errors.New("outbox entry target entity cant be empty")
	}
	if !validOperation(e.Operation) {
		return fmt.Errorf("%w %q", ErrUnknownOperation, e.Operation)
	}

	return nil
}

// IdempotencyKey derives a key from the entry's entity, operation, payload and source
// version. The same source mutation always yields the same key.
func IdempotencyKey(e Entry) (string, error) {
	// encoding/json sorts map keys, the encoding is canonical.
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	sep := []byte{0}
	return hash.SHA256Key([]byte(e.TargetEntity), sep, []byte(e.Operation), sep, payload, sep, []byte(e.SourceVersion))
}

func (e Entry) record() (*Record, error) {
	if err := e.isValid(); err != nil {
		return nil, err
	}

	key := e.IdempotencyKey
	if key == "" {
		var err error
		if key, err = IdempotencyKey(e); err != nil {
			return nil, err
		}
	}

	return &Record{
		TargetEntity:   e.TargetEntity,
		Operation:      e.Operation,
		Payload:        e.Payload,
		IdempotencyKey: key,
		Status:         StatusQueued,
	}, nil
}

// EnqueueMessage writes entries inside db, normally the transaction of the source change.
// Entries whose idempotency key is already queued are skipped; the count of new rows is returned.
func (o *Outbox) EnqueueMessage(ctx context.Context, db bun.IDB, entries ...Entry) (int, error) {
	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		rec, err := e.record()
		if err != nil {
			return 0, err
		}
		records = append(records, rec)
	}

	return o.repository.Insert(ctx, db, records...)
}

// EnqueueBatchMessages writes entries in a transaction of its own.
func (o *Outbox) EnqueueBatchMessages(ctx context.Context, entries ...Entry) (int, error) {
	return outboxdb.RunInTxWithReturnType(ctx, o.db, func(tx bun.Tx) (int, error) {
		return o.EnqueueMessage(ctx, tx, entries...)
	})
}
