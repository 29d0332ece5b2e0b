package outboxdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

const NoRowsAffected = 0

var (
	// ErrLeaseLost means the record is no longer processing under the caller's lease,
	// another worker reclaimed it after the lease expired.
	ErrLeaseLost = errors.New("outbox lease lost")
	// ErrRecordNotFound is returned by Get when no record has the given id.
	ErrRecordNotFound = errors.New("outbox record not found")
)

// eligible matches queued records whose backoff gate has passed and processing
// records whose lease expired. Both placeholders take the current time.
const eligible = "(status = 'queued' AND (lease_expires_at IS NULL OR lease_expires_at <= ?)) " +
	"OR (status = 'processing' AND lease_expires_at < ?)"

type OutboxDB interface {
	// ClaimBatch leases up to batchSize eligible records to ownerID.
	// The scan, row locks and status stamp run as one statement with FOR UPDATE SKIP LOCKED,
	// so concurrent callers always receive disjoint records.
	// Reclaiming a processing record whose lease expired counts as a spent attempt.
	ClaimBatch(ctx context.Context, ownerID string, batchSize int, leaseTimeout time.Duration) ([]Record, error)

	// PeekEligible returns records a claim would pick up, without locking or mutating them.
	PeekEligible(ctx context.Context, limit int) ([]Record, error)

	// CommitDone moves a leased record to done.
	CommitDone(ctx context.Context, id int64, ownerID string, attempts int) error

	// CommitRequeue puts a leased record back in the queue, not eligible before notBefore.
	CommitRequeue(ctx context.Context, id int64, ownerID string, attempts int, notBefore time.Time, lastError string) error

	// CommitFailed quarantines a leased record.
	CommitFailed(ctx context.Context, id int64, ownerID string, attempts int, lastError string) error

	// Insert adds records using db, which is usually the producer's transaction.
	// Records with an idempotency key already present are skipped.
	Insert(ctx context.Context, db bun.IDB, records ...*Record) (int, error)

	Get(ctx context.Context, id int64) (Record, error)

	OutboxMaintenanceDB
}

type outboxDB struct {
	db    *bun.DB
	clock clockwork.Clock
}

func NewOutboxDB(db *bun.DB, clock clockwork.Clock) OutboxDB {
	return &outboxDB{
		db:    db,
		clock: clock,
	}
}

func (r *outboxDB) now() time.Time {
	return r.clock.Now().UTC()
}

func (r *outboxDB) ClaimBatch(ctx context.Context, ownerID string, batchSize int, leaseTimeout time.Duration) ([]Record, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("claim batch size must be positive, got %d", batchSize)
	}

	var records []Record
	now := r.now()
	sub := r.db.NewSelect().
		TableExpr(TableName).
		Column("id").
		Where(eligible, now, now).
		Order("created_at ASC", "id ASC").
		Limit(batchSize).
		For("UPDATE SKIP LOCKED")

	err := r.db.NewUpdate().
		TableExpr("? AS o", bun.Ident(TableName)).
		TableExpr("(?) AS sub", sub).
		Set("attempts = CASE WHEN o.status = ? THEN o.attempts + 1 ELSE o.attempts END", StatusProcessing).
		Set("status = ?", StatusProcessing).
		Set("lease_owner = ?", ownerID).
		Set("lease_expires_at = ?", now.Add(leaseTimeout)).
		Set("updated_at = ?", now).
		Where("sub.id = o.id").
		Returning("o.*").
		Scan(ctx, &records)
	if err != nil {
		return nil, err
	}

	// RETURNING carries no order guarantee.
	slices.SortFunc(records, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	return records, nil
}

func (r *outboxDB) PeekEligible(ctx context.Context, limit int) ([]Record, error) {
	var records []Record
	now := r.now()
	err := r.db.NewSelect().
		Model(&records).
		Where(eligible, now, now).
		Order("created_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *outboxDB) CommitDone(ctx context.Context, id int64, ownerID string, attempts int) error {
	now := r.now()
	q := r.leasedUpdate(id, ownerID, now).
		Set("status = ?", StatusDone).
		Set("attempts = ?", attempts).
		Set("processed_at = ?", now)

	return r.execLeased(ctx, q, id, StatusDone)
}

func (r *outboxDB) CommitRequeue(ctx context.Context, id int64, ownerID string, attempts int, notBefore time.Time, lastError string) error {
	// lease_expires_at doubles as the backoff gate for queued records.
	q := r.db.NewUpdate().
		Model((*Record)(nil)).
		Set("status = ?", StatusQueued).
		Set("attempts = ?", attempts).
		Set("last_error = ?", lastError).
		Set("lease_owner = NULL").
		Set("lease_expires_at = ?", notBefore.UTC()).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Where("lease_owner = ?", ownerID).
		Where("status = ?", StatusProcessing)

	return r.execLeased(ctx, q, id, StatusQueued)
}

func (r *outboxDB) CommitFailed(ctx context.Context, id int64, ownerID string, attempts int, lastError string) error {
	now := r.now()
	q := r.leasedUpdate(id, ownerID, now).
		Set("status = ?", StatusFailed).
		Set("attempts = ?", attempts).
		Set("last_error = ?", lastError).
		Set("processed_at = ?", now)

	return r.execLeased(ctx, q, id, StatusFailed)
}

// leasedUpdate releases the lease of a record still held by ownerID.
func (r *outboxDB) leasedUpdate(id int64, ownerID string, now time.Time) *bun.UpdateQuery {
	return r.db.NewUpdate().
		Model((*Record)(nil)).
		Set("lease_owner = NULL").
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("lease_owner = ?", ownerID).
		Where("status = ?", StatusProcessing)
}

func (r *outboxDB) execLeased(ctx context.Context, q *bun.UpdateQuery, id int64, status Status) error {
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("updating record %d to %s: %w", id, status, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == NoRowsAffected {
		return fmt.Errorf("updating record %d to %s: %w", id, status, ErrLeaseLost)
	}

	return nil
}

func (r *outboxDB) Insert(ctx context.Context, db bun.IDB, records ...*Record) (int, error) {
	if db == nil {
		db = r.db
	}

	now := r.now()
	inserted := 0
	for _, record := range records {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		if record.UpdatedAt.IsZero() {
			record.UpdatedAt = record.CreatedAt
		}
		err := db.NewInsert().
			Model(record).
			On("CONFLICT (idempotency_key) DO NOTHING").
			Returning("id").
			Scan(ctx, &record.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// Same logical change already recorded.
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("inserting record %q: %w", record.IdempotencyKey, err)
		}
		inserted++
	}

	return inserted, nil
}

func (r *outboxDB) Get(ctx context.Context, id int64) (Record, error) {
	var record Record
	err := r.db.NewSelect().
		Model(&record).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return Record{}, err
	}

	return record, nil
}
