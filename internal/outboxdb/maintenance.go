package outboxdb

import (
	"context"
)

type OutboxMaintenanceDB interface {
	// ReIndex will rebuild the indexes of the outbox table.
	// Outbox can have very high churn. Causing bloat on the B-Tree index.
	// Usually re-index isn't needed but outbox table is prone to a lot of empty or partial empty pages.
	// Leading to excessive wasted space (empty or nearly empty pages) without compacting.
	ReIndex(ctx context.Context) error

	// CountExpiredLeases counts processing records whose owner let the lease run out.
	// These are picked up again by the next claim.
	CountExpiredLeases(ctx context.Context) (int, error)

	// CountByStatus reports how many records sit in each status. Missing statuses count zero.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

func (r *outboxDB) ReIndex(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "REINDEX TABLE CONCURRENTLY "+TableName)
	return err
}

func (r *outboxDB) CountExpiredLeases(ctx context.Context) (int, error) {
	return r.db.NewSelect().
		Model((*Record)(nil)).
		Where("status = ?", StatusProcessing).
		Where("lease_expires_at < ?", r.now()).
		Count(ctx)
}

func (r *outboxDB) CountByStatus(ctx context.Context) (map[Status]int, error) {
	var counts []StatusCount
	err := r.db.NewSelect().
		Model((*Record)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, err
	}

	result := map[Status]int{
		StatusQueued:     0,
		StatusProcessing: 0,
		StatusDone:       0,
		StatusFailed:     0,
	}
	for _, c := range counts {
		result[c.Status] = c.Count
	}

	return result, nil
}
