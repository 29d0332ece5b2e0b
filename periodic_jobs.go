package outbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

var (
	_ JobHandler = &stalledLeaseJobHandler{}
	_ JobHandler = &quarantineReportJobHandler{}
	_ JobHandler = &reindexJobHandler{}
)

type HandleFunc = func(ctx context.Context) error

type JobRegister interface {
	Register(handle JobHandler)
}

type JobHandler interface {
	JobMeta
	Handle(ctx context.Context) error
}

type JobMeta interface {
	PeriodicSchedule() string
	Name() string
}

// None of the maintenance jobs change record state, claims and commits own that.
type baseJobHandler struct {
	db     outboxdb.OutboxMaintenanceDB
	conf   *Config
	logger *zap.Logger
}

// stalledLeaseJobHandler reports records whose worker died holding the lease.
// They are reclaimed by the next poll of any worker.
type stalledLeaseJobHandler struct {
	baseJobHandler
}

func newStalledLeaseJob(b baseJobHandler) *stalledLeaseJobHandler {
	return &stalledLeaseJobHandler{baseJobHandler: b}
}

func (s *stalledLeaseJobHandler) Handle(ctx context.Context) error {
	count, err := s.db.CountExpiredLeases(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Warn("records with expired leases waiting to be reclaimed",
			zap.Int("count", count),
			zap.Duration("lease_timeout", s.conf.LeaseTimeout))
	}

	return nil
}

// PeriodicSchedule Every five minutes.
func (s *stalledLeaseJobHandler) PeriodicSchedule() string {
	return "*/5 * * * *"
}

func (s *stalledLeaseJobHandler) Name() string {
	return "Stalled Lease Report"
}

// quarantineReportJobHandler surfaces poison records for operators.
type quarantineReportJobHandler struct {
	baseJobHandler
}

func newQuarantineReportJob(b baseJobHandler) *quarantineReportJobHandler {
	return &quarantineReportJobHandler{baseJobHandler: b}
}

func (q *quarantineReportJobHandler) Handle(ctx context.Context) error {
	counts, err := q.db.CountByStatus(ctx)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int(outboxdb.StatusQueued, counts[outboxdb.StatusQueued]),
		zap.Int(outboxdb.StatusProcessing, counts[outboxdb.StatusProcessing]),
		zap.Int(outboxdb.StatusDone, counts[outboxdb.StatusDone]),
		zap.Int(outboxdb.StatusFailed, counts[outboxdb.StatusFailed]),
	}
	if counts[outboxdb.StatusFailed] > 0 {
		q.logger.Warn("failed records need operator attention", fields...)
		return nil
	}
	q.logger.Info("outbox status", fields...)

	return nil
}

// PeriodicSchedule Start little past beginning of every hour to prevent scheduling oddities.
func (q *quarantineReportJobHandler) PeriodicSchedule() string {
	return "5 * * * *"
}

func (q *quarantineReportJobHandler) Name() string {
	return "Quarantine Report"
}

type reindexJobHandler struct {
	baseJobHandler
}

func newReindexJobHandler(b baseJobHandler) *reindexJobHandler {
	return &reindexJobHandler{baseJobHandler: b}
}

func (r *reindexJobHandler) Handle(ctx context.Context) error {
	return r.db.ReIndex(ctx)
}

// PeriodicSchedule Start little past beginning of 12am to prevent scheduling oddities.
func (r *reindexJobHandler) PeriodicSchedule() string {
	return "5 0 * * *"
}

func (r *reindexJobHandler) Name() string {
	return "Reindex Job"
}
