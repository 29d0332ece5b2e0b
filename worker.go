package outbox

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

// BatchSummary counts what happened to one claimed batch.
type BatchSummary struct {
	Claimed   int
	Succeeded int
	Requeued  int
	Failed    int
	// Lost counts records reclaimed by another worker before their commit.
	Lost int
	// Errors counts commits that failed on the store; those records recover through lease expiry.
	Errors int
}

func (s BatchSummary) Processed() int {
	return s.Succeeded + s.Requeued + s.Failed
}

func (s BatchSummary) fields() []zap.Field {
	return []zap.Field{
		zap.Int("claimed", s.Claimed),
		zap.Int("processed", s.Processed()),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("requeued", s.Requeued),
		zap.Int("failed", s.Failed),
		zap.Int("lost", s.Lost),
		zap.Int("errors", s.Errors),
	}
}

// Worker owns everything one relay process needs: store, downstream client, retry
// policy, clock and logger. It is built once at startup and shared by reference.
type Worker struct {
	config       *Config
	outboxDB     outboxdb.OutboxDB
	dispatcher   *Dispatcher
	schemas      *SchemaRegistry
	client       DownstreamClient
	acknowledger Acknowledger
	policy       RetryPolicy
	clock        clockwork.Clock
	logger       *zap.Logger
	ownerID      string
	scheduler    JobScheduler
}

type WorkerOption func(w *Worker)

func WithClock(clock clockwork.Clock) WorkerOption {
	return func(w *Worker) {
		w.clock = clock
	}
}

func WithLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithSchemaRegistry(schemas *SchemaRegistry) WorkerOption {
	return func(w *Worker) {
		w.schemas = schemas
	}
}

// WithScheduler runs the given maintenance scheduler for the lifetime of Run.
func WithScheduler(scheduler JobScheduler) WorkerOption {
	return func(w *Worker) {
		w.scheduler = scheduler
	}
}

func NewWorker(config *Config, outboxDB outboxdb.OutboxDB, client DownstreamClient, opts ...WorkerOption) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if outboxDB == nil {
		return nil, errors.New("outbox: nil OutboxDB")
	}
	if client == nil && !config.DryRun {
		return nil, errors.New("outbox: nil DownstreamClient")
	}

	ownerID := config.OwnerID
	if ownerID == "" {
		ownerID = NewOwnerID()
	}

	w := &Worker{
		config:       config,
		outboxDB:     outboxDB,
		client:       client,
		acknowledger: newAcknowledgement(outboxDB, ownerID),
		policy:       config.RetryPolicy(),
		clock:        clockwork.NewRealClock(),
		logger:       zap.NewNop(),
		ownerID:      ownerID,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("owner", ownerID))
	w.dispatcher = NewDispatcher(client, w.schemas, config, w.logger)

	return w, nil
}

// NewOwnerID returns a lease owner unique to this process, worker-<pid>-<ulid>.
func NewOwnerID() string {
	return fmt.Sprintf("worker-%d-%s", os.Getpid(), ulid.Make().String())
}

func (w *Worker) OwnerID() string {
	return w.ownerID
}

// Authenticate logs in to the downstream. Call it once before RunOnce or Run.
func (w *Worker) Authenticate(ctx context.Context) error {
	if w.config.DryRun {
		return nil
	}
	if err := w.client.Authenticate(ctx); err != nil {
		return fmt.Errorf("downstream authentication failed: %w", err)
	}
	w.logger.Info("authenticated with downstream")

	return nil
}

// RunOnce claims one batch, dispatches every record in claim order and commits each outcome.
// Only a failed claim returns an error; per record failures are counted in the summary.
// Cancelling ctx does not interrupt a batch already claimed.
func (w *Worker) RunOnce(ctx context.Context) (BatchSummary, error) {
	if w.config.DryRun {
		return w.DryRun(ctx)
	}

	records, err := w.outboxDB.ClaimBatch(ctx, w.ownerID, w.config.BatchSize, w.config.LeaseTimeout)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("%w: claim: %w", ErrStoreUnavailable, err)
	}

	summary := BatchSummary{Claimed: len(records)}
	if len(records) == 0 {
		return summary, nil
	}
	w.logger.Debug("claimed batch", zap.Int("records", len(records)))

	// Commits must land even when shutdown was requested mid batch.
	commitCtx := context.WithoutCancel(ctx)
	for _, rec := range records {
		decision := w.process(commitCtx, rec)
		w.acknowledge(commitCtx, rec, decision, &summary)
	}

	return summary, nil
}

func (w *Worker) process(ctx context.Context, rec Record) Decision {
	if decision, exhausted := w.policy.Exhausted(rec); exhausted {
		return decision
	}

	err := w.dispatcher.Dispatch(ctx, rec)
	return w.policy.Decide(rec, err, w.clock.Now().UTC())
}

func (w *Worker) acknowledge(ctx context.Context, rec Record, decision Decision, summary *BatchSummary) {
	fields := []zap.Field{
		zap.Int64("record_id", rec.ID),
		zap.String("target_entity", rec.TargetEntity),
		zap.String("operation", rec.Operation),
		zap.Int("attempts", decision.Attempts),
	}

	err := w.acknowledger.Acknowledge(ctx, rec, decision)
	switch {
	case errors.Is(err, ErrLeaseLost):
		summary.Lost++
		w.logger.Warn("lease reclaimed by another worker, abandoning record", append(fields, zap.Error(err))...)
		return
	case err != nil:
		summary.Errors++
		w.logger.Error("committing record state failed", append(fields, zap.Stringer("ack", decision.Ack), zap.Error(err))...)
		return
	}

	switch decision.Ack {
	case Success:
		summary.Succeeded++
		w.logger.Info("record relayed", fields...)
	case Retry:
		summary.Requeued++
		w.logger.Info("record requeued",
			append(fields,
				zap.Stringer("kind", decision.Kind),
				zap.Time("not_before", decision.NotBefore),
				zap.String("error", decision.LastError))...)
	case Failure:
		summary.Failed++
		w.logger.Warn("record quarantined as failed",
			append(fields,
				zap.Stringer("kind", decision.Kind),
				zap.String("error", decision.LastError))...)
	}
}

// DryRun reads the records a claim would pick up and classifies them, without
// claiming, calling the downstream or committing anything.
func (w *Worker) DryRun(ctx context.Context) (BatchSummary, error) {
	records, err := w.outboxDB.PeekEligible(ctx, w.config.BatchSize)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("%w: peek: %w", ErrStoreUnavailable, err)
	}

	summary := BatchSummary{Claimed: len(records)}
	for _, rec := range records {
		fields := []zap.Field{
			zap.Int64("record_id", rec.ID),
			zap.String("target_entity", rec.TargetEntity),
			zap.String("operation", rec.Operation),
			zap.Any("payload", rec.Payload),
		}
		if _, err := w.dispatcher.Prepare(rec); err != nil {
			summary.Failed++
			w.logger.Info("[dry run] would quarantine record", append(fields, zap.Error(err))...)
			continue
		}
		summary.Succeeded++
		w.logger.Info("[dry run] would relay record", fields...)
	}

	return summary, nil
}

// Run polls until ctx is cancelled. Cancellation stops new claims only; the batch in
// flight is finished first. Processing and store errors are logged, never returned.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting outbox relay",
		zap.Int("pid", os.Getpid()),
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Duration("lease_timeout", w.config.LeaseTimeout),
	)

	if w.scheduler != nil {
		w.scheduler.Start()
		defer w.scheduler.Close()
	}

	for {
		if ctx.Err() != nil {
			break
		}

		summary, err := w.RunOnce(ctx)
		switch {
		case err != nil:
			w.logger.Error("poll iteration failed", zap.Error(err))
		case summary.Claimed > 0:
			w.logger.Info("batch complete", summary.fields()...)
		default:
			w.logger.Debug("no records to process")
		}

		// A full batch means more work is likely waiting. A dry run leaves the rows
		// eligible, so it would see the same batch again.
		if err == nil && !w.config.DryRun && summary.Claimed == w.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
		case <-w.clock.After(w.config.PollInterval):
		}
	}

	w.logger.Info("outbox relay stopped")
	return nil
}

// ExitCode maps a run-once result to a process exit code: 0 when at least one record
// succeeded or nothing was eligible, 1 otherwise.
func ExitCode(summary BatchSummary, err error) int {
	if err != nil {
		return 1
	}
	if summary.Claimed == 0 || summary.Succeeded > 0 {
		return 0
	}
	return 1
}

// LogSummary writes the summary of a run-once invocation.
func (w *Worker) LogSummary(summary BatchSummary) {
	w.logger.Info("batch summary", summary.fields()...)
}
