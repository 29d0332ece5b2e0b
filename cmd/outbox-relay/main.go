// Command outbox-relay relays records of the outbox_records table to a downstream system.
//
// Run it with --once from a scheduler, or with --daemon as a long running worker.
// Any number of instances may run against the same table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	outbox "github.com/TimKotowski/pg-outbox-relay"
	"github.com/TimKotowski/pg-outbox-relay/downstream/kafkasink"
	"github.com/TimKotowski/pg-outbox-relay/downstream/odoo"
	"github.com/TimKotowski/pg-outbox-relay/internal/api"
)

const exitUsage = 2

type cliOptions struct {
	once      bool
	daemon    bool
	dryRun    bool
	batchSize int
	migrate   bool
	verbose   bool
}

func main() {
	var opts cliOptions
	flag.BoolVar(&opts.once, "once", false, "Process one batch and exit")
	flag.BoolVar(&opts.daemon, "daemon", false, "Poll continuously until SIGINT or SIGTERM")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "List eligible records without claiming or dispatching them")
	flag.IntVar(&opts.batchSize, "batch-size", outbox.NewConfig().BatchSize, "Records claimed per poll")
	flag.BoolVar(&opts.migrate, "migrate", false, "Create the outbox table before starting")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if err := opts.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(exitUsage)
	}

	env, err := loadEnv(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := run(context.Background(), opts, env, logger)
	_ = logger.Sync()
	os.Exit(code)
}

func (o *cliOptions) validate() error {
	// --dry-run alone previews one batch.
	if o.dryRun && !o.once && !o.daemon {
		o.once = true
	}
	switch {
	case o.once == o.daemon:
		return fmt.Errorf("%w: exactly one of --once or --daemon is required", errUsage)
	case o.batchSize <= 0:
		return fmt.Errorf("%w: --batch-size must be positive", errUsage)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

func run(ctx context.Context, opts cliOptions, env relayEnv, logger *zap.Logger) int {
	conf := outbox.NewConfig(append(env.configFuncs(),
		outbox.WithBatchSize(opts.batchSize),
		outbox.WithDryRun(opts.dryRun),
		outbox.WithMaintenance(opts.daemon),
	)...)
	if err := conf.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return exitUsage
	}

	ob, err := outbox.NewFromConfig(ctx, conf, logger)
	if err != nil {
		logger.Error("connecting to outbox database failed", zap.Error(err))
		return 1
	}
	defer ob.Close()

	if opts.migrate {
		if err := ob.Migrate(ctx); err != nil {
			logger.Error("migrating outbox table failed", zap.Error(err))
			return 1
		}
	}

	client, closer := newDownstream(env, logger)
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("closing downstream client", zap.Error(err))
		}
	}()

	schemas := outbox.DefaultSchemaRegistry()
	schemas.AllowUnregistered = !env.StrictSchemas
	worker, err := ob.NewWorker(client, outbox.WithSchemaRegistry(schemas))
	if err != nil {
		logger.Error("creating worker failed", zap.Error(err))
		return 1
	}

	if err := worker.Authenticate(ctx); err != nil {
		logger.Error("startup failed", zap.String("downstream", env.Downstream), zap.Error(err))
		return 1
	}

	shutdown := outbox.NewShutdownCoordinator(logger)
	defer shutdown.Stop()
	runCtx := shutdown.Watch(ctx)

	if opts.once {
		summary, err := worker.RunOnce(runCtx)
		if err != nil {
			logger.Error("processing batch failed", zap.Error(err))
		}
		worker.LogSummary(summary)
		return outbox.ExitCode(summary, err)
	}

	if env.StatusAddr != "" {
		status := api.NewServer(env.StatusAddr, ob.Repository(), worker.OwnerID(), logger)
		go func() {
			if err := status.Run(runCtx); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
	}

	if err := worker.Run(runCtx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return 1
	}

	return 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newDownstream(env relayEnv, logger *zap.Logger) (outbox.DownstreamClient, io.Closer) {
	switch env.Downstream {
	case downstreamKafka:
		sink := kafkasink.New(env.Kafka, kafkasink.WithLogger(logger))
		return sink, sink
	default:
		return odoo.New(env.Odoo, odoo.WithLogger(logger)), nopCloser{}
	}
}
