package outbox

import (
	"crypto/tls"
	"fmt"
	"time"
)

type Config struct {
	//////////////////////////
	// OUTBOX RELAY SECTION //
	//////////////////////////

	// Interval rate for polling outbox records in daemon mode.
	PollInterval time.Duration

	// Records claimed per poll.
	BatchSize int

	// How long a claimed record stays leased to this worker.
	// Must exceed the worst case time to dispatch a full batch, or records still
	// in flight get reclaimed and delivered twice.
	LeaseTimeout time.Duration

	// Attempts after which a record is quarantined as failed.
	MaxAttempts int

	// Backoff bounds for requeued records, delay is min(BaseDelay * 2^attempts, MaxDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Randomizes backoff delays, see Backoff.Jitter.
	BackoffJitter bool

	// Upper bound of one downstream call.
	DispatchTimeout time.Duration

	// Identifies this worker in lease_owner. Generated when empty.
	OwnerID string

	// Payload keys holding the downstream id, looked up in order.
	IdentifierKeys []string

	// Peek and classify only. No claim, no downstream call, no commit.
	DryRun bool

	//////////////////////////
	// MAINTENANCE SECTION  //
	//////////////////////////

	// Runs the cron maintenance jobs alongside the daemon loop.
	MaintenanceEnabled bool

	/////////////////////
	// GENERAL SECTION //
	/////////////////////

	DSN string

	TLSConfig *tls.Config

	// Upper bound of pooled database connections, pgx default when zero.
	MaxConns int32
}

type ConfigFunc func(c *Config)

func NewConfig(opts ...ConfigFunc) *Config {
	c := &Config{
		PollInterval:       time.Duration(30) * time.Second,
		BatchSize:          100,
		LeaseTimeout:       time.Duration(10) * time.Minute,
		MaxAttempts:        5,
		BaseDelay:          time.Duration(10) * time.Second,
		MaxDelay:           time.Duration(300) * time.Second,
		DispatchTimeout:    time.Duration(30) * time.Second,
		MaintenanceEnabled: true,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Validate rejects configurations the relay cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.LeaseTimeout <= 0:
		return fmt.Errorf("%w: lease timeout must be positive, got %s", ErrInvalidConfig, c.LeaseTimeout)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.BaseDelay < 0 || c.MaxDelay < 0:
		return fmt.Errorf("%w: backoff delays must not be negative", ErrInvalidConfig)
	case c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay:
		return fmt.Errorf("%w: base delay %s exceeds max delay %s", ErrInvalidConfig, c.BaseDelay, c.MaxDelay)
	case c.PollInterval < 0:
		return fmt.Errorf("%w: poll interval must not be negative", ErrInvalidConfig)
	case c.DispatchTimeout > 0 && c.DispatchTimeout >= c.LeaseTimeout:
		return fmt.Errorf("%w: dispatch timeout %s must be shorter than lease timeout %s", ErrInvalidConfig, c.DispatchTimeout, c.LeaseTimeout)
	}

	return nil
}

func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		Backoff: Backoff{
			Base:   c.BaseDelay,
			Max:    c.MaxDelay,
			Jitter: c.BackoffJitter,
		},
	}
}

func WithPollInterval(interval time.Duration) ConfigFunc {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

func WithBatchSize(size int) ConfigFunc {
	return func(c *Config) {
		c.BatchSize = size
	}
}

func WithLeaseTimeout(timeout time.Duration) ConfigFunc {
	return func(c *Config) {
		c.LeaseTimeout = timeout
	}
}

func WithMaxAttempts(attempts int) ConfigFunc {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

func WithBackoff(base, maxDelay time.Duration) ConfigFunc {
	return func(c *Config) {
		c.BaseDelay = base
		c.MaxDelay = maxDelay
	}
}

func WithBackoffJitter(jitter bool) ConfigFunc {
	return func(c *Config) {
		c.BackoffJitter = jitter
	}
}

func WithDispatchTimeout(timeout time.Duration) ConfigFunc {
	return func(c *Config) {
		c.DispatchTimeout = timeout
	}
}

func WithOwnerID(ownerID string) ConfigFunc {
	return func(c *Config) {
		c.OwnerID = ownerID
	}
}

func WithIdentifierKeys(keys ...string) ConfigFunc {
	return func(c *Config) {
		c.IdentifierKeys = keys
	}
}

func WithDryRun(dryRun bool) ConfigFunc {
	return func(c *Config) {
		c.DryRun = dryRun
	}
}

func WithMaintenance(enabled bool) ConfigFunc {
	return func(c *Config) {
		c.MaintenanceEnabled = enabled
	}
}

func WithDSN(dsn string) ConfigFunc {
	return func(c *Config) {
		c.DSN = dsn
	}
}

func WithTLSConfig(tlsConfig *tls.Config) ConfigFunc {
	return func(c *Config) {
		c.TLSConfig = tlsConfig
	}
}

func WithMaxConns(maxConns int32) ConfigFunc {
	return func(c *Config) {
		c.MaxConns = maxConns
	}
}
