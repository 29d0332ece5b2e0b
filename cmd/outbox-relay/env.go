package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	outbox "github.com/TimKotowski/pg-outbox-relay"
	"github.com/TimKotowski/pg-outbox-relay/downstream/kafkasink"
	"github.com/TimKotowski/pg-outbox-relay/downstream/odoo"
)

const (
	downstreamOdoo  = "odoo"
	downstreamKafka = "kafka"
)

var errUsage = errors.New("usage")

// relayEnv is everything the relay reads from the environment.
type relayEnv struct {
	DSN           string
	Downstream    string
	Odoo          odoo.Config
	Kafka         kafkasink.Config
	StatusAddr    string
	StrictSchemas bool

	PollInterval    time.Duration
	MaxAttempts     int
	LeaseTimeout    time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DispatchTimeout time.Duration
	BackoffJitter   bool
}

func loadEnv(lookup func(string) string) (relayEnv, error) {
	getEnv := func(key, fallback string) string {
		if v := lookup(key); v != "" {
			return v
		}
		return fallback
	}

	defaults := outbox.NewConfig()
	env := relayEnv{
		DSN:        getEnv("SUPABASE_DB_URL", lookup("OUTBOX_DSN")),
		Downstream: strings.ToLower(getEnv("DOWNSTREAM", downstreamOdoo)),
		Odoo: odoo.Config{
			URL:              getEnv("ODOO_URL", "http://localhost:8069"),
			DB:               getEnv("ODOO_DB_NAME", "odoo"),
			Login:            getEnv("ODOO_USER", "admin"),
			Password:         lookup("ODOO_PASSWORD"),
			IdempotencyField: lookup("ODOO_IDEMPOTENCY_FIELD"),
		},
		Kafka: kafkasink.Config{
			TopicPrefix: lookup("KAFKA_TOPIC_PREFIX"),
		},
		StatusAddr: lookup("STATUS_ADDR"),
	}
	if brokers := lookup("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				env.Kafka.Brokers = append(env.Kafka.Brokers, b)
			}
		}
	}

	if env.DSN == "" {
		return env, fmt.Errorf("%w: SUPABASE_DB_URL or OUTBOX_DSN must be set", errUsage)
	}
	switch env.Downstream {
	case downstreamOdoo:
		if env.Odoo.Password == "" {
			return env, fmt.Errorf("%w: ODOO_PASSWORD must be set", errUsage)
		}
	case downstreamKafka:
		if len(env.Kafka.Brokers) == 0 {
			return env, fmt.Errorf("%w: KAFKA_BROKERS must be set", errUsage)
		}
	default:
		return env, fmt.Errorf("%w: DOWNSTREAM must be %q or %q, got %q", errUsage, downstreamOdoo, downstreamKafka, env.Downstream)
	}

	var errs []error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"OUTBOX_POLL_INTERVAL", defaults.PollInterval, &env.PollInterval},
		{"OUTBOX_LEASE_TIMEOUT", defaults.LeaseTimeout, &env.LeaseTimeout},
		{"OUTBOX_BASE_DELAY", defaults.BaseDelay, &env.BaseDelay},
		{"OUTBOX_MAX_DELAY", defaults.MaxDelay, &env.MaxDelay},
		{"OUTBOX_DISPATCH_TIMEOUT", defaults.DispatchTimeout, &env.DispatchTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(lookup(d.key), d.fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
		*d.dst = v
	}

	var err error
	if env.MaxAttempts, err = parseInt(lookup("OUTBOX_MAX_ATTEMPTS"), defaults.MaxAttempts); err != nil {
		errs = append(errs, fmt.Errorf("OUTBOX_MAX_ATTEMPTS: %w", err))
	}
	if env.BackoffJitter, err = parseBool(lookup("OUTBOX_BACKOFF_JITTER")); err != nil {
		errs = append(errs, fmt.Errorf("OUTBOX_BACKOFF_JITTER: %w", err))
	}
	if env.StrictSchemas, err = parseBool(lookup("OUTBOX_STRICT_SCHEMAS")); err != nil {
		errs = append(errs, fmt.Errorf("OUTBOX_STRICT_SCHEMAS: %w", err))
	}
	if len(errs) > 0 {
		return env, fmt.Errorf("%w: %w", errUsage, errors.Join(errs...))
	}

	return env, nil
}

// configFuncs turns the environment into outbox config options.
func (e relayEnv) configFuncs() []outbox.ConfigFunc {
	return []outbox.ConfigFunc{
		outbox.WithDSN(e.DSN),
		outbox.WithPollInterval(e.PollInterval),
		outbox.WithMaxAttempts(e.MaxAttempts),
		outbox.WithLeaseTimeout(e.LeaseTimeout),
		outbox.WithBackoff(e.BaseDelay, e.MaxDelay),
		outbox.WithBackoffJitter(e.BackoffJitter),
		outbox.WithDispatchTimeout(e.DispatchTimeout),
	}
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45").
func parseDuration(v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func parseInt(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
