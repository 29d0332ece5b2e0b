package outbox_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

func TestConfig(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		conf := outbox.NewConfig()
		assert.NoError(t, conf.Validate())
		assert.Equal(t, 100, conf.BatchSize)
		assert.Equal(t, 30*time.Second, conf.PollInterval)
		assert.Equal(t, 10*time.Minute, conf.LeaseTimeout)
		assert.Equal(t, 5, conf.MaxAttempts)

		policy := conf.RetryPolicy()
		assert.Equal(t, 5, policy.MaxAttempts)
		assert.Equal(t, 10*time.Second, policy.Backoff.Base)
		assert.Equal(t, 300*time.Second, policy.Backoff.Max)
		assert.False(t, policy.Backoff.Jitter)
	})

	invalid := map[string]outbox.ConfigFunc{
		"zero batch size":         outbox.WithBatchSize(0),
		"zero lease timeout":      outbox.WithLeaseTimeout(0),
		"zero max attempts":       outbox.WithMaxAttempts(0),
		"negative delay":          outbox.WithBackoff(-time.Second, time.Minute),
		"base above max":          outbox.WithBackoff(time.Hour, time.Minute),
		"negative poll interval":  outbox.WithPollInterval(-time.Second),
		"dispatch outlasts lease": outbox.WithDispatchTimeout(11 * time.Minute),
	}
	for name, opt := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, outbox.NewConfig(opt).Validate(), outbox.ErrInvalidConfig)
		})
	}
}
