package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name string
		err  error
		kind outbox.ErrorKind
	}{
		{name: "unclassified", err: cause, kind: outbox.KindTransient},
		{name: "deadline", err: context.DeadlineExceeded, kind: outbox.KindTransient},
		{name: "transient", err: outbox.Transient(cause), kind: outbox.KindTransient},
		{name: "permanent", err: outbox.Permanent(cause), kind: outbox.KindPermanent},
		{name: "validation", err: outbox.Validation(cause), kind: outbox.KindValidation},
		{name: "wrapped permanent", err: fmt.Errorf("upsert res.partner: %w", outbox.Permanent(cause)), kind: outbox.KindPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, outbox.KindOf(tc.err))
		})
	}

	t.Run("classification keeps the cause", func(t *testing.T) {
		err := outbox.Permanent(cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "permanent: boom", err.Error())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, outbox.Transient(nil))
		assert.NoError(t, outbox.Permanent(nil))
		assert.NoError(t, outbox.Validation(nil))
	})

	t.Run("only transient is retryable", func(t *testing.T) {
		assert.True(t, outbox.KindTransient.Retryable())
		assert.False(t, outbox.KindPermanent.Retryable())
		assert.False(t, outbox.KindValidation.Retryable())
		assert.Equal(t, "validation", outbox.KindValidation.String())
	})
}
