package testHelper

import (
	"context"
	"sync"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

var _ outbox.DownstreamClient = (*FakeDownstream)(nil)

// FakeDownstream applies mutations to an in-memory system of record keyed by
// idempotency key, so applying the same record twice leaves one entity behind.
type FakeDownstream struct {
	mu      sync.Mutex
	calls   []outbox.Mutation
	applied map[string]outbox.Mutation
	errs    []error

	// OnCall runs before every Upsert and Delete with the call's context.
	OnCall func(ctx context.Context, m outbox.Mutation)

	AuthErr error
}

func NewFakeDownstream() *FakeDownstream {
	return &FakeDownstream{applied: make(map[string]outbox.Mutation)}
}

// FailNext makes the next len(errs) calls return errs in order.
func (f *FakeDownstream) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *FakeDownstream) Authenticate(context.Context) error {
	return f.AuthErr
}

func (f *FakeDownstream) Upsert(ctx context.Context, m outbox.Mutation) error {
	return f.apply(ctx, m)
}

func (f *FakeDownstream) Delete(ctx context.Context, m outbox.Mutation) error {
	return f.apply(ctx, m)
}

func (f *FakeDownstream) apply(ctx context.Context, m outbox.Mutation) error {
	if f.OnCall != nil {
		f.OnCall(ctx, m)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.applied[m.IdempotencyKey] = m

	return nil
}

func (f *FakeDownstream) Calls() []outbox.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outbox.Mutation(nil), f.calls...)
}

// Applied returns the downstream state: one mutation per idempotency key.
func (f *FakeDownstream) Applied() map[string]outbox.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]outbox.Mutation, len(f.applied))
	for k, v := range f.applied {
		out[k] = v
	}
	return out
}

// CallsByKey groups the calls made per idempotency key.
func (f *FakeDownstream) CallsByKey() map[string][]outbox.Mutation {
	return GroupBy(f.Calls(), func(m outbox.Mutation) string {
		return m.IdempotencyKey
	})
}
