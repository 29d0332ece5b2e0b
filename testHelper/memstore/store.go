// Package memstore is an in-memory outboxdb.OutboxDB with the lease semantics of the
// Postgres store. Safe for concurrent access. Intended for unit tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

var _ outboxdb.OutboxDB = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	records map[int64]*outboxdb.Record
	keys    map[string]int64
	nextID  int64

	// ClaimErr, when set, is returned by ClaimBatch and PeekEligible.
	ClaimErr error
	// CommitHook runs before every commit; a non-nil error aborts the commit.
	CommitHook func(id int64, status outboxdb.Status) error
}

func New(clock clockwork.Clock) *Store {
	return &Store{
		clock:   clock,
		records: make(map[int64]*outboxdb.Record),
		keys:    make(map[string]int64),
	}
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) eligible(rec *outboxdb.Record, now time.Time) bool {
	switch rec.Status {
	case outboxdb.StatusQueued:
		return rec.LeaseExpiresAt == nil || !rec.LeaseExpiresAt.After(now)
	case outboxdb.StatusProcessing:
		return rec.LeaseExpiresAt != nil && rec.LeaseExpiresAt.Before(now)
	}
	return false
}

// candidates returns eligible records in claim order. Caller holds mu.
func (s *Store) candidates(limit int) []*outboxdb.Record {
	now := s.now()
	var out []*outboxdb.Record
	for _, rec := range s.records {
		if s.eligible(rec, now) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b *outboxdb.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

func (s *Store) ClaimBatch(_ context.Context, ownerID string, batchSize int, leaseTimeout time.Duration) ([]outboxdb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ClaimErr != nil {
		return nil, s.ClaimErr
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("claim batch size must be positive, got %d", batchSize)
	}

	now := s.now()
	expires := now.Add(leaseTimeout)
	claimed := s.candidates(batchSize)
	out := make([]outboxdb.Record, 0, len(claimed))
	for _, rec := range claimed {
		if rec.Status == outboxdb.StatusProcessing {
			rec.Attempts++
		}
		owner := ownerID
		lease := expires
		rec.Status = outboxdb.StatusProcessing
		rec.LeaseOwner = &owner
		rec.LeaseExpiresAt = &lease
		rec.UpdatedAt = now
		out = append(out, clone(rec))
	}

	return out, nil
}

func (s *Store) PeekEligible(_ context.Context, limit int) ([]outboxdb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ClaimErr != nil {
		return nil, s.ClaimErr
	}

	var out []outboxdb.Record
	for _, rec := range s.candidates(limit) {
		out = append(out, clone(rec))
	}

	return out, nil
}

func (s *Store) CommitDone(_ context.Context, id int64, ownerID string, attempts int) error {
	return s.commit(id, ownerID, outboxdb.StatusDone, func(rec *outboxdb.Record, now time.Time) {
		rec.Attempts = attempts
		rec.LeaseExpiresAt = nil
		rec.ProcessedAt = &now
	})
}

func (s *Store) CommitRequeue(_ context.Context, id int64, ownerID string, attempts int, notBefore time.Time, lastError string) error {
	return s.commit(id, ownerID, outboxdb.StatusQueued, func(rec *outboxdb.Record, _ time.Time) {
		gate := notBefore.UTC()
		rec.Attempts = attempts
		rec.LastError = &lastError
		rec.LeaseExpiresAt = &gate
	})
}

func (s *Store) CommitFailed(_ context.Context, id int64, ownerID string, attempts int, lastError string) error {
	return s.commit(id, ownerID, outboxdb.StatusFailed, func(rec *outboxdb.Record, now time.Time) {
		rec.Attempts = attempts
		rec.LastError = &lastError
		rec.LeaseExpiresAt = nil
		rec.ProcessedAt = &now
	})
}

func (s *Store) commit(id int64, ownerID string, status outboxdb.Status, apply func(rec *outboxdb.Record, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CommitHook != nil {
		if err := s.CommitHook(id, status); err != nil {
			return err
		}
	}

	rec, ok := s.records[id]
	if !ok || rec.Status != outboxdb.StatusProcessing || rec.Owner() != ownerID {
		return fmt.Errorf("updating record %d to %s: %w", id, status, outboxdb.ErrLeaseLost)
	}

	now := s.now()
	rec.Status = status
	rec.LeaseOwner = nil
	rec.UpdatedAt = now
	apply(rec, now)

	return nil
}

// Insert ignores db, records are stored in memory.
func (s *Store) Insert(_ context.Context, _ bun.IDB, records ...*outboxdb.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, record := range records {
		if _, dup := s.keys[record.IdempotencyKey]; dup {
			continue
		}
		s.nextID++
		now := s.now()
		cp := clone(record)
		cp.ID = s.nextID
		if cp.Status == "" {
			cp.Status = outboxdb.StatusQueued
		}
		if cp.CreatedAt.IsZero() {
			// Distinct timestamps keep claim order equal to insert order.
			cp.CreatedAt = now.Add(time.Duration(s.nextID) * time.Microsecond)
		}
		cp.UpdatedAt = now
		if cp.Payload == nil {
			cp.Payload = outboxdb.Payload{}
		}
		s.records[cp.ID] = &cp
		s.keys[cp.IdempotencyKey] = cp.ID
		record.ID = cp.ID
		inserted++
	}

	return inserted, nil
}

func (s *Store) Get(_ context.Context, id int64) (outboxdb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return outboxdb.Record{}, fmt.Errorf("record %d: %w", id, outboxdb.ErrRecordNotFound)
	}

	return clone(rec), nil
}

// Update applies fn to the stored record, e.g. to simulate another worker's claim.
func (s *Store) Update(id int64, fn func(rec *outboxdb.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		fn(rec)
	}
}

func (s *Store) ReIndex(context.Context) error {
	return nil
}

func (s *Store) CountExpiredLeases(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, rec := range s.records {
		if rec.Status == outboxdb.StatusProcessing && rec.LeaseExpiresAt != nil && rec.LeaseExpiresAt.Before(now) {
			count++
		}
	}

	return count, nil
}

func (s *Store) CountByStatus(context.Context) (map[outboxdb.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[outboxdb.Status]int{
		outboxdb.StatusQueued:     0,
		outboxdb.StatusProcessing: 0,
		outboxdb.StatusDone:       0,
		outboxdb.StatusFailed:     0,
	}
	for _, rec := range s.records {
		counts[rec.Status]++
	}

	return counts, nil
}

func clone(rec *outboxdb.Record) outboxdb.Record {
	cp := *rec
	cp.Payload = make(outboxdb.Payload, len(rec.Payload))
	for k, v := range rec.Payload {
		cp.Payload[k] = v
	}
	if rec.LeaseOwner != nil {
		v := *rec.LeaseOwner
		cp.LeaseOwner = &v
	}
	if rec.LeaseExpiresAt != nil {
		v := *rec.LeaseExpiresAt
		cp.LeaseExpiresAt = &v
	}
	if rec.LastError != nil {
		v := *rec.LastError
		cp.LastError = &v
	}
	if rec.ProcessedAt != nil {
		v := *rec.ProcessedAt
		cp.ProcessedAt = &v
	}

	return cp
}
