package outbox

import (
	"context"
	"fmt"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

type Acknowledgement struct {
	Status AckStatus
}

type AckStatus = string

var (
	success AckStatus = "success"
	retry   AckStatus = "retry"
	failed  AckStatus = "failed"
)

var (
	Success = Acknowledgement{success}
	Retry   = Acknowledgement{retry}
	Failure = Acknowledgement{failed}
)

func (a Acknowledgement) String() string {
	return a.Status
}

// Acknowledger commits the terminal state of one attempt.
// It returns ErrLeaseLost when another worker reclaimed the record in the meantime.
type Acknowledger interface {
	Acknowledge(ctx context.Context, rec Record, decision Decision) error
}

type ackAcknowledgement struct {
	repository outboxdb.OutboxDB
	ownerID    string
}

func newAcknowledgement(repository outboxdb.OutboxDB, ownerID string) Acknowledger {
	return &ackAcknowledgement{
		repository: repository,
		ownerID:    ownerID,
	}
}

func (a *ackAcknowledgement) Acknowledge(ctx context.Context, rec Record, decision Decision) error {
	switch decision.Ack {
	case Success:
		return a.repository.CommitDone(ctx, rec.ID, a.ownerID, decision.Attempts)
	case Retry:
		return a.repository.CommitRequeue(ctx, rec.ID, a.ownerID, decision.Attempts, decision.NotBefore, decision.LastError)
	case Failure:
		return a.repository.CommitFailed(ctx, rec.ID, a.ownerID, decision.Attempts, decision.LastError)
	default:
		return fmt.Errorf("unknown acknowledgement %q for record %d", decision.Ack, rec.ID)
	}
}
