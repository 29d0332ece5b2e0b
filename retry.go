package outbox

import (
	"fmt"
	"time"
)

// RetryPolicy turns the outcome of one dispatch into the record's next state.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
}

// Decision is what the Acknowledger commits for one record.
type Decision struct {
	Ack Acknowledgement
	// Attempts is the record's attempt count including the attempt just made.
	Attempts int
	// NotBefore gates a requeued record, zero otherwise.
	NotBefore time.Time
	LastError string
	Kind      ErrorKind
}

// Decide maps the dispatch error of rec to success, requeue or quarantine.
// rec.Attempts is the count before this attempt.
func (p RetryPolicy) Decide(rec Record, err error, now time.Time) Decision {
	attempts := rec.Attempts + 1
	if err == nil {
		return Decision{Ack: Success, Attempts: attempts}
	}

	kind := KindOf(err)
	if !kind.Retryable() {
		return Decision{Ack: Failure, Attempts: attempts, LastError: err.Error(), Kind: kind}
	}

	if attempts >= p.MaxAttempts {
		return Decision{
			Ack:       Failure,
			Attempts:  attempts,
			LastError: fmt.Sprintf("%v after %d attempts: %v", ErrRetryCeiling, attempts, err),
			Kind:      kind,
		}
	}

	return Decision{
		Ack:       Retry,
		Attempts:  attempts,
		NotBefore: now.Add(p.Backoff.Delay(rec.Attempts)),
		LastError: err.Error(),
		Kind:      kind,
	}
}

// Exhausted reports whether rec spent its attempts on lease expiries alone, a worker
// crashed on it every time. Such a record is quarantined without another dispatch.
func (p RetryPolicy) Exhausted(rec Record) (Decision, bool) {
	if rec.Attempts < p.MaxAttempts {
		return Decision{}, false
	}

	return Decision{
		Ack:       Failure,
		Attempts:  rec.Attempts,
		LastError: fmt.Sprintf("%v: lease expired %d times without a recorded outcome", ErrRetryCeiling, rec.Attempts),
		Kind:      KindPermanent,
	}, true
}
