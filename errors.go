package outbox

import (
	"errors"
	"fmt"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

var (
	// ErrStoreUnavailable wraps claim failures. The poll loop logs it and tries again next interval.
	ErrStoreUnavailable = errors.New("outbox store unavailable")
	// ErrLeaseLost signals that another worker reclaimed the record before the commit.
	ErrLeaseLost = outboxdb.ErrLeaseLost
	// ErrMissingIdentifier is returned for delete records without an identifier in the payload.
	ErrMissingIdentifier = errors.New("delete payload has no identifier")
	// ErrUnknownOperation is returned for records whose operation is neither upsert nor delete.
	ErrUnknownOperation = errors.New("unknown outbox operation")
	// ErrUnknownEntity is returned when no payload schema is registered for the target entity.
	ErrUnknownEntity = errors.New("no payload schema for target entity")
	// ErrInvalidPayload is returned when a payload does not match its schema.
	ErrInvalidPayload = errors.New("payload does not match schema")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid outbox config")
	// ErrRetryCeiling is recorded as the cause once a record spent all of its attempts.
	ErrRetryCeiling = errors.New("retry ceiling reached")
)

// ErrorKind tells the retry engine what to do with a failed dispatch.
type ErrorKind int

const (
	// KindTransient failures are requeued with backoff until the retry ceiling.
	KindTransient ErrorKind = iota
	// KindPermanent failures were rejected by the downstream and are quarantined immediately.
	KindPermanent
	// KindValidation failures never reached the downstream, the record itself is malformed.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindValidation:
		return "validation"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Retryable reports whether a failure of this kind may be requeued.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// DispatchError tags a failure with its ErrorKind.
type DispatchError struct {
	Kind ErrorKind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	return classify(KindTransient, err)
}

func Permanent(err error) error {
	return classify(KindPermanent, err)
}

func Validation(err error) error {
	return classify(KindValidation, err)
}

func classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &DispatchError{Kind: kind, Err: err}
}

// KindOf resolves the ErrorKind of err. Unclassified errors, timeouts included, are transient.
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}

	return KindTransient
}
