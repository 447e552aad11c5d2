package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrSearchUnavailable       = errors.New("search unavailable")
	ErrQueueNotFound           = errors.New("queue not found")
	ErrTenantRequired          = errors.New("tenant id is required")
	ErrMalformedEnvelope       = errors.New("malformed task envelope")
	ErrUnknownTaskType         = errors.New("unknown task type")
	ErrDeadLetterNotConfigured = errors.New("dead-letter target not configured")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrForbidden               = errors.New("forbidden")

	// ErrTransient marks a failure of the infrastructure rather than of the
	// task: an unreachable or overloaded dependency, a timeout or an open
	// circuit breaker. It is not counted against the retry budget.
	ErrTransient = errors.New("transient failure")
)

// PermanentError marks a task failure that redelivery cannot fix.
type PermanentError struct {
	Reason string
	Err    error
}

func NewPermanentError(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err wraps ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
