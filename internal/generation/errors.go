package generation

import "errors"

var (
	ErrAlreadyActive = errors.New("generation already in progress for this application")
	ErrCancelled     = errors.New("generation cancelled")
)

// CancelOutcome is the result of a cancel request. None of the outcomes
// is an error.
type CancelOutcome int

const (
	CancelCancelled CancelOutcome = iota
	CancelNotFound
	CancelNotOwner
)

func (o CancelOutcome) String() string {
	switch o {
	case CancelCancelled:
		return "cancelled"
	case CancelNotFound:
		return "not_found"
	case CancelNotOwner:
		return "not_owner"
	default:
		return "unknown"
	}
}

type retryableError interface {
	IsRetryable() bool
}

func isRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r) && r.IsRetryable()
}
