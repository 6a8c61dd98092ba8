package provider

import (
	"fmt"

	"github.com/antoniostano/codeforge/internal/reliability"
)

// Error is a failed call to an upstream model.
type Error struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s provider status %d: %s", e.Provider, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s provider status %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s provider: %s", e.Provider, e.Detail)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsRetryable() bool { return e.Retryable }

func statusError(provider string, code int, detail string) *Error {
	return &Error{
		Provider:   provider,
		StatusCode: code,
		Retryable:  reliability.IsRetryableHTTPStatus(code),
		Detail:     detail,
	}
}

func transportError(provider string, err error) *Error {
	return &Error{
		Provider:  provider,
		Retryable: reliability.IsRetryableTransportError(err),
		Err:       err,
	}
}
