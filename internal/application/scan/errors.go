package scan

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/khanhnv2901/headerscope/internal/checker"
	sharederrors "github.com/khanhnv2901/headerscope/internal/shared/errors"
)

// ErrorKind categorizes a failed scan for clients and metrics
type ErrorKind string

const (
	KindEmpty      ErrorKind = "empty"
	KindInvalid    ErrorKind = "invalid"
	KindTLS        ErrorKind = "tls"
	KindConnection ErrorKind = "connection"
	KindTimeout    ErrorKind = "timeout"
	KindInternal   ErrorKind = "internal"
)

// Error is a scan failure with a message that is safe to show to callers.
// The underlying cause is kept for logging only.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func targetError(err error) *Error {
	if errors.Is(err, sharederrors.ErrEmptyTarget) {
		return &Error{
			Kind:    KindEmpty,
			Status:  http.StatusBadRequest,
			Message: "URL must not be empty.",
			Err:     err,
		}
	}
	return &Error{
		Kind:    KindInvalid,
		Status:  http.StatusBadRequest,
		Message: "URL is not valid.",
		Err:     err,
	}
}

func fetchError(fe *checker.FetchError, timeout time.Duration) *Error {
	switch fe.Kind {
	case checker.FetchErrorTLS:
		return &Error{
			Kind:    KindTLS,
			Status:  http.StatusBadRequest,
			Message: "SSL Error: the target's security certificate is invalid or expired.",
			Err:     fe,
		}
	case checker.FetchErrorConnection:
		return &Error{
			Kind:    KindConnection,
			Status:  http.StatusBadRequest,
			Message: "Connection Failed: the website is unreachable or the domain is wrong.",
			Err:     fe,
		}
	case checker.FetchErrorTimeout:
		return &Error{
			Kind:    KindTimeout,
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("Timeout: the server took too long to respond (more than %s).", formatSeconds(timeout)),
			Err:     fe,
		}
	default:
		return &Error{
			Kind:    KindInternal,
			Status:  http.StatusInternalServerError,
			Message: "An internal error occurred while processing the request. Please try again later.",
			Err:     fe,
		}
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}
