package errors

import "errors"

// Domain errors
var (
	// Target errors
	ErrEmptyTarget   = errors.New("target cannot be empty")
	ErrInvalidTarget = errors.New("invalid target URL")

	// Fetch errors
	ErrTLS        = errors.New("tls verification failed")
	ErrConnection = errors.New("connection failed")
	ErrTimeout    = errors.New("request timed out")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
