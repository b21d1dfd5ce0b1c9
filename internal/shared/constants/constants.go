package constants

import "time"

const (
	// DefaultFetchTimeout bounds a single probe of the target, redirects included.
	DefaultFetchTimeout = 20 * time.Second
	// MinFetchTimeout is the lower bound accepted from flags and config.
	MinFetchTimeout = 1 * time.Second
	// DrainLimitBytes caps how much of a response body is read before closing it.
	DrainLimitBytes = 64 * 1024
	// MaxRequestBodyBytes caps JSON request bodies accepted by the API.
	MaxRequestBodyBytes = 1 << 20
)

const (
	// MissingHeaderValue is displayed for every header the target did not send.
	MissingHeaderValue = "Not Set / Missing"
)
