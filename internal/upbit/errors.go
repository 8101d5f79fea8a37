package upbit

import (
	"net"

	"github.com/pkg/errors"
)

// Sentinel errors for the well-known exchange failure modes.
var (
	// ErrRateLimited is returned when the exchange answers 429.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnauthorized is returned for invalid API credentials (401/403).
	ErrUnauthorized = errors.New("invalid API credentials")
	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed exchange response")
	// ErrMaxRetriesExceeded is returned when the stream gives up reconnecting.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// APIError is a structured error answer from the exchange.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	return "upbit api error " + e.Name + ": " + e.Message
}

// IsRetryable classifies an error per the execution retry policy: rate limits,
// network failures, timeouts and server-side errors are transient; credential
// and decode failures are fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrMalformedResponse) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// remaining transport-level failures (connection reset, abrupt close)
	// are treated as transient
	return true
}
