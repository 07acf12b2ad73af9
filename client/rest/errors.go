package rest

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/juju/errors"
)

// ErrStopped is returned by requests issued to, or waiting inside, a stopped
// client.
var ErrStopped = errors.New("rest client is stopped")

// Well-known code and message the exchange uses to report rate limiting.
const (
	rateLimitCode = "TOO_MANY_REQUESTS"
)

// RequestError is returned for every error response other than rate limiting:
// non-2xx HTTP statuses and responses with success=false.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: status %d, code %q: %s", e.StatusCode, e.Code, e.Message)
}

// RateLimitExceeded is returned when the request is still rate limited after
// the retry budget is spent.
type RateLimitExceeded struct {
	// Attempts is the number of HTTP calls made, including the first one.
	Attempts int
	// Period is the period string of the last rate-limit response, if any.
	Period string
	// RetryAfter is the delay the last response asked for.
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf(
		"rate limit exceeded after %d attempts (period %q, retry after %s)",
		e.Attempts, e.Period, e.RetryAfter,
	)
}

// flexCode is an error code which the exchange sends either as a number or as
// a string.
type flexCode string

func (c *flexCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = ""
		return nil
	}

	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return errors.Annotatef(err, "parsing code %s", data)
		}
		*c = flexCode(s)
		return nil
	}

	*c = flexCode(data)
	return nil
}
