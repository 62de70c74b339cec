// Package apierr classifies failures of the external HTTP APIs (Twitch Helix,
// Reddit) and holds the retry policy both clients share.
//
// Every error a client returns after its retries is a transient external
// failure from the workers' point of view: it is logged, the affected item is
// skipped and the next polling round tries again.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ErrorClass represents whether an error should be retried or not.
type ErrorClass int

const (
	// ClassRetryable indicates the call should be retried (transient errors).
	ClassRetryable ErrorClass = iota
	// ClassFatal indicates the call should not be retried (permanent errors).
	ClassFatal
	// ClassUnknown indicates the error type cannot be determined.
	ClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StatusError is returned for any non-2xx response of an external API.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d %s", e.Service, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: unexpected status %d %s: %s", e.Service, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// maxBodySnippet bounds how much of an error response body ends up in logs.
const maxBodySnippet = 512

// CheckResponse returns a *StatusError for non-2xx responses and nil otherwise.
// The body is read (up to a small limit) but not closed.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Classify sorts an external call failure into retryable vs fatal.
//
// Fatal: context cancellation, 4xx responses other than 408/429.
// Retryable: 5xx, 408, 429, network errors, timeouts, truncated bodies.
// Errors that match nothing are treated as retryable.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests, se.StatusCode == http.StatusRequestTimeout:
			return ClassRetryable
		case se.StatusCode >= 500:
			return ClassRetryable
		default:
			return ClassFatal
		}
	}

	// A rejected token grant surfaces wrapped in *url.Error, which also
	// satisfies net.Error, so it is checked first.
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if re.Response.StatusCode >= 500 || re.Response.StatusCode == http.StatusTooManyRequests {
			return ClassRetryable
		}
		return ClassFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassRetryable
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"invalid character", "cannot unmarshal", "unsupported protocol scheme"} {
		if strings.Contains(lower, pattern) {
			return ClassFatal
		}
	}
	return ClassRetryable
}

// IsRetryable checks if an error should trigger retry logic.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}
