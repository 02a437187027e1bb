package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for upstream call outcomes.
var (
	// ErrSessionExpired means the upstream no longer honors the session
	// token (login redirect or HTML response). Rotate and retry once.
	ErrSessionExpired = errors.New("upstream session expired")

	// ErrBadContentType means the upstream returned something other than
	// the expected JSON. Not retryable.
	ErrBadContentType = errors.New("unexpected upstream content type")

	// ErrUpstreamFailure means the upstream explicitly reported an
	// unsuccessful call in its payload. Not retryable.
	ErrUpstreamFailure = errors.New("upstream reported failure")
)

// ErrorKind classifies an upstream error for the worker's retry policy.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
	KindSessionExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "transient"
	}
}

// Classify maps an error from a client call onto the retry taxonomy.
// Network errors, timeouts and 5xx responses are transient; malformed
// responses and explicit upstream failures are permanent.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrBadContentType), errors.Is(err, ErrUpstreamFailure):
		return KindPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 500 || statusErr.Code == 429 {
			return KindTransient
		}
		return KindPermanent
	}

	return KindTransient
}

// StatusError carries a non-2xx upstream HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}
