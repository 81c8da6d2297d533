package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindHTTPStatus
	KindConnection
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindConnection:
		return "connection"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// FetchError is returned by Fetch once a request failed for good.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	LastStatus int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempt(s)", e.URL, e.LastStatus, e.Attempts)
	default:
		return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying: timeouts, connection
// errors, 5xx and 429 responses.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTPStatus:
		return isTransientStatus(e.LastStatus)
	default:
		return false
	}
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// classifyTransportError maps a transport error to a FetchError kind.
func classifyTransportError(rawURL string, err error) *FetchError {
	kind := KindConnection

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}

	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}
