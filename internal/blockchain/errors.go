package blockchain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindNetwork           Kind = "network"
	KindAuthorization     Kind = "authorization"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotFound          Kind = "not_found"
	KindUnknown           Kind = "unknown"
)

// RemoteError is the typed failure of a single node call.
type RemoteError struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf reports the failure kind of err, KindUnknown if it is not a RemoteError.
func KindOf(err error) Kind {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is a network-level failure that leaves the
// chain untouched.
func IsTransient(err error) bool {
	return KindOf(err) == KindNetwork
}

// IsRateLimited reports whether the node refused the call with HTTP 429.
func IsRateLimited(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusTooManyRequests
}

func transportError(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Kind: KindNetwork, Err: err}
}

func statusError(op string, statusCode int, body string) *RemoteError {
	kind := KindUnknown
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		kind = KindNetwork
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		kind = KindAuthorization
	}
	return &RemoteError{Op: op, Kind: kind, StatusCode: statusCode, Err: errors.New(body)}
}

func nodeError(op string, message string) *RemoteError {
	return &RemoteError{Op: op, Kind: classifyNodeMessage(message), Err: errors.New(message)}
}

func classifyNodeMessage(message string) Kind {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "sufficient funds"), strings.Contains(m, "insufficient"):
		return KindInsufficientFunds
	case strings.Contains(m, "missing required"),
		strings.Contains(m, "irrelevant signature"),
		strings.Contains(m, "authority"):
		return KindAuthorization
	case strings.Contains(m, "does not exist"),
		strings.Contains(m, "unknown account"),
		strings.Contains(m, "could not find"):
		return KindNotFound
	case strings.Contains(m, "timeout"), strings.Contains(m, "timed out"):
		return KindNetwork
	}
	return KindUnknown
}
