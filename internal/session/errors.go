package session

import (
	"errors"
	"fmt"
)

// ErrAckTimeout means the server did not acknowledge a frame within the
// configured budget.
var ErrAckTimeout = errors.New("timed out waiting for ack")

// ErrClosed means the session was explicitly closed.
var ErrClosed = errors.New("session closed")

// ErrNotAuthenticated means a frame required a live authenticated
// connection and there was none.
var ErrNotAuthenticated = errors.New("not authenticated")

// ConnectError wraps a transport failure. These are recovered locally by the
// reconnect loop and surface only through send paths that need a live
// connection.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError carries a server-pushed auth failure. BAD_AUTH is surfaced, not
// retried beyond the normal reconnect cycle.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Code, e.Message)
}

// ExhaustedError means a bounded retry loop gave up. It wraps the last
// error seen so callers can still inspect the cause.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
