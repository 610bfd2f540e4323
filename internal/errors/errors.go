// Package errors provides domain-specific error types for deskbridge.
//
// The sentinels below cover the IPC error taxonomy: unsupported methods,
// missing or closed windows, and unavailable native services.  Errors
// that cross a renderer channel are flattened into an [ErrorObject]
// with [Encode] and rebuilt with [Decode].
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrUnsupportedMethod  = errors.New("unsupported operation")
	ErrNoSuchWindow       = errors.New("no such window")
	ErrWindowClosed       = errors.New("window closed")
	ErrClosed             = errors.New("dispatcher closed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotConnected       = errors.New("not connected")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ── Structured error types ───────────────────────────────────────────

// ChannelError represents a failure on a renderer or relay channel.
type ChannelError struct {
	Op        string // operation: "send", "read", "dial", "upgrade"
	Peer      string // window id or socket address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *ChannelError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *ChannelError) Unwrap() error { return e.Err }

// MethodError ties a failure to the IPC method that produced it.
type MethodError struct {
	Method string
	Err    error
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *MethodError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a ChannelError, automatically detecting retryability
// from the underlying error.
func Wrap(op, peer string, err error) *ChannelError {
	return &ChannelError{
		Op:        op,
		Peer:      peer,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// Unavailable reports that the named native service is not wired.
func Unavailable(service string) error {
	return fmt.Errorf("%w: %s", ErrServiceUnavailable, service)
}

// Unsupported reports an IPC method outside the method table.
func Unsupported(method string) error {
	return &MethodError{Method: method, Err: ErrUnsupportedMethod}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return classifyRetryable(err)
}

// IsGone reports whether err means the peer window went away.
func IsGone(err error) bool {
	return errors.Is(err, ErrNoSuchWindow) || errors.Is(err, ErrWindowClosed) || errors.Is(err, ErrClosed)
}

// classifyRetryable treats a peer that is down or dropped us as worth
// another dial, and a missing socket path or a permission problem as
// final.
func classifyRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return false
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsNotFound && (dnsErr.IsTimeout || dnsErr.Temporary()) //nolint:staticcheck
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use deskbridge/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
