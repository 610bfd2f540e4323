// Package session models the renderer windows the native side talks to.
//
// A Session is the dispatcher's view of one window: its id, the handle
// frames are sent through, and a one-shot readiness gate that opens
// when the window completes its init handshake.  The Registry is the
// host's view: it assigns ids and tracks per-window user state.
package session

import (
	"context"
	"sync"

	"deskbridge/internal/errors"
	"deskbridge/internal/protocol"
)

// Sender delivers frames to one renderer window.
type Sender interface {
	Send(ctx context.Context, f protocol.Frame) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(ctx context.Context, f protocol.Frame) error

// Send calls fn(ctx, f).
func (fn SenderFunc) Send(ctx context.Context, f protocol.Frame) error { return fn(ctx, f) }

// Session is one registered window.
//
// State machine: registered (not ready) → registered (ready) → closed.
// Ready happens at most once; there is no way back to not-ready.
type Session struct {
	ID     protocol.WindowID
	Sender Sender

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a not-yet-ready session.
func New(id protocol.WindowID, sender Sender) *Session {
	return &Session{
		ID:     id,
		Sender: sender,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// MarkReady opens the readiness gate.  It reports whether this call
// was the one that opened it.
func (s *Session) MarkReady() bool {
	first := false
	s.readyOnce.Do(func() {
		close(s.ready)
		first = true
	})
	return first
}

// IsReady reports whether the init handshake has happened.
func (s *Session) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Ready is closed once the window is ready.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Close ends the session and releases every Wait.  Safe to call twice.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Wait blocks until the window is ready.  It fails with
// [errors.ErrWindowClosed] if the session closes first, or with the
// context's error.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.closed:
		return errors.ErrWindowClosed
	default:
	}
	select {
	case <-s.ready:
		return nil
	case <-s.closed:
		return errors.ErrWindowClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
