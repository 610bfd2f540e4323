// Package dispatch multiplexes request/response traffic between the
// native side and any number of renderer windows over one frame
// channel per window.
//
// Inbound requests are decoded into typed calls and answered with
// exactly one response or requestError frame.  Outbound requests get a
// correlation id that is unique among pending calls, and are settled by
// the matching response or requestError, by window removal, or by the
// caller's context.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"deskbridge/internal/errors"
	"deskbridge/internal/ids"
	"deskbridge/internal/metrics"
	"deskbridge/internal/protocol"
	"deskbridge/internal/session"
	"deskbridge/util"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIDs sets the correlation id generator (default: shared counter).
func WithIDs(g ids.Generator) Option {
	return func(d *Dispatcher) { d.ids = g }
}

// WithLogger sets the logger (default: discard).
func WithLogger(l *util.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics sets the metrics collector (default: none).
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

type result struct {
	value json.RawMessage
	err   error
}

// pendingCall is settled exactly once, by whoever removes it from the
// pending table.
type pendingCall struct {
	session *session.Session
	method  protocol.Outbound
	done    chan result
}

// Dispatcher owns the window session table and the pending-call table.
type Dispatcher struct {
	handler protocol.Handler
	ids     ids.Generator
	log     *util.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	sessions map[protocol.WindowID]*session.Session
	pending  map[string]*pendingCall
	closed   bool
}

// New creates a dispatcher that serves inbound requests with h.
func New(h protocol.Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler:  h,
		sessions: make(map[protocol.WindowID]*session.Session),
		pending:  make(map[string]*pendingCall),
	}
	for _, o := range opts {
		o(d)
	}
	if d.ids == nil {
		d.ids = ids.NewCounter()
	}
	if d.log == nil {
		d.log = util.Nop()
	}
	return d
}

// ── Window sessions ──────────────────────────────────────────────────

// RegisterWindow creates a not-yet-ready session for id.  Registering
// an id that is already present replaces its session; the old session
// is closed and its pending calls fail with [errors.ErrWindowClosed].
func (d *Dispatcher) RegisterWindow(id protocol.WindowID, sender session.Sender) *session.Session {
	s := session.New(id, sender)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		s.Close()
		return s
	}
	old := d.sessions[id]
	d.sessions[id] = s
	var orphaned []*pendingCall
	if old != nil {
		orphaned = d.takeSessionLocked(old)
	}
	d.mu.Unlock()

	if old != nil {
		d.log.Verbose("%s re-registered, %d pending call(s) failed", id, len(orphaned))
		old.Close()
		d.failAll(orphaned, errors.ErrWindowClosed)
	} else {
		d.log.Verbose("%s registered", id)
		d.metrics.WindowOpened()
	}
	return s
}

// UnregisterWindow removes the session for id.  Every pending call
// addressed to it fails with [errors.ErrWindowClosed].  Unknown ids are
// ignored.
func (d *Dispatcher) UnregisterWindow(id protocol.WindowID) {
	d.mu.Lock()
	s, ok := d.sessions[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.sessions, id)
	orphaned := d.takeSessionLocked(s)
	d.mu.Unlock()

	s.Close()
	d.failAll(orphaned, errors.ErrWindowClosed)
	d.metrics.WindowClosed()
	d.log.Verbose("%s unregistered, %d pending call(s) failed", id, len(orphaned))
}

func (d *Dispatcher) session(id protocol.WindowID) *session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[id]
}

// ── Inbound ──────────────────────────────────────────────────────────

// DispatchInbound serves one request frame from window id and sends
// exactly one reply to the window's current send handle.  Frames from
// unknown windows are dropped.
func (d *Dispatcher) DispatchInbound(ctx context.Context, id protocol.WindowID, f protocol.Frame) {
	s := d.session(id)
	if s == nil {
		d.log.Debug("dropping %s request %s from unknown %s", f.Type, f.ID, id)
		d.metrics.FrameDropped()
		return
	}
	d.metrics.InboundRequest(f.Type)

	value, err := d.invoke(ctx, s, f)

	var reply protocol.Frame
	if err == nil {
		reply, err = protocol.NewResponse(f.ID, value)
	}
	if err != nil {
		d.metrics.HandlerError()
		d.log.Verbose("%s %s (%s) failed: %v", id, f.Type, f.ID, err)
		reply = protocol.NewError(f.ID, err)
	}

	cur := d.session(id)
	if cur == nil {
		d.log.Debug("%s went away before %s (%s) was answered", id, f.Type, f.ID)
		return
	}
	if err := cur.Sender.Send(ctx, reply); err != nil {
		d.log.Warn("reply %s to %s: %v", f.ID, id, err)
		d.metrics.RecordError(err.Error())
	}
}

func (d *Dispatcher) invoke(ctx context.Context, s *session.Session, f protocol.Frame) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanic()
			d.log.Error("%s handler panicked: %v", f.Type, r)
			value, err = nil, fmt.Errorf("%s: handler panic: %v", f.Type, r)
		}
	}()

	call, err := protocol.Decode(f.Type, f.Args)
	if err != nil {
		return nil, err
	}
	if _, ok := call.(protocol.Init); ok && s.MarkReady() {
		d.log.Verbose("%s ready", s.ID)
	}
	if g, ok := call.(protocol.ReadyGated); ok && g.RequiresReady() {
		if err := s.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return protocol.Invoke(ctx, d.handler, s.ID, call)
}

// ── Outbound ─────────────────────────────────────────────────────────

// SendOutbound sends a request to window id once it is ready and waits
// for its result.  Unknown windows fail immediately with
// [errors.ErrNoSuchWindow] and no frame is sent; so do windows that
// disappear while the request waits for readiness.  Cancelling ctx
// abandons the call and removes it from the pending table.
func (d *Dispatcher) SendOutbound(ctx context.Context, id protocol.WindowID, typ protocol.Outbound, args ...interface{}) (json.RawMessage, error) {
	frame, err := protocol.NewRequest("", string(typ), args...)
	if err != nil {
		return nil, err
	}

	s, corr, pc, err := d.reserve(ctx, id, typ)
	if err != nil {
		return nil, err
	}
	frame.ID = corr
	d.metrics.OutboundStarted()
	d.log.Debug("-> %s %s (%s)", id, typ, corr)

	if err := s.Sender.Send(ctx, frame); err != nil {
		d.settle(corr, result{err: errors.Wrap("send "+string(typ), id.String(), err)})
	}

	select {
	case r := <-pc.done:
		return r.value, r.err
	case <-ctx.Done():
		d.settle(corr, result{err: ctx.Err()})
		r := <-pc.done
		return r.value, r.err
	}
}

// reserve waits for the window to become ready, then records a pending
// call under a fresh correlation id.  The window is re-checked after
// the wait; a replaced session is waited on in turn.
func (d *Dispatcher) reserve(ctx context.Context, id protocol.WindowID, typ protocol.Outbound) (*session.Session, string, *pendingCall, error) {
	for {
		d.mu.Lock()
		closed, s := d.closed, d.sessions[id]
		d.mu.Unlock()
		if closed {
			return nil, "", nil, errors.ErrClosed
		}
		if s == nil {
			return nil, "", nil, errors.Wrap("send "+string(typ), id.String(), errors.ErrNoSuchWindow)
		}

		if err := s.Wait(ctx); err != nil && !errors.Is(err, errors.ErrWindowClosed) {
			return nil, "", nil, err
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, "", nil, errors.ErrClosed
		}
		if d.sessions[id] != s {
			d.mu.Unlock()
			continue
		}
		corr := d.nextIDLocked()
		pc := &pendingCall{session: s, method: typ, done: make(chan result, 1)}
		d.pending[corr] = pc
		d.mu.Unlock()
		return s, corr, pc, nil
	}
}

// nextIDLocked returns a generated id that no pending call holds.
func (d *Dispatcher) nextIDLocked() string {
	for {
		id := d.ids.Next()
		if _, busy := d.pending[id]; !busy {
			return id
		}
		d.log.Debug("correlation id %s still pending, skipping", id)
	}
}

// Complete settles the pending call named by a response or requestError
// frame.  It reports whether a pending call matched; unknown ids are
// dropped.
func (d *Dispatcher) Complete(f protocol.Frame) bool {
	if f.Kind() == protocol.KindRequest {
		return false
	}
	value, err := f.Result()
	if !d.settle(f.ID, result{value: value, err: err}) {
		d.log.Debug("no pending call for %s %s", f.Type, f.ID)
		d.metrics.FrameDropped()
		return false
	}
	return true
}

// settle removes the pending entry, then delivers r to its waiter.
func (d *Dispatcher) settle(corr string, r result) bool {
	d.mu.Lock()
	pc, ok := d.pending[corr]
	delete(d.pending, corr)
	d.mu.Unlock()
	if !ok {
		return false
	}
	d.deliver(pc, r)
	return true
}

func (d *Dispatcher) deliver(pc *pendingCall, r result) {
	pc.done <- r
	d.metrics.OutboundSettled(r.err != nil)
}

func (d *Dispatcher) takeSessionLocked(s *session.Session) []*pendingCall {
	var out []*pendingCall
	for corr, pc := range d.pending {
		if pc.session == s {
			out = append(out, pc)
			delete(d.pending, corr)
		}
	}
	return out
}

func (d *Dispatcher) failAll(calls []*pendingCall, err error) {
	for _, pc := range calls {
		d.deliver(pc, result{err: err})
	}
}

// ── Routing ──────────────────────────────────────────────────────────

// HandleFrame routes a frame read from window id.  Results complete
// pending calls inline; requests are served on their own goroutine so
// the caller's read loop keeps draining.
func (d *Dispatcher) HandleFrame(ctx context.Context, id protocol.WindowID, f protocol.Frame) {
	switch f.Kind() {
	case protocol.KindResponse, protocol.KindError:
		d.Complete(f)
	default:
		go d.DispatchInbound(ctx, id, f)
	}
}

// Broadcast sends typ to every registered window concurrently and
// waits for all of them.  Failures are combined.
func (d *Dispatcher) Broadcast(ctx context.Context, typ protocol.Outbound, args ...interface{}) error {
	windows := d.Windows()
	errs := make([]error, len(windows))

	var g errgroup.Group
	for i, id := range windows {
		i, id := i, id
		g.Go(func() error {
			_, errs[i] = d.SendOutbound(ctx, id, typ, args...)
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

// Close fails every pending call with [errors.ErrClosed] and closes all
// sessions.  Later registrations are closed immediately.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	sessions, pending := d.sessions, d.pending
	d.sessions = make(map[protocol.WindowID]*session.Session)
	d.pending = make(map[string]*pendingCall)
	d.mu.Unlock()

	for _, pc := range pending {
		d.deliver(pc, result{err: errors.ErrClosed})
	}
	for _, s := range sessions {
		s.Close()
		d.metrics.WindowClosed()
	}
	d.log.Verbose("dispatcher closed: %d window(s), %d pending call(s)", len(sessions), len(pending))
}

// ── Introspection ────────────────────────────────────────────────────

// Pending returns the number of outstanding outbound calls.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Windows returns the registered window ids in ascending order.
func (d *Dispatcher) Windows() []protocol.WindowID {
	d.mu.Lock()
	out := make([]protocol.WindowID, 0, len(d.sessions))
	for id := range d.sessions {
		out = append(out, id)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Ready reports whether window id has completed its init handshake.
func (d *Dispatcher) Ready(id protocol.WindowID) bool {
	s := d.session(id)
	return s != nil && s.IsReady()
}
