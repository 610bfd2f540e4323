// Package socket forwards admin-client messages to a local socket as
// newline-delimited JSON.
package socket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/metrics"
	"deskbridge/internal/retry"
	"deskbridge/internal/transport"
	"deskbridge/util"
)

const (
	// DefaultQueueSize bounds the messages waiting for delivery.
	DefaultQueueSize = 256
	// DefaultSendTimeout bounds the delivery of one queued message.
	DefaultSendTimeout = 30 * time.Second
)

// Config configures a [Relay].
type Config struct {
	// Address is "host:port" or "unix:/path".
	Address string

	Dialer       transport.Dialer     // default *transport.NetDialer
	Backoff      *retry.Backoff       // dial retries; default retry.DefaultBackoff()
	Breaker      *retry.BreakerConfig // default retry.DefaultBreakerConfig()
	WriteTimeout time.Duration        // default 5s
	QueueSize    int                  // default DefaultQueueSize
	SendTimeout  time.Duration        // default DefaultSendTimeout
	Metrics      *metrics.Collector
	Logger       *util.Logger
}

// Relay holds at most one connection and redials it lazily.  Send is
// safe for concurrent use; messages never interleave.  Enqueue hands
// messages to a single worker that delivers them in order.
type Relay struct {
	network     string
	address     string
	dialer      transport.Dialer
	backoff     retry.Backoff
	breaker     *retry.Breaker
	timeout     time.Duration
	sendTimeout time.Duration
	metrics     *metrics.Collector
	log         *util.Logger

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	qmu     sync.Mutex
	queue   chan []byte
	qclosed bool
	base    context.Context
	abort   context.CancelFunc
	drained chan struct{}
}

// New validates cfg and returns a relay.  No connection is made until
// the first Send.
func New(cfg Config) (*Relay, error) {
	network, address, err := util.SplitListen(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("socket relay: %w", err)
	}
	r := &Relay{
		network: network,
		address: address,
		dialer:  cfg.Dialer,
		timeout: cfg.WriteTimeout,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
	if r.dialer == nil {
		r.dialer = &transport.NetDialer{Timeout: 5 * time.Second}
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}
	r.sendTimeout = cfg.SendTimeout
	if r.sendTimeout <= 0 {
		r.sendTimeout = DefaultSendTimeout
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	if r.log == nil {
		r.log = util.Nop()
	}

	b := cfg.Backoff
	if b == nil {
		b = retry.DefaultBackoff()
	}
	r.backoff = *b
	userRetry := b.OnRetry
	r.backoff.OnRetry = func(attempt int, err error, wait time.Duration) {
		r.metrics.SocketReconnect()
		r.log.Verbose("socket %s: dial attempt %d failed: %v (retry in %v)", cfg.Address, attempt, err, wait)
		if userRetry != nil {
			userRetry(attempt, err, wait)
		}
	}

	bc := retry.DefaultBreakerConfig()
	if cfg.Breaker != nil {
		c := *cfg.Breaker
		bc = &c
	}
	userChange := bc.OnStateChange
	bc.OnStateChange = func(from, to retry.State) {
		if to == retry.StateOpen {
			r.log.Warn("socket %s: writes suspended after repeated failures", cfg.Address)
		} else {
			r.log.Verbose("socket %s: breaker %s -> %s", cfg.Address, from, to)
		}
		if userChange != nil {
			userChange(from, to)
		}
	}
	r.breaker = retry.NewBreaker(bc)

	r.queue = make(chan []byte, size)
	r.drained = make(chan struct{})
	r.base, r.abort = context.WithCancel(context.Background())
	go r.run()
	return r, nil
}

// Addr returns the configured address as (network, address).
func (r *Relay) Addr() (string, string) { return r.network, r.address }

// Send writes msg followed by a newline and waits for the write.  A
// failed write closes the connection so the next Send redials.
func (r *Relay) Send(ctx context.Context, msg json.RawMessage) error {
	line, err := encodeLine(msg)
	if err != nil {
		return err
	}
	return r.write(ctx, line)
}

// Enqueue validates msg and queues it for delivery without waiting.
// Messages are written in the order they were queued.  A full queue
// rejects the message.
func (r *Relay) Enqueue(msg json.RawMessage) error {
	line, err := encodeLine(msg)
	if err != nil {
		return err
	}

	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.qclosed {
		return errors.Wrap("relay", r.address, errors.ErrClosed)
	}
	select {
	case r.queue <- line:
		return nil
	default:
		return fmt.Errorf("socket %s: queue full (%d messages)", r.address, cap(r.queue))
	}
}

// Queued returns the number of messages waiting for the worker.
func (r *Relay) Queued() int { return len(r.queue) }

func (r *Relay) run() {
	defer close(r.drained)
	for line := range r.queue {
		ctx, cancel := context.WithTimeout(r.base, r.sendTimeout)
		err := r.write(ctx, line)
		cancel()
		if err != nil {
			r.metrics.RecordError("socket: " + err.Error())
			r.log.Warn("socket message dropped: %v", err)
		}
	}
}

func (r *Relay) write(ctx context.Context, line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Wrap("relay", r.address, errors.ErrClosed)
	}

	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		conn, err := r.connectLocked(ctx)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(r.timeout)) //nolint:errcheck
		if _, err := conn.Write(line); err != nil {
			r.dropLocked()
			return errors.Wrap("relay", r.address, err)
		}
		r.metrics.BytesSent(int64(len(line)))
		return nil
	})
}

// Connected reports whether a connection is currently held.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// State exposes the write breaker state.
func (r *Relay) State() retry.State { return r.breaker.State() }

// Close delivers the queued messages, then drops the connection and
// releases the dialer.  Later sends fail with ErrClosed.
func (r *Relay) Close() error { return r.Shutdown(context.Background()) }

// Shutdown is [Relay.Close] bounded by ctx: when ctx ends first, the
// messages still queued are dropped.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.qmu.Lock()
	if !r.qclosed {
		r.qclosed = true
		close(r.queue)
	}
	r.qmu.Unlock()

	select {
	case <-r.drained:
	case <-ctx.Done():
		if n := len(r.queue); n > 0 {
			r.log.Warn("socket %s: dropping %d queued messages", r.address, n)
		}
		r.abort()
		<-r.drained
	}
	r.abort()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.dropLocked()
	return r.dialer.Close()
}

func (r *Relay) connectLocked(ctx context.Context) (net.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	err := r.backoff.Do(ctx, func(int) error {
		conn, err := r.dialer.Dial(ctx, r.network, r.address)
		if err != nil {
			if ctx.Err() != nil || !errors.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		r.conn = conn
		return nil
	})
	if err != nil {
		return nil, errors.Wrap("dial", r.address, err)
	}
	r.log.Verbose("socket relay connected to %s", r.address)
	return r.conn, nil
}

func (r *Relay) dropLocked() {
	if r.conn != nil {
		r.conn.Close() //nolint:errcheck
		r.conn = nil
	}
}

// encodeLine compacts msg onto one line.  Empty messages are sent as
// JSON null.
func encodeLine(msg json.RawMessage) ([]byte, error) {
	if len(msg) == 0 {
		return []byte("null\n"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, msg); err != nil {
		return nil, fmt.Errorf("socket message: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
