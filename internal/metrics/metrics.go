// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of the bridge.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
//
// Collector also implements prometheus.Collector, so the same counters
// back both the JSON snapshot and the /metrics endpoint.
package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deskbridge"

// Collector tracks runtime metrics for the bridge.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	windowsActive    atomic.Int64
	windowsTotal     atomic.Int64
	outboundSent     atomic.Int64
	outboundFailed   atomic.Int64
	pending          atomic.Int64
	handlerErrors    atomic.Int64
	handlerPanics    atomic.Int64
	framesDropped    atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	socketReconnects atomic.Int64
	errorsTotal      atomic.Int64

	inbound sync.Map // method name → *atomic.Int64

	clock        clock.Clock
	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return NewWithClock(clock.New())
}

// NewWithClock creates a collector that reads time from clk.
func NewWithClock(clk clock.Clock) *Collector {
	return &Collector{clock: clk, startTime: clk.Now()}
}

// ── Window metrics ───────────────────────────────────────────────────

// WindowOpened increments both the active and total window counters.
func (c *Collector) WindowOpened() {
	if c == nil {
		return
	}
	c.windowsActive.Add(1)
	c.windowsTotal.Add(1)
}

// WindowClosed decrements the active window counter.
func (c *Collector) WindowClosed() {
	if c == nil {
		return
	}
	c.windowsActive.Add(-1)
}

// ActiveWindows returns the current number of registered windows.
func (c *Collector) ActiveWindows() int64 {
	if c == nil {
		return 0
	}
	return c.windowsActive.Load()
}

// TotalWindows returns the lifetime window count.
func (c *Collector) TotalWindows() int64 {
	if c == nil {
		return 0
	}
	return c.windowsTotal.Load()
}

// ── Request metrics ──────────────────────────────────────────────────

// InboundRequest counts one renderer request for method.
func (c *Collector) InboundRequest(method string) {
	if c == nil {
		return
	}
	v, ok := c.inbound.Load(method)
	if !ok {
		v, _ = c.inbound.LoadOrStore(method, new(atomic.Int64))
	}
	v.(*atomic.Int64).Add(1)
}

// InboundRequests returns the number of requests seen for method.
func (c *Collector) InboundRequests(method string) int64 {
	if c == nil {
		return 0
	}
	v, ok := c.inbound.Load(method)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// HandlerError counts a request that was answered with an error frame.
func (c *Collector) HandlerError() {
	if c == nil {
		return
	}
	c.handlerErrors.Add(1)
}

// HandlerPanic counts a handler that panicked.
func (c *Collector) HandlerPanic() {
	if c == nil {
		return
	}
	c.handlerPanics.Add(1)
}

// HandlerErrors returns the number of error replies sent.
func (c *Collector) HandlerErrors() int64 {
	if c == nil {
		return 0
	}
	return c.handlerErrors.Load()
}

// HandlerPanics returns the number of recovered handler panics.
func (c *Collector) HandlerPanics() int64 {
	if c == nil {
		return 0
	}
	return c.handlerPanics.Load()
}

// FrameDropped counts a frame that could not be routed.
func (c *Collector) FrameDropped() {
	if c == nil {
		return
	}
	c.framesDropped.Add(1)
}

// FramesDropped returns the number of unroutable frames.
func (c *Collector) FramesDropped() int64 {
	if c == nil {
		return 0
	}
	return c.framesDropped.Load()
}

// ── Outbound metrics ─────────────────────────────────────────────────

// OutboundStarted records an outbound request entering the pending table.
func (c *Collector) OutboundStarted() {
	if c == nil {
		return
	}
	c.outboundSent.Add(1)
	c.pending.Add(1)
}

// OutboundSettled records a pending request leaving the table.
func (c *Collector) OutboundSettled(failed bool) {
	if c == nil {
		return
	}
	c.pending.Add(-1)
	if failed {
		c.outboundFailed.Add(1)
	}
}

// Pending returns the number of outstanding outbound requests.
func (c *Collector) Pending() int64 {
	if c == nil {
		return 0
	}
	return c.pending.Load()
}

// OutboundSent returns the lifetime outbound request count.
func (c *Collector) OutboundSent() int64 {
	if c == nil {
		return 0
	}
	return c.outboundSent.Load()
}

// OutboundFailed returns how many outbound requests settled with an error.
func (c *Collector) OutboundFailed() int64 {
	if c == nil {
		return 0
	}
	return c.outboundFailed.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a window channel.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a window channel.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Socket relay metrics ─────────────────────────────────────────────

// SocketReconnect records a socket relay reconnection.
func (c *Collector) SocketReconnect() {
	if c == nil {
		return
	}
	c.socketReconnects.Add(1)
}

// SocketReconnects returns the total socket reconnection count.
func (c *Collector) SocketReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.socketReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = c.clock.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return c.clock.Since(c.startTime)
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string           `json:"uptime"`
	WindowsActive    int64            `json:"windows_active"`
	WindowsTotal     int64            `json:"windows_total"`
	Inbound          map[string]int64 `json:"inbound,omitempty"`
	HandlerErrors    int64            `json:"handler_errors"`
	HandlerPanics    int64            `json:"handler_panics"`
	FramesDropped    int64            `json:"frames_dropped"`
	OutboundSent     int64            `json:"outbound_sent"`
	OutboundFailed   int64            `json:"outbound_failed"`
	Pending          int64            `json:"pending"`
	BytesIn          int64            `json:"bytes_in"`
	BytesOut         int64            `json:"bytes_out"`
	SocketReconnects int64            `json:"socket_reconnects"`
	ErrorsTotal      int64            `json:"errors_total"`
	LastError        string           `json:"last_error,omitempty"`
	LastErrorMessage string           `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           c.clock.Since(c.startTime).Truncate(time.Second).String(),
		WindowsActive:    c.windowsActive.Load(),
		WindowsTotal:     c.windowsTotal.Load(),
		HandlerErrors:    c.handlerErrors.Load(),
		HandlerPanics:    c.handlerPanics.Load(),
		FramesDropped:    c.framesDropped.Load(),
		OutboundSent:     c.outboundSent.Load(),
		OutboundFailed:   c.outboundFailed.Load(),
		Pending:          c.pending.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		SocketReconnects: c.socketReconnects.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	c.inbound.Range(func(k, v interface{}) bool {
		if s.Inbound == nil {
			s.Inbound = make(map[string]int64)
		}
		s.Inbound[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// ── Prometheus ───────────────────────────────────────────────────────

var (
	descWindowsActive = prometheus.NewDesc(namespace+"_windows_active",
		"Renderer windows currently registered.", nil, nil)
	descWindowsTotal = prometheus.NewDesc(namespace+"_windows_total",
		"Renderer windows registered since start.", nil, nil)
	descInbound = prometheus.NewDesc(namespace+"_inbound_requests_total",
		"Requests received from renderers.", []string{"method"}, nil)
	descHandlerErrors = prometheus.NewDesc(namespace+"_handler_errors_total",
		"Requests answered with an error frame.", nil, nil)
	descHandlerPanics = prometheus.NewDesc(namespace+"_handler_panics_total",
		"Handlers that panicked.", nil, nil)
	descFramesDropped = prometheus.NewDesc(namespace+"_frames_dropped_total",
		"Frames that could not be routed.", nil, nil)
	descOutboundSent = prometheus.NewDesc(namespace+"_outbound_requests_total",
		"Requests sent to renderers.", nil, nil)
	descOutboundFailed = prometheus.NewDesc(namespace+"_outbound_failed_total",
		"Outbound requests that settled with an error.", nil, nil)
	descPending = prometheus.NewDesc(namespace+"_pending_requests",
		"Outbound requests awaiting a reply.", nil, nil)
	descBytesIn = prometheus.NewDesc(namespace+"_bytes_received_total",
		"Bytes read from renderer channels.", nil, nil)
	descBytesOut = prometheus.NewDesc(namespace+"_bytes_sent_total",
		"Bytes written to renderer channels.", nil, nil)
	descSocketReconnects = prometheus.NewDesc(namespace+"_socket_reconnects_total",
		"Socket relay reconnections.", nil, nil)
	descErrors = prometheus.NewDesc(namespace+"_errors_total",
		"Errors recorded.", nil, nil)
	descUptime = prometheus.NewDesc(namespace+"_uptime_seconds",
		"Seconds since start.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descWindowsActive, descWindowsTotal, descInbound, descHandlerErrors,
		descHandlerPanics, descFramesDropped, descOutboundSent, descOutboundFailed,
		descPending, descBytesIn, descBytesOut, descSocketReconnects, descErrors,
		descUptime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(descWindowsActive, s.WindowsActive)
	counter(descWindowsTotal, s.WindowsTotal)
	methods := make([]string, 0, len(s.Inbound))
	for m := range s.Inbound {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		counter(descInbound, s.Inbound[m], m)
	}
	counter(descHandlerErrors, s.HandlerErrors)
	counter(descHandlerPanics, s.HandlerPanics)
	counter(descFramesDropped, s.FramesDropped)
	counter(descOutboundSent, s.OutboundSent)
	counter(descOutboundFailed, s.OutboundFailed)
	gauge(descPending, s.Pending)
	counter(descBytesIn, s.BytesIn)
	counter(descBytesOut, s.BytesOut)
	counter(descSocketReconnects, s.SocketReconnects)
	counter(descErrors, s.ErrorsTotal)
	ch <- prometheus.MustNewConstMetric(descUptime, prometheus.GaugeValue, c.Uptime().Seconds())
}
