package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"deskbridge/internal/bridge"
	"deskbridge/internal/dispatch"
	"deskbridge/internal/metrics"
	"deskbridge/internal/protocol"
	"deskbridge/internal/push"
	"deskbridge/internal/session"
	"deskbridge/internal/store"
	"deskbridge/internal/transport"
)

// pipeConn is an in-memory FrameConn.  Frames written by the host land
// on out; frames pushed to in are read by the host.
type pipeConn struct {
	in   chan protocol.Frame
	out  chan protocol.Frame
	once sync.Once
	done chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:   make(chan protocol.Frame, 16),
		out:  make(chan protocol.Frame, 16),
		done: make(chan struct{}),
	}
}

func (p *pipeConn) Send(_ context.Context, f protocol.Frame) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	case p.out <- f:
		return nil
	}
}

func (p *pipeConn) ReadFrame() (protocol.Frame, error) {
	select {
	case <-p.done:
		return protocol.Frame{}, io.EOF
	case f := <-p.in:
		return f, nil
	}
}

func (p *pipeConn) RemoteAddr() string { return "pipe" }

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *pipeConn) next(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case f := <-p.out:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return protocol.Frame{}
	}
}

func newHost(t *testing.T) (*Host, *store.Store) {
	t.Helper()
	conf, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	reg := session.NewRegistry()
	m := metrics.New()
	b := bridge.New(bridge.Services{Windows: reg, Config: conf}, nil)
	return &Host{
		Registry:   reg,
		Dispatcher: dispatch.New(b, dispatch.WithMetrics(m)),
		Push:       push.New(conf),
		Metrics:    m,
	}, conf
}

// serve runs h.Serve in the background and waits for registration.
func serve(t *testing.T, h *Host, c FrameConn) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), c)
		close(done)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for h.Registry.Len() == 0 || len(h.Dispatcher.Windows()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("window never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return done
}

func TestHost_InitAndOutbound(t *testing.T) {
	h, _ := newHost(t)
	c := newPipeConn()
	done := serve(t, h, c)

	id := h.Registry.All()[0].ID
	if h.Dispatcher.Ready(id) {
		t.Fatal("window should not be ready before init")
	}

	c.in <- protocol.Frame{ID: "r1", Type: string(protocol.MethodInit)}
	resp := c.next(t)
	if resp.ID != "r1" || resp.Kind() != protocol.KindResponse {
		t.Fatalf("unexpected reply %+v", resp)
	}
	var platform string
	json.Unmarshal(resp.Value, &platform) //nolint:errcheck
	if platform != bridge.Platform() {
		t.Errorf("platform = %q, want %q", platform, bridge.Platform())
	}

	// Outbound request answered by the renderer.
	type reply struct {
		v   json.RawMessage
		err error
	}
	got := make(chan reply, 1)
	go func() {
		v, err := h.Dispatcher.SendOutbound(context.Background(), id, protocol.OutboundAppUpdateDownloaded)
		got <- reply{v, err}
	}()
	req := c.next(t)
	if req.Type != string(protocol.OutboundAppUpdateDownloaded) {
		t.Fatalf("unexpected request %+v", req)
	}
	ack, _ := protocol.NewResponse(req.ID, "ok")
	c.in <- ack

	r := <-got
	if r.err != nil || string(r.v) != `"ok"` {
		t.Errorf("SendOutbound = %s, %v", r.v, r.err)
	}

	c.Close()
	<-done
	if h.Registry.Len() != 0 || len(h.Dispatcher.Windows()) != 0 {
		t.Error("window should be torn down after disconnect")
	}
	if h.Metrics.ActiveWindows() != 0 {
		t.Errorf("ActiveWindows = %d, want 0", h.Metrics.ActiveWindows())
	}
}

func TestHost_InvalidateAlarms(t *testing.T) {
	h, conf := newHost(t)
	c := newPipeConn()
	done := serve(t, h, c)
	defer func() { c.Close(); <-done }()

	c.in <- protocol.Frame{ID: "r1", Type: string(protocol.MethodInit)}
	c.next(t)

	info := push.Info{Identifier: "pid", SSEOrigin: "https://push.example", UserIDs: []string{}}
	if err := conf.Set(store.KeyPushIdentifier, info); err != nil {
		t.Fatal(err)
	}

	req := c.next(t)
	if req.Type != string(protocol.OutboundInvalidateAlarms) {
		t.Fatalf("expected invalidateAlarms, got %+v", req)
	}
}

func TestHost_MalformedFrameCounted(t *testing.T) {
	h, _ := newHost(t)
	c := &flakyConn{pipeConn: newPipeConn(), bad: 1}
	done := serve(t, h, c)

	c.in <- protocol.Frame{ID: "r1", Type: string(protocol.MethodInit)}
	c.next(t)
	if n := h.Metrics.FramesDropped(); n != 1 {
		t.Errorf("FramesDropped = %d, want 1", n)
	}
	c.Close()
	<-done
}

// flakyConn fails the first bad reads with ErrMalformedFrame.
type flakyConn struct {
	*pipeConn
	bad int
}

func (f *flakyConn) ReadFrame() (protocol.Frame, error) {
	if f.bad > 0 {
		f.bad--
		return protocol.Frame{}, transport.ErrMalformedFrame
	}
	return f.pipeConn.ReadFrame()
}

func TestHost_NotifyUpdateDownloaded(t *testing.T) {
	h, _ := newHost(t)
	conns := []*pipeConn{newPipeConn(), newPipeConn()}
	var dones []<-chan struct{}
	for i, c := range conns {
		done := make(chan struct{})
		go func(c *pipeConn) {
			h.Serve(context.Background(), c)
			close(done)
		}(c)
		dones = append(dones, done)
		for len(h.Dispatcher.Windows()) != i+1 {
			time.Sleep(time.Millisecond)
		}
		c.in <- protocol.Frame{ID: "r1", Type: string(protocol.MethodInit)}
		c.next(t)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- h.NotifyUpdateDownloaded(context.Background(), &protocol.UpdateInfo{Version: "3.2.0"})
	}()
	for _, c := range conns {
		req := c.next(t)
		if req.Type != string(protocol.OutboundAppUpdateDownloaded) {
			t.Fatalf("unexpected request %+v", req)
		}
		if len(req.Args) != 1 || !strings.Contains(string(req.Args[0]), "3.2.0") {
			t.Errorf("args = %s", req.Args)
		}
		ack, _ := protocol.NewResponse(req.ID, nil)
		c.in <- ack
	}
	if err := <-errc; err != nil {
		t.Fatalf("NotifyUpdateDownloaded: %v", err)
	}

	for i, c := range conns {
		c.Close()
		<-dones[i]
	}
}

// fakeUpdates stands in for the updater; fire simulates a finished
// download.
type fakeUpdates struct {
	mu sync.Mutex
	fn func()
}

var _ UpdateSource = bridge.Updater(nil)

func (u *fakeUpdates) UpdateInfo() *protocol.UpdateInfo {
	return &protocol.UpdateInfo{Version: "4.0.1"}
}

func (u *fakeUpdates) OnDownloaded(fn func()) {
	u.mu.Lock()
	u.fn = fn
	u.mu.Unlock()
}

func (u *fakeUpdates) fire() {
	u.mu.Lock()
	fn := u.fn
	u.mu.Unlock()
	fn()
}

func TestHost_WatchUpdates(t *testing.T) {
	h, _ := newHost(t)
	src := &fakeUpdates{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.WatchUpdates(ctx, src)

	c := newPipeConn()
	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), c)
		close(done)
	}()
	for len(h.Dispatcher.Windows()) != 1 {
		time.Sleep(time.Millisecond)
	}
	c.in <- protocol.Frame{ID: "r1", Type: string(protocol.MethodInit)}
	c.next(t)

	src.fire()
	req := c.next(t)
	if req.Type != string(protocol.OutboundAppUpdateDownloaded) {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.Args) != 1 || !strings.Contains(string(req.Args[0]), "4.0.1") {
		t.Errorf("args = %s", req.Args)
	}
	ack, _ := protocol.NewResponse(req.ID, nil)
	c.in <- ack

	deadline := time.Now().Add(2 * time.Second)
	for h.Dispatcher.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := h.Dispatcher.Pending(); n != 0 {
		t.Errorf("pending = %d after ack", n)
	}

	c.Close()
	<-done
}

// TestHost_OverWebSocket runs the host behind a real transport server.
func TestHost_OverWebSocket(t *testing.T) {
	h, _ := newHost(t)
	srv := transport.NewServer(transport.ServerConfig{Metrics: h.Metrics}, h.Connect)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http")+"/ipc", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	req, _ := protocol.NewRequest("r1", string(protocol.MethodGetLog))
	if err := c.Send(ctx, req); err != nil {
		t.Fatal(err)
	}
	resp, err := c.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "r1" || string(resp.Value) != "[]" {
		t.Errorf("unexpected reply %+v (%s)", resp, resp.Value)
	}

	req, _ = protocol.NewRequest("r2", "bogusMethod")
	c.Send(ctx, req) //nolint:errcheck
	resp, err = c.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind() != protocol.KindError {
		t.Errorf("expected requestError, got %+v", resp)
	}
}
