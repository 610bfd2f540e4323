// Package core wires accepted renderer connections into the window
// registry and the dispatcher.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"deskbridge/internal/dispatch"
	"deskbridge/internal/metrics"
	"deskbridge/internal/protocol"
	"deskbridge/internal/push"
	"deskbridge/internal/session"
	"deskbridge/internal/transport"
	"deskbridge/util"
)

// UpdateNotifyTimeout bounds one appUpdateDownloaded broadcast.
const UpdateNotifyTimeout = 30 * time.Second

// FrameConn is one renderer connection.  *transport.Conn implements it.
type FrameConn interface {
	session.Sender
	ReadFrame() (protocol.Frame, error)
	RemoteAddr() string
	Close() error
}

// Host owns the lifetime of every connected window.
type Host struct {
	Registry   *session.Registry
	Dispatcher *dispatch.Dispatcher
	Push       *push.Store // optional; enables alarm invalidation
	Metrics    *metrics.Collector
	Logger     *util.Logger
}

// Connect adapts [Host.Serve] to a transport connect callback.
func (h *Host) Connect(ctx context.Context, c *transport.Conn) { h.Serve(ctx, c) }

// Serve registers c as a new window and routes its frames until the
// connection fails or ctx is cancelled.  Teardown runs in reverse
// order of setup and fails the window's pending calls.
func (h *Host) Serve(ctx context.Context, c FrameConn) {
	log := h.logger()

	w := h.Registry.Add(c.RemoteAddr(), c)
	defer h.Registry.Remove(w.ID)

	h.Dispatcher.RegisterWindow(w.ID, c)
	defer h.Dispatcher.UnregisterWindow(w.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if h.Push != nil {
		stop := h.Push.Watch(ctx, h.Dispatcher, w.ID, log)
		defer stop()
	}

	log.Info("%s connected from %s", w.ID, c.RemoteAddr())
	defer log.Info("%s disconnected", w.ID)

	go func() {
		<-ctx.Done()
		c.Close() //nolint:errcheck
	}()

	for {
		f, err := c.ReadFrame()
		if errors.Is(err, transport.ErrMalformedFrame) {
			h.Metrics.FrameDropped()
			log.Warn("%s: %v", w.ID, err)
			continue
		}
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Verbose("%s read: %v", w.ID, err)
			}
			return
		}
		log.Debug("%s → %s %s", w.ID, f.Type, f.ID)
		h.Dispatcher.HandleFrame(ctx, w.ID, f)
	}
}

// NotifyUpdateDownloaded tells every window that an update is ready to
// install.
func (h *Host) NotifyUpdateDownloaded(ctx context.Context, info *protocol.UpdateInfo) error {
	return h.Dispatcher.Broadcast(ctx, protocol.OutboundAppUpdateDownloaded, info)
}

// UpdateSource reports downloaded updates.  bridge.Updater implements
// it.
type UpdateSource interface {
	UpdateInfo() *protocol.UpdateInfo
	OnDownloaded(fn func())
}

// WatchUpdates broadcasts appUpdateDownloaded with the current update
// info whenever src reports a finished download.  Broadcasts still
// running when ctx ends are cancelled.
func (h *Host) WatchUpdates(ctx context.Context, src UpdateSource) {
	src.OnDownloaded(func() {
		info := src.UpdateInfo()
		go func() {
			bctx, cancel := context.WithTimeout(ctx, UpdateNotifyTimeout)
			defer cancel()
			if err := h.NotifyUpdateDownloaded(bctx, info); err != nil {
				h.logger().Warn("update notification: %v", err)
			}
		}()
	})
}

func (h *Host) logger() *util.Logger {
	if h.Logger == nil {
		return util.Nop()
	}
	return h.Logger
}
