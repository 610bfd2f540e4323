// Package transport moves frames and bytes between processes.
//
// Renderer windows connect to the [Server] over WebSocket and exchange
// JSON frames through a [Conn].  Outgoing stream connections, used by
// the socket relay, go through a [Dialer].
package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Dialer opens outbound stream connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}

// NetDialer dials TCP or Unix sockets.
type NetDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // TCP only; 0 uses the system default
}

// Dial connects to address.  network must be "tcp", "tcp4", "tcp6" or
// "unix".
func (d *NetDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless dialers.
func (d *NetDialer) Close() error { return nil }
