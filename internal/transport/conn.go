package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deskbridge/internal/errors"
	"deskbridge/internal/metrics"
	"deskbridge/internal/protocol"
)

// ErrMalformedFrame is returned by [Conn.ReadFrame] for messages that
// are not JSON frames.  The connection stays usable.
var ErrMalformedFrame = errors.New("malformed frame")

// Conn carries JSON frames over one WebSocket.  Send is safe for
// concurrent use; ReadFrame must be called from a single goroutine.
type Conn struct {
	ws           *websocket.Conn
	remote       string
	writeTimeout time.Duration
	metrics      *metrics.Collector

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, remote string, writeTimeout time.Duration, m *metrics.Collector) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Conn{
		ws:           ws,
		remote:       remote,
		writeTimeout: writeTimeout,
		metrics:      m,
		done:         make(chan struct{}),
	}
}

// Dial connects to a bridge server as a renderer would.  A non-empty
// token is sent as a bearer credential.
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Wrap("dial", url, errors.ErrUnauthorized)
		}
		return nil, errors.Wrap("dial", url, err)
	}
	return newConn(ws, url, DefaultWriteTimeout, nil), nil
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// Send writes one frame.  The write deadline is the earlier of the
// context deadline and the connection's write timeout.
func (c *Conn) Send(ctx context.Context, f protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %s: %w", f.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return errors.Wrap("send", c.remote, errors.ErrWindowClosed)
	default:
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap("send", c.remote, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap("send", c.remote, err)
	}
	c.metrics.BytesSent(int64(len(data)))
	return nil
}

// ReadFrame blocks for the next frame.  Binary and unparsable messages
// yield [ErrMalformedFrame]; any other error means the connection is
// finished.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	typ, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Frame{}, err
	}
	c.metrics.BytesReceived(int64(len(data)))
	if typ != websocket.TextMessage {
		return protocol.Frame{}, fmt.Errorf("%w: message type %d", ErrMalformedFrame, typ)
	}
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.ID == "" || f.Type == "" {
		return protocol.Frame{}, fmt.Errorf("%w: missing id or type", ErrMalformedFrame)
	}
	return f, nil
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends a close message and tears the connection down.  Safe to
// call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// keepAlive pings the peer until the connection closes.  Missing pongs
// eventually fail the read loop through the read deadline.
func (c *Conn) keepAlive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	wait := interval * 2
	_ = c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-t.C:
				if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
					return
				}
			}
		}
	}()
}
