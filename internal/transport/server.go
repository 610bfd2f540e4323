package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskbridge/internal/metrics"
	"deskbridge/util"
)

// Defaults for [ServerConfig].
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = 64 << 20
)

// ConnectFunc serves one accepted connection.  It runs on the request
// goroutine and the connection is closed when it returns.
type ConnectFunc func(ctx context.Context, c *Conn)

// ServerConfig configures a [Server].
type ServerConfig struct {
	// Path is where renderers upgrade to WebSocket (default "/ipc").
	Path string
	// Token, when set, must be presented as "Authorization: Bearer" or
	// as the "token" query parameter.
	Token string
	// AllowedOrigins lists extra browser origins besides loopback ones.
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64

	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer // serves /metrics when set
	Logger   *util.Logger
}

// Server accepts renderer connections and serves the health and
// metrics endpoints.
type Server struct {
	cfg       ServerConfig
	onConnect ConnectFunc
	upgrader  websocket.Upgrader
	log       *util.Logger
	http      *http.Server

	mu    sync.Mutex
	ln    net.Listener
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
	ctx   context.Context
	stop  context.CancelFunc
}

// NewServer builds a server that hands every connection to onConnect.
func NewServer(cfg ServerConfig, onConnect ConnectFunc) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ipc"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	log := cfg.Logger
	if log == nil {
		log = util.Nop()
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		onConnect: onConnect,
		log:       log,
		conns:     make(map[*Conn]struct{}),
		ctx:       ctx,
		stop:      stop,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  32 << 10,
		WriteBufferSize: 32 << 10,
		CheckOrigin:     s.checkOrigin,
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveIPC)
	mux.HandleFunc("/health", s.serveHealth)
	if s.cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Listen binds spec ("host:port" or "unix:/path") and serves in the
// background.  It returns once the listener is open.
func (s *Server) Listen(spec string) (net.Addr, error) {
	network, address, err := util.SplitListen(spec)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("serve %s: %v", ln.Addr(), err)
		}
	}()
	s.log.Info("listening on %s%s", ln.Addr(), s.cfg.Path)
	return ln.Addr(), nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes every connection and waits for the
// connect callbacks to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	for c := range s.conns {
		c.Close() //nolint:errcheck
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Connections returns the number of open renderer connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// ── handlers ─────────────────────────────────────────────────────────

func (s *Server) serveIPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.log.Warn("rejected connection from %s: bad token", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Verbose("upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	c := newConn(ws, r.RemoteAddr, s.cfg.WriteTimeout, s.cfg.Metrics)

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		c.Close() //nolint:errcheck
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		c.Close() //nolint:errcheck
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.wg.Done()
	}()

	c.keepAlive(s.cfg.PingInterval)
	s.onConnect(s.ctx, c)
}

type health struct {
	Status      string           `json:"status"`
	Connections int              `json:"connections"`
	Metrics     metrics.Snapshot `json:"metrics"`
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health{ //nolint:errcheck
		Status:      "ok",
		Connections: s.Connections(),
		Metrics:     s.cfg.Metrics.Snapshot(),
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		got = strings.TrimPrefix(h, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}

// checkOrigin admits non-browser clients, loopback pages and the
// configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	return util.IsLoopback(u.Hostname())
}
