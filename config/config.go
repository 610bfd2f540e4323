// Package config defines the runtime configuration for deskbridge and
// provides helpers for parsing listen addresses and origin lists.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/ids"
	"deskbridge/util"
)

// Config holds every tuneable for one bridge process.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	Listen         string   // host:port or unix:/path
	Path           string   // WebSocket upgrade path
	Token          string   // bearer token renderers must present
	AllowedOrigins []string // extra browser origins besides loopback
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ShutdownGrace  time.Duration

	// ── Storage ──────────────────────────────────────────────────────
	ConfigPath  string // desktop config JSON file; empty keeps it in memory
	DownloadDir string
	ExportDir   string

	// ── Services ─────────────────────────────────────────────────────
	SocketAddr string     // admin-client relay target; empty disables it
	IDScheme   ids.Scheme // correlation id generator

	// ── Output ───────────────────────────────────────────────────────
	Verbose       int
	LogJSON       bool
	LogBufferSize int
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Listen:        DefaultListen,
		Path:          DefaultPath,
		WriteTimeout:  DefaultWriteTimeout,
		PingInterval:  DefaultPingInterval,
		ShutdownGrace: DefaultGracePeriod,
		ConfigPath:    DefaultConfigPath(),
		DownloadDir:   DefaultDownloadDir(),
		ExportDir:     DefaultExportDir(),
		IDScheme:      ids.SchemeCounter,
		Verbose:       1,
		LogBufferSize: DefaultLogBufferSize,
	}
}

// ── Origin helpers ───────────────────────────────────────────────────

// ParseOrigins splits a comma-separated origin list such as
// "app://deskbridge, https://mail.example.com".  Each entry must have a
// scheme and a host.
func ParseOrigins(spec string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(spec, ",") {
		o := strings.TrimSpace(part)
		if o == "" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid origin %q – expected scheme://host[:port]", o)
		}
		if u.Path != "" && u.Path != "/" {
			return nil, fmt.Errorf("origin %q must not have a path", o)
		}
		out = append(out, u.Scheme+"://"+u.Host)
	}
	return out, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	network, address, err := util.SplitListen(c.Listen)
	if err != nil {
		return &errors.ConfigError{
			Field:   "listen",
			Value:   c.Listen,
			Message: err.Error(),
			Hint:    "use host:port (e.g. 127.0.0.1:7377) or unix:/path/to/socket",
		}
	}
	if network == "tcp" && c.Token == "" {
		host, _, _ := net.SplitHostPort(address)
		if !util.IsLoopback(host) {
			return &errors.ConfigError{
				Field:   "listen",
				Value:   c.Listen,
				Message: "refusing to serve a non-loopback address without a token",
				Hint:    "set --token or listen on 127.0.0.1",
			}
		}
	}

	if !strings.HasPrefix(c.Path, "/") {
		return &errors.ConfigError{
			Field:   "path",
			Value:   c.Path,
			Message: "must start with /",
		}
	}
	if c.Path == "/health" || c.Path == "/metrics" {
		return &errors.ConfigError{
			Field:   "path",
			Value:   c.Path,
			Message: "collides with a built-in endpoint",
			Hint:    "the default is " + DefaultPath,
		}
	}

	if _, ok := ids.New(c.IDScheme); !ok {
		return &errors.ConfigError{
			Field:   "ids",
			Value:   c.IDScheme,
			Message: "unknown id scheme",
			Hint:    fmt.Sprintf("use %q or %q", ids.SchemeCounter, ids.SchemeUUID),
		}
	}

	if c.SocketAddr != "" {
		if _, _, err := util.SplitListen(c.SocketAddr); err != nil {
			return &errors.ConfigError{
				Field:   "socket",
				Value:   c.SocketAddr,
				Message: err.Error(),
				Hint:    "use host:port or unix:/path/to/socket",
			}
		}
	}

	if c.WriteTimeout < 0 || c.PingInterval < 0 || c.ShutdownGrace < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.LogBufferSize < 0 {
		return &errors.ConfigError{Field: "log-buffer", Value: c.LogBufferSize, Message: "must not be negative"}
	}
	return nil
}
