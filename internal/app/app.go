// Package app assembles the bridge process from its components.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"deskbridge/config"
	"deskbridge/internal/bridge"
	"deskbridge/internal/core"
	"deskbridge/internal/dispatch"
	"deskbridge/internal/download"
	"deskbridge/internal/export"
	"deskbridge/internal/ids"
	"deskbridge/internal/logbuf"
	"deskbridge/internal/metrics"
	"deskbridge/internal/push"
	"deskbridge/internal/session"
	"deskbridge/internal/socket"
	"deskbridge/internal/store"
	"deskbridge/internal/transport"
	"deskbridge/util"
)

// New builds the application.  The log buffer behind getLog is
// attached to log before any component logger is derived from it.
//
// Platform services (bridge.Shell, bridge.Updater, ...) are optional
// dependencies; an embedder supplies them through extra, for example
// fx.Supply(fx.Annotate(u, fx.As(new(bridge.Updater)))).
func New(cfg *config.Config, log *util.Logger, extra ...fx.Option) *fx.App {
	return fx.New(Options(cfg, log, extra...))
}

// Options returns the full option set, for New and for tests.
func Options(cfg *config.Config, log *util.Logger, extra ...fx.Option) fx.Option {
	buf := logbuf.New(cfg.LogBufferSize)
	log.Tee(buf.Core(zapcore.InfoLevel))

	opts := []fx.Option{
		fx.Supply(cfg, log, buf),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx").Zap()}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Module("storage",
			fx.Provide(openStore, push.New, newExporter, newDownloads),
		),
		fx.Module("services",
			fx.Provide(newRelay, newBridge),
		),
		fx.Module("ipc",
			fx.Provide(metrics.New, newGatherer, session.NewRegistry, newDispatcher, newHost, newServer),
			fx.Invoke(registerServer, registerUpdates),
		),
	}
	return fx.Options(append(opts, extra...)...)
}

// ── storage ──────────────────────────────────────────────────────────

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.ConfigPath)
}

func newExporter(cfg *config.Config) (*export.Exporter, error) {
	return export.New(cfg.ExportDir, export.JSONEncoder{})
}

func newDownloads(cfg *config.Config, log *util.Logger) (*download.Manager, error) {
	return download.New(cfg.DownloadDir, download.WithLogger(log.Named("download")))
}

// ── services ─────────────────────────────────────────────────────────

// newRelay returns nil when no socket address is configured.
func newRelay(lc fx.Lifecycle, cfg *config.Config, m *metrics.Collector, log *util.Logger) (*socket.Relay, error) {
	if cfg.SocketAddr == "" {
		return nil, nil
	}
	r, err := socket.New(socket.Config{
		Address: cfg.SocketAddr,
		Metrics: m,
		Logger:  log.Named("socket"),
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(r.Shutdown))
	return r, nil
}

type bridgeParams struct {
	fx.In

	Log       *util.Logger
	Logs      *logbuf.Buffer
	Config    *store.Store
	Push      *push.Store
	Exporter  *export.Exporter
	Downloads *download.Manager
	Windows   *session.Registry
	Relay     *socket.Relay

	Shell      bridge.Shell         `optional:"true"`
	Desktop    bridge.Desktop       `optional:"true"`
	Integrator bridge.Integrator    `optional:"true"`
	Crypto     bridge.Crypto        `optional:"true"`
	Notifier   bridge.Notifier      `optional:"true"`
	Errors     bridge.ErrorReporter `optional:"true"`
	Updater    bridge.Updater       `optional:"true"`
	Language   bridge.Language      `optional:"true"`
}

func newBridge(p bridgeParams) *bridge.Bridge {
	svc := bridge.Services{
		Shell:      p.Shell,
		Desktop:    p.Desktop,
		Integrator: p.Integrator,
		Downloads:  p.Downloads,
		Crypto:     p.Crypto,
		Push:       p.Push,
		Alarms:     p.Push,
		Notifier:   p.Notifier,
		Errors:     p.Errors,
		Updater:    p.Updater,
		Language:   p.Language,
		Exporter:   p.Exporter,
		Logs:       p.Logs,
		Config:     p.Config,
		Windows:    p.Windows,
	}
	if p.Relay != nil {
		svc.Socket = p.Relay
	}
	return bridge.New(svc, p.Log.Named("bridge"))
}

// ── ipc ──────────────────────────────────────────────────────────────

func newGatherer(m *metrics.Collector) (prometheus.Gatherer, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		m,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return reg, nil
}

func newDispatcher(lc fx.Lifecycle, cfg *config.Config, b *bridge.Bridge, m *metrics.Collector, log *util.Logger) (*dispatch.Dispatcher, error) {
	gen, ok := ids.New(cfg.IDScheme)
	if !ok {
		return nil, fmt.Errorf("unknown id scheme %q", cfg.IDScheme)
	}
	d := dispatch.New(b,
		dispatch.WithIDs(gen),
		dispatch.WithMetrics(m),
		dispatch.WithLogger(log.Named("dispatch")),
	)
	lc.Append(fx.StopHook(d.Close))
	return d, nil
}

func newHost(reg *session.Registry, d *dispatch.Dispatcher, p *push.Store, m *metrics.Collector, log *util.Logger) *core.Host {
	return &core.Host{
		Registry:   reg,
		Dispatcher: d,
		Push:       p,
		Metrics:    m,
		Logger:     log.Named("host"),
	}
}

func newServer(cfg *config.Config, h *core.Host, m *metrics.Collector, g prometheus.Gatherer, log *util.Logger) *transport.Server {
	return transport.NewServer(transport.ServerConfig{
		Path:           cfg.Path,
		Token:          cfg.Token,
		AllowedOrigins: cfg.AllowedOrigins,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		Metrics:        m,
		Gatherer:       g,
		Logger:         log.Named("transport"),
	}, h.Connect)
}

type updateParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Host      *core.Host
	Updater   bridge.Updater `optional:"true"`
}

// registerUpdates forwards finished update downloads to every window.
func registerUpdates(p updateParams) {
	if p.Updater == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.StopHook(cancel))
	p.Host.WatchUpdates(ctx, p.Updater)
}

func registerServer(lc fx.Lifecycle, cfg *config.Config, s *transport.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			_, err := s.Listen(cfg.Listen)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if cfg.ShutdownGrace > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.ShutdownGrace)
				defer cancel()
			}
			return s.Shutdown(ctx)
		},
	})
}
