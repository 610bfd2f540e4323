// Package cmd wires up the CLI flags and starts the bridge.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"deskbridge/config"
	"deskbridge/internal/app"
	"deskbridge/internal/ids"
	"deskbridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X deskbridge/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// usageOut is where help and version text go.
var usageOut io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the bridge until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	if err := config.LoadFromEnv(cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	fs := flag.NewFlagSet("deskbridge", flag.ContinueOnError)
	fs.SetOutput(usageOut)

	// ── server ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Listen address (host:port or unix:/path)")
	fs.StringVar(&cfg.Path, "path", cfg.Path, "WebSocket upgrade path")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Bearer token renderers must present")
	origins := fs.String("origins", strings.Join(cfg.AllowedOrigins, ","), "Extra allowed browser origins (comma-separated)")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "WebSocket keepalive interval (0 disables)")

	// ── storage ──────────────────────────────────────────────────
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Desktop config file (empty keeps it in memory)")
	fs.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "Directory for downloads and saved blobs")
	fs.StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "Directory for exported mails")

	// ── services ─────────────────────────────────────────────────
	fs.StringVar(&cfg.SocketAddr, "socket", cfg.SocketAddr, "Admin-client relay target (host:port or unix:/path)")
	scheme := fs.String("ids", string(cfg.IDScheme), `Correlation id scheme: "counter" or "uuid"`)

	// ── output ───────────────────────────────────────────────────
	var verbose int
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Log as JSON lines")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(usageOut, "deskbridge %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if fs.Changed("origins") {
		list, err := config.ParseOrigins(*origins)
		if err != nil {
			return fmt.Errorf("origins: %w", err)
		}
		cfg.AllowedOrigins = list
	}
	cfg.IDScheme = ids.Scheme(strings.ToLower(*scheme))
	if verbose > 0 {
		cfg.Verbose = 1 + verbose
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	// ── run ──────────────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetJSON(cfg.LogJSON)

	a := app.New(cfg, logger)
	startCtx, cancelStart := context.WithTimeout(context.Background(), a.StartTimeout())
	defer cancelStart()
	if err := a.Start(startCtx); err != nil {
		return err
	}
	logger.Info("deskbridge %s ready", version)

	<-ctx.Done()
	logger.Verbose("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+a.StopTimeout())
	defer cancel()
	return a.Stop(stopCtx)
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(usageOut, `deskbridge – native IPC bridge v%s

Serves renderer windows over WebSocket and multiplexes their requests
onto the native desktop services.

Usage:
  deskbridge [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(usageOut, `
Environment:
  Every option can also be set as DESKBRIDGE_<NAME>, e.g.
  DESKBRIDGE_LISTEN=unix:/run/deskbridge.sock.  Flags take precedence.

Examples:
  deskbridge                                  Serve on %s
  deskbridge -l 0.0.0.0:7377 --token s3cret   Serve on all interfaces
  deskbridge --socket 127.0.0.1:9999 -vv      Relay admin messages
`, config.DefaultListen)
}
