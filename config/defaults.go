package config

import (
	"os"
	"path/filepath"
	"time"

	"deskbridge/internal/export"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultListen binds the loopback interface only.
	DefaultListen = "127.0.0.1:7377"

	// DefaultPath is where renderers upgrade to WebSocket.
	DefaultPath = "/ipc"

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultPingInterval is how often idle connections are pinged.
	DefaultPingInterval = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for windows to
	// disconnect.
	DefaultGracePeriod = 5 * time.Second

	// DefaultLogBufferSize is the number of log lines kept for getLog.
	DefaultLogBufferSize = 1000
)

// DefaultConfigPath returns the desktop config file location, or ""
// when the user config directory is unknown.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "deskbridge", "conf.json")
}

// DefaultDownloadDir returns ~/Downloads, falling back to a temp dir.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "deskbridge", "download")
	}
	return filepath.Join(home, "Downloads")
}

// DefaultExportDir returns the mail export directory.
func DefaultExportDir() string { return export.DefaultDir() }
