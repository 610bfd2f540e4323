package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"

	"deskbridge/internal/ids"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the DESKBRIDGE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.  An unparsable origin
// list is returned as an error.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("DESKBRIDGE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DESKBRIDGE_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("DESKBRIDGE_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("DESKBRIDGE_ORIGINS"); v != "" {
		origins, err := ParseOrigins(v)
		if err != nil {
			return err
		}
		cfg.AllowedOrigins = origins
	}
	if v := envInt("DESKBRIDGE_PING_INTERVAL"); v > 0 {
		cfg.PingInterval = secondsDuration(v)
	}
	if v := envInt("DESKBRIDGE_WRITE_TIMEOUT"); v > 0 {
		cfg.WriteTimeout = secondsDuration(v)
	}

	// Storage
	if v := os.Getenv("DESKBRIDGE_CONFIG"); v != "" {
		cfg.ConfigPath = v
	}
	if v := os.Getenv("DESKBRIDGE_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("DESKBRIDGE_EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}

	// Services
	if v := os.Getenv("DESKBRIDGE_SOCKET"); v != "" {
		cfg.SocketAddr = v
	}
	if v := os.Getenv("DESKBRIDGE_IDS"); v != "" {
		cfg.IDScheme = ids.Scheme(strings.ToLower(v))
	}

	// Output
	if v := envInt("DESKBRIDGE_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if envBool("DESKBRIDGE_LOG_JSON") {
		cfg.LogJSON = true
	}
	if v := envInt("DESKBRIDGE_LOG_BUFFER"); v > 0 {
		cfg.LogBufferSize = v
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
