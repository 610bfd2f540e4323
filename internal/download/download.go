// Package download fetches remote files and saves renderer blobs into
// the download directory, and opens files with the platform handler.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"deskbridge/internal/export"
	"deskbridge/internal/protocol"
	"deskbridge/util"
)

// Opener hands a file to the desktop environment.
type Opener func(ctx context.Context, path string) error

// Manager owns one download directory.
type Manager struct {
	dir    string
	client *http.Client
	open   Opener
	log    *util.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option { return func(m *Manager) { m.client = c } }

// WithOpener replaces the platform file opener.
func WithOpener(o Opener) Option { return func(m *Manager) { m.open = o } }

// WithLogger sets the logger.
func WithLogger(l *util.Logger) Option { return func(m *Manager) { m.log = l } }

// New creates the download directory if needed.
func New(dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "deskbridge", "download")
	}
	m := &Manager{
		dir: dir,
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    4,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		open: SystemOpener,
		log:  util.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating download dir: %w", err)
	}
	return m, nil
}

// Dir returns the download directory.
func (m *Manager) Dir() string { return m.dir }

// Download fetches sourceURL into the download directory.  Non-200
// replies are reported in the result without writing a file; only
// transport failures return an error.
func (m *Manager) Download(ctx context.Context, sourceURL, filename string, headers map[string]string) (*protocol.DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	result := &protocol.DownloadResult{
		StatusCode:    resp.StatusCode,
		StatusMessage: strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
	}
	if resp.StatusCode != http.StatusOK {
		m.log.Verbose("download %s: %s", sourceURL, resp.Status)
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return result, nil
	}

	path, err := m.create(filename, func(f *os.File) error {
		_, err := io.Copy(f, resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.EncryptedFileURI = path
	m.log.Verbose("downloaded %s to %s", sourceURL, path)
	return result, nil
}

// SaveBlob writes data under a unique name derived from filename and
// returns the path.
func (m *Manager) SaveBlob(_ context.Context, filename string, data []byte) (string, error) {
	return m.create(filename, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// Open shows path with the system's default application.
func (m *Manager) Open(ctx context.Context, path, _ string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return m.open(ctx, path)
}

// create writes a new file "name", "name (1)", ... without replacing
// existing files.
func (m *Manager) create(filename string, fill func(*os.File) error) (string, error) {
	name := export.LegalizeFilename(filepath.Base(filename))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(m.dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", path, err)
		}
		if err := fill(f); err != nil {
			f.Close()
			os.Remove(path) //nolint:errcheck
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
		return path, nil
	}
}

// SystemOpener launches the platform's file handler.
func SystemOpener(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", path)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}
