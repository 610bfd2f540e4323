// Package bridge serves the renderer→native operations on top of the
// host's native services.
package bridge

import (
	"context"
	"encoding/json"
	"runtime"

	"golang.org/x/sync/errgroup"

	"deskbridge/internal/errors"
	"deskbridge/internal/protocol"
	"deskbridge/util"
)

// Bridge implements [protocol.Handler].
type Bridge struct {
	svc Services
	log *util.Logger
}

var _ protocol.Handler = (*Bridge)(nil)

// New returns a bridge over svc.  log may be nil.
func New(svc Services, log *util.Logger) *Bridge {
	if log == nil {
		log = util.Nop()
	}
	return &Bridge{svc: svc, log: log}
}

// Platform reports the host OS the way renderers expect it.
func Platform() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}

func missing(m protocol.Method) error { return errors.Unavailable(string(m)) }

// ── Lifecycle and search ─────────────────────────────────────────────

func (b *Bridge) Init(context.Context, protocol.WindowID) (string, error) {
	return Platform(), nil
}

// FindInPage returns no matches for windows without a shell.  Shell
// failures are logged and resolve to null.
func (b *Bridge) FindInPage(ctx context.Context, w protocol.WindowID, c protocol.FindInPage) (*protocol.FindResult, error) {
	if b.svc.Shell == nil || !b.hasWindow(w) {
		return &protocol.FindResult{}, nil
	}
	res, err := b.svc.Shell.FindInPage(ctx, w, c.Text, c.Options)
	if err != nil {
		b.log.Debug("findInPage %q on %s rejected: %v", c.Text, w, err)
		return nil, nil
	}
	return res, nil
}

func (b *Bridge) StopFindInPage(ctx context.Context, w protocol.WindowID) error {
	if b.svc.Shell == nil || !b.hasWindow(w) {
		return nil
	}
	if err := b.svc.Shell.StopFindInPage(ctx, w); err != nil {
		b.log.Debug("stopFindInPage on %s: %v", w, err)
	}
	return nil
}

func (b *Bridge) SetSearchOverlayState(ctx context.Context, w protocol.WindowID, c protocol.SetSearchOverlayState) error {
	if b.svc.Shell == nil || !b.hasWindow(w) {
		return nil
	}
	return b.svc.Shell.SetSearchOverlayState(ctx, w, c.State, c.Force)
}

// ── OS integration ───────────────────────────────────────────────────

func (b *Bridge) RegisterMailto(ctx context.Context) error {
	if b.svc.Desktop == nil {
		return missing(protocol.MethodRegisterMailto)
	}
	return b.svc.Desktop.RegisterMailto(ctx)
}

func (b *Bridge) UnregisterMailto(ctx context.Context) error {
	if b.svc.Desktop == nil {
		return missing(protocol.MethodUnregisterMailto)
	}
	return b.svc.Desktop.UnregisterMailto(ctx)
}

func (b *Bridge) IntegrateDesktop(ctx context.Context) error {
	if b.svc.Integrator == nil {
		return missing(protocol.MethodIntegrateDesktop)
	}
	return b.svc.Integrator.Integrate(ctx)
}

func (b *Bridge) UnIntegrateDesktop(ctx context.Context) error {
	if b.svc.Integrator == nil {
		return missing(protocol.MethodUnIntegrateDesktop)
	}
	return b.svc.Integrator.Unintegrate(ctx)
}

func (b *Bridge) EnableAutoLaunch(ctx context.Context) error {
	if b.svc.Integrator == nil {
		return missing(protocol.MethodEnableAutoLaunch)
	}
	return b.svc.Integrator.EnableAutoLaunch(ctx)
}

func (b *Bridge) DisableAutoLaunch(ctx context.Context) error {
	if b.svc.Integrator == nil {
		return missing(protocol.MethodDisableAutoLaunch)
	}
	return b.svc.Integrator.DisableAutoLaunch(ctx)
}

func (b *Bridge) OpenNewWindow(ctx context.Context) error {
	if b.svc.Shell == nil {
		return missing(protocol.MethodOpenNewWindow)
	}
	return b.svc.Shell.OpenNewWindow(ctx)
}

// ── Configuration ────────────────────────────────────────────────────

// SendDesktopConfig returns the stored config plus the live integration
// state.  Services that are not wired report false.
func (b *Bridge) SendDesktopConfig(ctx context.Context) (map[string]interface{}, error) {
	var mailto, autoLaunch, integrated bool

	g, gctx := errgroup.WithContext(ctx)
	if d := b.svc.Desktop; d != nil {
		g.Go(func() (err error) {
			mailto, err = d.IsMailtoHandler(gctx)
			return err
		})
	}
	if in := b.svc.Integrator; in != nil {
		g.Go(func() (err error) {
			autoLaunch, err = in.IsAutoLaunchEnabled(gctx)
			return err
		})
		g.Go(func() (err error) {
			integrated, err = in.IsIntegrated(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	config := make(map[string]interface{})
	if b.svc.Config != nil {
		for k, v := range b.svc.Config.All() {
			config[k] = v
		}
	}
	config["isMailtoHandler"] = mailto
	config["runOnStartup"] = autoLaunch
	config["isIntegrated"] = integrated
	if b.svc.Updater != nil {
		config["updateInfo"] = b.svc.Updater.UpdateInfo()
	} else {
		config["updateInfo"] = nil
	}
	return config, nil
}

func (b *Bridge) UpdateDesktopConfig(_ context.Context, c protocol.UpdateDesktopConfig) error {
	if b.svc.Config == nil {
		return missing(protocol.MethodUpdateDesktopConfig)
	}
	return b.svc.Config.SetAll(c.Config)
}

func (b *Bridge) ChangeLanguage(ctx context.Context, c protocol.ChangeLanguage) (json.RawMessage, error) {
	if b.svc.Language == nil {
		return nil, missing(protocol.MethodChangeLanguage)
	}
	return b.svc.Language.SetLanguage(ctx, c.Language)
}

// ── Files ────────────────────────────────────────────────────────────

// OpenFileChooser only supports picking directories; file requests
// resolve to an empty selection.
func (b *Bridge) OpenFileChooser(ctx context.Context, w protocol.WindowID, c protocol.OpenFileChooser) ([]string, error) {
	if !c.Directory {
		return []string{}, nil
	}
	if b.svc.Shell == nil {
		return nil, missing(protocol.MethodOpenFileChooser)
	}
	paths, err := b.svc.Shell.ShowDirectoryDialog(ctx, w)
	if err != nil {
		return nil, err
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

func (b *Bridge) Open(ctx context.Context, c protocol.Open) error {
	if b.svc.Downloads == nil {
		return missing(protocol.MethodOpen)
	}
	return b.svc.Downloads.Open(ctx, c.Path, c.MimeType)
}

func (b *Bridge) Download(ctx context.Context, c protocol.Download) (*protocol.DownloadResult, error) {
	if b.svc.Downloads == nil {
		return nil, missing(protocol.MethodDownload)
	}
	return b.svc.Downloads.Download(ctx, c.SourceURL, c.Filename, c.Headers)
}

func (b *Bridge) SaveBlob(ctx context.Context, w protocol.WindowID, c protocol.SaveBlob) error {
	if b.svc.Downloads == nil {
		return missing(protocol.MethodSaveBlob)
	}
	path, err := b.svc.Downloads.SaveBlob(ctx, c.Filename, c.Data)
	if err != nil {
		return err
	}
	b.log.Verbose("%s saved %d bytes to %s", w, len(c.Data), path)
	return nil
}

func (b *Bridge) AESDecryptFile(ctx context.Context, c protocol.AESDecryptFile) (string, error) {
	if b.svc.Crypto == nil {
		return "", missing(protocol.MethodAESDecryptFile)
	}
	return b.svc.Crypto.AESDecryptFile(ctx, c.Key, c.Path)
}

// ── Push ─────────────────────────────────────────────────────────────

// GetPushIdentifier flushes a pending error report, binds the user to
// the window and returns the stored identifier.  A window that is
// already gone yields null.
func (b *Bridge) GetPushIdentifier(ctx context.Context, w protocol.WindowID, c protocol.GetPushIdentifier) (*string, error) {
	if b.svc.Errors != nil {
		if err := b.svc.Errors.SendErrorReport(ctx, w); err != nil {
			return nil, err
		}
	}

	if b.svc.Windows == nil {
		return nil, missing(protocol.MethodGetPushIdentifier)
	}
	win, ok := b.svc.Windows.Get(w)
	if !ok {
		return nil, nil
	}
	win.SetUserInfo(c.User)

	if b.svc.Notifier != nil && (b.svc.Shell == nil || !b.svc.Shell.IsHidden(w)) {
		if err := b.svc.Notifier.ResolveGroupedNotification(ctx, c.User.UserID); err != nil {
			b.log.Warn("resolving notifications for %s: %v", c.User.UserID, err)
		}
	}

	if b.svc.Push == nil {
		return nil, nil
	}
	id, ok, err := b.svc.Push.Identifier(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// StorePushIdentifierLocally saves the identifier and the session key
// concurrently.
func (b *Bridge) StorePushIdentifierLocally(ctx context.Context, c protocol.StorePushIdentifierLocally) error {
	if b.svc.Push == nil || b.svc.Alarms == nil {
		return missing(protocol.MethodStorePushIdentifierLocally)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.svc.Push.StoreIdentifier(gctx, c.Identifier, c.UserID, c.SSEOrigin)
	})
	g.Go(func() error {
		return b.svc.Alarms.StoreSessionKey(gctx, c.PushIdentifierID, c.SessionKey)
	})
	return g.Wait()
}

// InitPushNotifications is a no-op: the push connection is owned by
// the native side.
func (b *Bridge) InitPushNotifications(context.Context) error { return nil }

// ClosePushNotifications is a no-op on desktop.
func (b *Bridge) ClosePushNotifications(context.Context) error { return nil }

// ── Misc ─────────────────────────────────────────────────────────────

// SendSocketMessage queues the message on the relay and returns without
// waiting for delivery.  A rejected message is logged, not reported.
func (b *Bridge) SendSocketMessage(_ context.Context, c protocol.SendSocketMessage) error {
	relay := b.svc.Socket
	if relay == nil {
		return nil
	}
	if err := relay.Enqueue(c.Message); err != nil {
		b.log.Warn("socket message dropped: %v", err)
	}
	return nil
}

func (b *Bridge) GetLog(context.Context) ([]string, error) {
	if b.svc.Logs == nil {
		return []string{}, nil
	}
	return b.svc.Logs.Lines(), nil
}

// ManualUpdate reports false when no updater is configured.
func (b *Bridge) ManualUpdate(ctx context.Context) (bool, error) {
	if b.svc.Updater == nil {
		return false, nil
	}
	return b.svc.Updater.ManualUpdate(ctx)
}

func (b *Bridge) IsUpdateAvailable(context.Context) (*protocol.UpdateInfo, error) {
	if b.svc.Updater == nil {
		return nil, nil
	}
	return b.svc.Updater.UpdateInfo(), nil
}

// ── Mail export ──────────────────────────────────────────────────────

func (b *Bridge) MailBundleExport(ctx context.Context, c protocol.MailBundleExport) error {
	if b.svc.Exporter == nil {
		return missing(protocol.MethodMailBundleExport)
	}
	return b.svc.Exporter.Write(ctx, c.Bundles)
}

// QueryAvailableMsgs returns the mails that have not been exported yet.
func (b *Bridge) QueryAvailableMsgs(_ context.Context, c protocol.QueryAvailableMsgs) ([]protocol.Mail, error) {
	if b.svc.Exporter == nil {
		return nil, missing(protocol.MethodQueryAvailableMsgs)
	}
	out := make([]protocol.Mail, 0, len(c.Mails))
	for _, m := range c.Mails {
		if !b.svc.Exporter.Exists(m.ID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *Bridge) DragExportedMails(ctx context.Context, w protocol.WindowID, c protocol.DragExportedMails) error {
	if b.svc.Exporter == nil || b.svc.Shell == nil {
		return missing(protocol.MethodDragExportedMails)
	}
	return b.svc.Shell.StartDrag(ctx, w, b.svc.Exporter.Paths(c.IDs))
}

func (b *Bridge) hasWindow(w protocol.WindowID) bool {
	if b.svc.Windows == nil {
		return true
	}
	_, ok := b.svc.Windows.Get(w)
	return ok
}
