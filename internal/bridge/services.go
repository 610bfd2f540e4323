package bridge

import (
	"context"
	"encoding/json"

	"deskbridge/internal/protocol"
	"deskbridge/internal/session"
)

// Shell drives native windows and dialogs.
type Shell interface {
	FindInPage(ctx context.Context, w protocol.WindowID, text string, opts protocol.FindOptions) (*protocol.FindResult, error)
	StopFindInPage(ctx context.Context, w protocol.WindowID) error
	SetSearchOverlayState(ctx context.Context, w protocol.WindowID, state, force bool) error
	OpenNewWindow(ctx context.Context) error
	ShowDirectoryDialog(ctx context.Context, w protocol.WindowID) ([]string, error)
	StartDrag(ctx context.Context, w protocol.WindowID, files []string) error
	IsHidden(w protocol.WindowID) bool
}

// Desktop manages the mailto: protocol handler registration.
type Desktop interface {
	RegisterMailto(ctx context.Context) error
	UnregisterMailto(ctx context.Context) error
	IsMailtoHandler(ctx context.Context) (bool, error)
}

// Integrator manages desktop integration and launch on login.
type Integrator interface {
	Integrate(ctx context.Context) error
	Unintegrate(ctx context.Context) error
	IsIntegrated(ctx context.Context) (bool, error)
	EnableAutoLaunch(ctx context.Context) error
	DisableAutoLaunch(ctx context.Context) error
	IsAutoLaunchEnabled(ctx context.Context) (bool, error)
}

// Downloads stores files fetched or produced by the renderer.
// *download.Manager implements it.
type Downloads interface {
	Download(ctx context.Context, url, filename string, headers map[string]string) (*protocol.DownloadResult, error)
	SaveBlob(ctx context.Context, filename string, data []byte) (string, error)
	Open(ctx context.Context, path, mimeType string) error
}

// Crypto decrypts downloaded files.
type Crypto interface {
	AESDecryptFile(ctx context.Context, key, path string) (string, error)
}

// PushStore persists the push identifier.  *push.Store implements it.
type PushStore interface {
	Identifier(ctx context.Context) (string, bool, error)
	StoreIdentifier(ctx context.Context, identifier, userID, sseOrigin string) error
}

// Alarms persists push session keys.  *push.Store implements it.
type Alarms interface {
	StoreSessionKey(ctx context.Context, pushIdentifierID, key string) error
}

// Notifier shows native notifications.
type Notifier interface {
	ResolveGroupedNotification(ctx context.Context, userID string) error
}

// ErrorReporter uploads a pending crash report for a window.
type ErrorReporter interface {
	SendErrorReport(ctx context.Context, w protocol.WindowID) error
}

// Updater checks for and installs application updates.  OnDownloaded
// registers fn to run each time an update has been downloaded and is
// ready to install.
type Updater interface {
	UpdateInfo() *protocol.UpdateInfo
	ManualUpdate(ctx context.Context) (bool, error)
	OnDownloaded(fn func())
}

// Language switches the native UI language.
type Language interface {
	SetLanguage(ctx context.Context, lang json.RawMessage) (json.RawMessage, error)
}

// Exporter writes mails to files.  *export.Exporter implements it.
type Exporter interface {
	Write(ctx context.Context, bundles []protocol.MailBundle) error
	Exists(id protocol.IDTuple) bool
	Paths(ids []protocol.IDTuple) []string
}

// SocketRelay forwards admin-client messages in the order they are
// queued.  *socket.Relay implements it.
type SocketRelay interface {
	Enqueue(msg json.RawMessage) error
}

// LogSource returns recent log lines.  *logbuf.Buffer implements it.
type LogSource interface {
	Lines() []string
}

// Config is the desktop config store.  *store.Store implements it.
type Config interface {
	All() map[string]json.RawMessage
	SetAll(values map[string]json.RawMessage) error
}

// Windows looks up connected windows.  *session.Registry implements it.
type Windows interface {
	Get(id protocol.WindowID) (*session.Window, bool)
}

// Services bundles the collaborators of a [Bridge].  Any of them may be
// nil; operations that need a missing one fail with
// errors.ErrServiceUnavailable unless documented otherwise.
type Services struct {
	Shell      Shell
	Desktop    Desktop
	Integrator Integrator
	Downloads  Downloads
	Crypto     Crypto
	Push       PushStore
	Alarms     Alarms
	Notifier   Notifier
	Errors     ErrorReporter
	Updater    Updater
	Language   Language
	Exporter   Exporter
	Socket     SocketRelay
	Logs       LogSource
	Config     Config
	Windows    Windows
}
