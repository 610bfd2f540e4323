package protocol

import (
	"context"
	"encoding/json"

	"deskbridge/internal/errors"
)

// Handler serves every operation of the method table.  [Invoke] maps
// each Call onto its method with a type switch, which the compiler does
// not check for completeness; TestInvoke_EveryMethodRouted fails when
// a decodable method has no case there.
type Handler interface {
	Init(ctx context.Context, w WindowID) (string, error)

	FindInPage(ctx context.Context, w WindowID, c FindInPage) (*FindResult, error)
	StopFindInPage(ctx context.Context, w WindowID) error
	SetSearchOverlayState(ctx context.Context, w WindowID, c SetSearchOverlayState) error

	RegisterMailto(ctx context.Context) error
	UnregisterMailto(ctx context.Context) error
	IntegrateDesktop(ctx context.Context) error
	UnIntegrateDesktop(ctx context.Context) error
	EnableAutoLaunch(ctx context.Context) error
	DisableAutoLaunch(ctx context.Context) error
	OpenNewWindow(ctx context.Context) error

	SendDesktopConfig(ctx context.Context) (map[string]interface{}, error)
	UpdateDesktopConfig(ctx context.Context, c UpdateDesktopConfig) error
	ChangeLanguage(ctx context.Context, c ChangeLanguage) (json.RawMessage, error)

	OpenFileChooser(ctx context.Context, w WindowID, c OpenFileChooser) ([]string, error)
	Open(ctx context.Context, c Open) error
	Download(ctx context.Context, c Download) (*DownloadResult, error)
	SaveBlob(ctx context.Context, w WindowID, c SaveBlob) error
	AESDecryptFile(ctx context.Context, c AESDecryptFile) (string, error)

	GetPushIdentifier(ctx context.Context, w WindowID, c GetPushIdentifier) (*string, error)
	StorePushIdentifierLocally(ctx context.Context, c StorePushIdentifierLocally) error
	InitPushNotifications(ctx context.Context) error
	ClosePushNotifications(ctx context.Context) error

	SendSocketMessage(ctx context.Context, c SendSocketMessage) error
	GetLog(ctx context.Context) ([]string, error)
	ManualUpdate(ctx context.Context) (bool, error)
	IsUpdateAvailable(ctx context.Context) (*UpdateInfo, error)

	MailBundleExport(ctx context.Context, c MailBundleExport) error
	QueryAvailableMsgs(ctx context.Context, c QueryAvailableMsgs) ([]Mail, error)
	DragExportedMails(ctx context.Context, w WindowID, c DragExportedMails) error
}

// Invoke runs call against h on behalf of window w and returns the
// value to put in the response frame.  Operations without a result
// respond with null.
func Invoke(ctx context.Context, h Handler, w WindowID, call Call) (interface{}, error) {
	switch c := call.(type) {
	case Init:
		return h.Init(ctx, w)
	case FindInPage:
		return h.FindInPage(ctx, w, c)
	case StopFindInPage:
		return nil, h.StopFindInPage(ctx, w)
	case SetSearchOverlayState:
		return nil, h.SetSearchOverlayState(ctx, w, c)
	case RegisterMailto:
		return nil, h.RegisterMailto(ctx)
	case UnregisterMailto:
		return nil, h.UnregisterMailto(ctx)
	case IntegrateDesktop:
		return nil, h.IntegrateDesktop(ctx)
	case UnIntegrateDesktop:
		return nil, h.UnIntegrateDesktop(ctx)
	case EnableAutoLaunch:
		return nil, h.EnableAutoLaunch(ctx)
	case DisableAutoLaunch:
		return nil, h.DisableAutoLaunch(ctx)
	case OpenNewWindow:
		return nil, h.OpenNewWindow(ctx)
	case SendDesktopConfig:
		return h.SendDesktopConfig(ctx)
	case UpdateDesktopConfig:
		return nil, h.UpdateDesktopConfig(ctx, c)
	case ChangeLanguage:
		return h.ChangeLanguage(ctx, c)
	case OpenFileChooser:
		return h.OpenFileChooser(ctx, w, c)
	case Open:
		return nil, h.Open(ctx, c)
	case Download:
		return h.Download(ctx, c)
	case SaveBlob:
		return nil, h.SaveBlob(ctx, w, c)
	case AESDecryptFile:
		return h.AESDecryptFile(ctx, c)
	case GetPushIdentifier:
		return h.GetPushIdentifier(ctx, w, c)
	case StorePushIdentifierLocally:
		return nil, h.StorePushIdentifierLocally(ctx, c)
	case InitPushNotifications:
		return nil, h.InitPushNotifications(ctx)
	case ClosePushNotifications:
		return nil, h.ClosePushNotifications(ctx)
	case SendSocketMessage:
		return nil, h.SendSocketMessage(ctx, c)
	case GetLog:
		return h.GetLog(ctx)
	case ManualUpdate:
		return h.ManualUpdate(ctx)
	case IsUpdateAvailable:
		return h.IsUpdateAvailable(ctx)
	case MailBundleExport:
		return nil, h.MailBundleExport(ctx, c)
	case QueryAvailableMsgs:
		return h.QueryAvailableMsgs(ctx, c)
	case DragExportedMails:
		return nil, h.DragExportedMails(ctx, w, c)
	default:
		return nil, errors.Unsupported(string(call.Method()))
	}
}
