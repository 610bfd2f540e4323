package protocol

import (
	"context"
	"encoding/json"

	"deskbridge/internal/errors"
)

// UnimplementedHandler answers every operation with a "service
// unavailable" error.  Embed it in partial handlers such as test
// doubles; production handlers implement [Handler] in full.
type UnimplementedHandler struct{}

var _ Handler = UnimplementedHandler{}

func unavailable(m Method) error { return errors.Unavailable(string(m)) }

func (UnimplementedHandler) Init(context.Context, WindowID) (string, error) {
	return "", unavailable(MethodInit)
}

func (UnimplementedHandler) FindInPage(context.Context, WindowID, FindInPage) (*FindResult, error) {
	return nil, unavailable(MethodFindInPage)
}

func (UnimplementedHandler) StopFindInPage(context.Context, WindowID) error {
	return unavailable(MethodStopFindInPage)
}

func (UnimplementedHandler) SetSearchOverlayState(context.Context, WindowID, SetSearchOverlayState) error {
	return unavailable(MethodSetSearchOverlayState)
}

func (UnimplementedHandler) RegisterMailto(context.Context) error {
	return unavailable(MethodRegisterMailto)
}

func (UnimplementedHandler) UnregisterMailto(context.Context) error {
	return unavailable(MethodUnregisterMailto)
}

func (UnimplementedHandler) IntegrateDesktop(context.Context) error {
	return unavailable(MethodIntegrateDesktop)
}

func (UnimplementedHandler) UnIntegrateDesktop(context.Context) error {
	return unavailable(MethodUnIntegrateDesktop)
}

func (UnimplementedHandler) EnableAutoLaunch(context.Context) error {
	return unavailable(MethodEnableAutoLaunch)
}

func (UnimplementedHandler) DisableAutoLaunch(context.Context) error {
	return unavailable(MethodDisableAutoLaunch)
}

func (UnimplementedHandler) OpenNewWindow(context.Context) error {
	return unavailable(MethodOpenNewWindow)
}

func (UnimplementedHandler) SendDesktopConfig(context.Context) (map[string]interface{}, error) {
	return nil, unavailable(MethodSendDesktopConfig)
}

func (UnimplementedHandler) UpdateDesktopConfig(context.Context, UpdateDesktopConfig) error {
	return unavailable(MethodUpdateDesktopConfig)
}

func (UnimplementedHandler) ChangeLanguage(context.Context, ChangeLanguage) (json.RawMessage, error) {
	return nil, unavailable(MethodChangeLanguage)
}

func (UnimplementedHandler) OpenFileChooser(context.Context, WindowID, OpenFileChooser) ([]string, error) {
	return nil, unavailable(MethodOpenFileChooser)
}

func (UnimplementedHandler) Open(context.Context, Open) error {
	return unavailable(MethodOpen)
}

func (UnimplementedHandler) Download(context.Context, Download) (*DownloadResult, error) {
	return nil, unavailable(MethodDownload)
}

func (UnimplementedHandler) SaveBlob(context.Context, WindowID, SaveBlob) error {
	return unavailable(MethodSaveBlob)
}

func (UnimplementedHandler) AESDecryptFile(context.Context, AESDecryptFile) (string, error) {
	return "", unavailable(MethodAESDecryptFile)
}

func (UnimplementedHandler) GetPushIdentifier(context.Context, WindowID, GetPushIdentifier) (*string, error) {
	return nil, unavailable(MethodGetPushIdentifier)
}

func (UnimplementedHandler) StorePushIdentifierLocally(context.Context, StorePushIdentifierLocally) error {
	return unavailable(MethodStorePushIdentifierLocally)
}

func (UnimplementedHandler) InitPushNotifications(context.Context) error {
	return unavailable(MethodInitPushNotifications)
}

func (UnimplementedHandler) ClosePushNotifications(context.Context) error {
	return unavailable(MethodClosePushNotifications)
}

func (UnimplementedHandler) SendSocketMessage(context.Context, SendSocketMessage) error {
	return unavailable(MethodSendSocketMessage)
}

func (UnimplementedHandler) GetLog(context.Context) ([]string, error) {
	return nil, unavailable(MethodGetLog)
}

func (UnimplementedHandler) ManualUpdate(context.Context) (bool, error) {
	return false, unavailable(MethodManualUpdate)
}

func (UnimplementedHandler) IsUpdateAvailable(context.Context) (*UpdateInfo, error) {
	return nil, unavailable(MethodIsUpdateAvailable)
}

func (UnimplementedHandler) MailBundleExport(context.Context, MailBundleExport) error {
	return unavailable(MethodMailBundleExport)
}

func (UnimplementedHandler) QueryAvailableMsgs(context.Context, QueryAvailableMsgs) ([]Mail, error) {
	return nil, unavailable(MethodQueryAvailableMsgs)
}

func (UnimplementedHandler) DragExportedMails(context.Context, WindowID, DragExportedMails) error {
	return unavailable(MethodDragExportedMails)
}
