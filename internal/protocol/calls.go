package protocol

import "encoding/json"

// Call is one decoded renderer→native operation with typed arguments.
// The set of implementations is closed: see [Decode] and [Invoke].
type Call interface {
	Method() Method
}

// ReadyGated is implemented by calls that must wait until the calling
// window finished its init handshake.
type ReadyGated interface {
	RequiresReady() bool
}

type (
	Init struct{}

	FindInPage struct {
		Text    string
		Options FindOptions
	}
	StopFindInPage        struct{}
	SetSearchOverlayState struct{ State, Force bool }

	RegisterMailto     struct{}
	UnregisterMailto   struct{}
	IntegrateDesktop   struct{}
	UnIntegrateDesktop struct{}
	EnableAutoLaunch   struct{}
	DisableAutoLaunch  struct{}
	OpenNewWindow      struct{}

	SendDesktopConfig   struct{}
	UpdateDesktopConfig struct{ Config map[string]json.RawMessage }
	ChangeLanguage      struct{ Language json.RawMessage }

	// OpenFileChooser opens a directory dialog when Directory is set.
	OpenFileChooser struct {
		Filters   json.RawMessage
		Directory bool
	}
	Open struct{ Path, MimeType string }

	Download struct {
		SourceURL string
		Filename  string
		Headers   map[string]string
	}
	SaveBlob struct {
		Filename string
		Data     []byte
	}
	AESDecryptFile struct{ Key, Path string }

	GetPushIdentifier struct{ User UserInfo }

	StorePushIdentifierLocally struct {
		Identifier       string
		UserID           string
		SSEOrigin        string
		PushIdentifierID string
		SessionKey       string
	}
	InitPushNotifications  struct{}
	ClosePushNotifications struct{}

	SendSocketMessage struct{ Message json.RawMessage }
	GetLog            struct{}
	ManualUpdate      struct{}
	IsUpdateAvailable struct{}

	MailBundleExport   struct{ Bundles []MailBundle }
	QueryAvailableMsgs struct{ Mails []Mail }
	DragExportedMails  struct{ IDs []IDTuple }
)

func (Init) Method() Method                       { return MethodInit }
func (FindInPage) Method() Method                 { return MethodFindInPage }
func (StopFindInPage) Method() Method             { return MethodStopFindInPage }
func (SetSearchOverlayState) Method() Method      { return MethodSetSearchOverlayState }
func (RegisterMailto) Method() Method             { return MethodRegisterMailto }
func (UnregisterMailto) Method() Method           { return MethodUnregisterMailto }
func (IntegrateDesktop) Method() Method           { return MethodIntegrateDesktop }
func (UnIntegrateDesktop) Method() Method         { return MethodUnIntegrateDesktop }
func (EnableAutoLaunch) Method() Method           { return MethodEnableAutoLaunch }
func (DisableAutoLaunch) Method() Method          { return MethodDisableAutoLaunch }
func (OpenNewWindow) Method() Method              { return MethodOpenNewWindow }
func (SendDesktopConfig) Method() Method          { return MethodSendDesktopConfig }
func (UpdateDesktopConfig) Method() Method        { return MethodUpdateDesktopConfig }
func (ChangeLanguage) Method() Method             { return MethodChangeLanguage }
func (OpenFileChooser) Method() Method            { return MethodOpenFileChooser }
func (Open) Method() Method                       { return MethodOpen }
func (Download) Method() Method                   { return MethodDownload }
func (SaveBlob) Method() Method                   { return MethodSaveBlob }
func (AESDecryptFile) Method() Method             { return MethodAESDecryptFile }
func (GetPushIdentifier) Method() Method          { return MethodGetPushIdentifier }
func (StorePushIdentifierLocally) Method() Method { return MethodStorePushIdentifierLocally }
func (InitPushNotifications) Method() Method      { return MethodInitPushNotifications }
func (ClosePushNotifications) Method() Method     { return MethodClosePushNotifications }
func (SendSocketMessage) Method() Method          { return MethodSendSocketMessage }
func (GetLog) Method() Method                     { return MethodGetLog }
func (ManualUpdate) Method() Method               { return MethodManualUpdate }
func (IsUpdateAvailable) Method() Method          { return MethodIsUpdateAvailable }
func (MailBundleExport) Method() Method           { return MethodMailBundleExport }
func (QueryAvailableMsgs) Method() Method         { return MethodQueryAvailableMsgs }
func (DragExportedMails) Method() Method          { return MethodDragExportedMails }

func (FindInPage) RequiresReady() bool     { return true }
func (StopFindInPage) RequiresReady() bool { return true }
