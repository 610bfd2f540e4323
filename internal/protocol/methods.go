package protocol

// Method names a renderer→native operation.
type Method string

// ── Lifecycle ────────────────────────────────────────────────────────

const MethodInit Method = "init"

// ── Search overlay ───────────────────────────────────────────────────

const (
	MethodFindInPage            Method = "findInPage"
	MethodStopFindInPage        Method = "stopFindInPage"
	MethodSetSearchOverlayState Method = "setSearchOverlayState"
)

// ── OS integration ───────────────────────────────────────────────────

const (
	MethodRegisterMailto     Method = "registerMailto"
	MethodUnregisterMailto   Method = "unregisterMailto"
	MethodIntegrateDesktop   Method = "integrateDesktop"
	MethodUnIntegrateDesktop Method = "unIntegrateDesktop"
	MethodEnableAutoLaunch   Method = "enableAutoLaunch"
	MethodDisableAutoLaunch  Method = "disableAutoLaunch"
	MethodOpenNewWindow      Method = "openNewWindow"
)

// ── Configuration ────────────────────────────────────────────────────

const (
	MethodSendDesktopConfig   Method = "sendDesktopConfig"
	MethodUpdateDesktopConfig Method = "updateDesktopConfig"
	MethodChangeLanguage      Method = "changeLanguage"
)

// ── Files ────────────────────────────────────────────────────────────

const (
	MethodOpenFileChooser Method = "openFileChooser"
	MethodOpen            Method = "open"
	MethodDownload        Method = "download"
	MethodSaveBlob        Method = "saveBlob"
	MethodAESDecryptFile  Method = "aesDecryptFile"
)

// ── Push notifications ───────────────────────────────────────────────

const (
	MethodGetPushIdentifier          Method = "getPushIdentifier"
	MethodStorePushIdentifierLocally Method = "storePushIdentifierLocally"
	MethodInitPushNotifications      Method = "initPushNotifications"
	MethodClosePushNotifications     Method = "closePushNotifications"
)

// ── Admin, diagnostics, updates ──────────────────────────────────────

const (
	MethodSendSocketMessage Method = "sendSocketMessage"
	MethodGetLog            Method = "getLog"
	MethodManualUpdate      Method = "manualUpdate"
	MethodIsUpdateAvailable Method = "isUpdateAvailable"
)

// ── Mail export ──────────────────────────────────────────────────────

const (
	MethodMailBundleExport   Method = "mailBundleExport"
	MethodQueryAvailableMsgs Method = "queryAvailableMsgs"
	MethodDragExportedMails  Method = "dragExportedMails"
)

// Methods lists the complete method table in a stable order.
var Methods = []Method{
	MethodInit,
	MethodFindInPage, MethodStopFindInPage, MethodSetSearchOverlayState,
	MethodRegisterMailto, MethodUnregisterMailto,
	MethodIntegrateDesktop, MethodUnIntegrateDesktop,
	MethodSendDesktopConfig, MethodOpenFileChooser, MethodOpen, MethodDownload,
	MethodSaveBlob, MethodAESDecryptFile, MethodUpdateDesktopConfig,
	MethodOpenNewWindow, MethodEnableAutoLaunch, MethodDisableAutoLaunch,
	MethodGetPushIdentifier, MethodStorePushIdentifierLocally,
	MethodInitPushNotifications, MethodClosePushNotifications,
	MethodSendSocketMessage, MethodGetLog, MethodChangeLanguage,
	MethodManualUpdate, MethodIsUpdateAvailable,
	MethodMailBundleExport, MethodQueryAvailableMsgs, MethodDragExportedMails,
}

// Outbound names a native→renderer request type.
type Outbound string

const (
	OutboundAppUpdateDownloaded Outbound = "appUpdateDownloaded"
	OutboundInvalidateAlarms    Outbound = "invalidateAlarms"
)
