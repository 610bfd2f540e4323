package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"deskbridge/internal/errors"
)

// ArgError reports a positional argument that could not be decoded.
type ArgError struct {
	Method Method
	Index  int
	Err    error
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: argument %d: %v", e.Method, e.Index, e.Err)
}

func (e *ArgError) Unwrap() error { return e.Err }

var errMissing = errors.New("missing")

// Decode maps a method name and its positional arguments onto a typed
// Call.  Names outside the method table fail with an error wrapping
// [errors.ErrUnsupportedMethod].
func Decode(method string, args []json.RawMessage) (Call, error) {
	a := argList{method: Method(method), args: args}

	switch Method(method) {
	case MethodInit:
		return Init{}, nil
	case MethodFindInPage:
		c := FindInPage{}
		c.Text = a.stringOr(0, "")
		a.optional(1, &c.Options)
		return c, a.err
	case MethodStopFindInPage:
		return StopFindInPage{}, nil
	case MethodSetSearchOverlayState:
		return SetSearchOverlayState{State: a.truthy(0), Force: a.truthy(1)}, a.err
	case MethodRegisterMailto:
		return RegisterMailto{}, nil
	case MethodUnregisterMailto:
		return UnregisterMailto{}, nil
	case MethodIntegrateDesktop:
		return IntegrateDesktop{}, nil
	case MethodUnIntegrateDesktop:
		return UnIntegrateDesktop{}, nil
	case MethodSendDesktopConfig:
		return SendDesktopConfig{}, nil
	case MethodOpenFileChooser:
		return OpenFileChooser{Filters: a.raw(0), Directory: a.truthy(1)}, a.err
	case MethodOpen:
		c := Open{Path: a.str(0), MimeType: a.stringOr(1, "")}
		return c, a.err
	case MethodDownload:
		c := Download{SourceURL: a.str(0), Filename: a.str(1)}
		a.optional(2, &c.Headers)
		return c, a.err
	case MethodSaveBlob:
		c := SaveBlob{Filename: a.str(0)}
		if enc := a.str(1); a.err == nil {
			data, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				a.fail(1, err)
			}
			c.Data = data
		}
		return c, a.err
	case MethodAESDecryptFile:
		return AESDecryptFile{Key: a.str(0), Path: a.str(1)}, a.err
	case MethodUpdateDesktopConfig:
		c := UpdateDesktopConfig{}
		a.required(0, &c.Config)
		return c, a.err
	case MethodOpenNewWindow:
		return OpenNewWindow{}, nil
	case MethodEnableAutoLaunch:
		return EnableAutoLaunch{}, nil
	case MethodDisableAutoLaunch:
		return DisableAutoLaunch{}, nil
	case MethodGetPushIdentifier:
		return GetPushIdentifier{User: UserInfo{UserID: a.str(0), MailAddress: a.str(1)}}, a.err
	case MethodStorePushIdentifierLocally:
		return StorePushIdentifierLocally{
			Identifier:       a.str(0),
			UserID:           a.str(1),
			SSEOrigin:        a.str(2),
			PushIdentifierID: a.str(3),
			SessionKey:       a.str(4),
		}, a.err
	case MethodInitPushNotifications:
		return InitPushNotifications{}, nil
	case MethodClosePushNotifications:
		return ClosePushNotifications{}, nil
	case MethodSendSocketMessage:
		return SendSocketMessage{Message: a.raw(0)}, a.err
	case MethodGetLog:
		return GetLog{}, nil
	case MethodChangeLanguage:
		return ChangeLanguage{Language: a.raw(0)}, a.err
	case MethodManualUpdate:
		return ManualUpdate{}, nil
	case MethodIsUpdateAvailable:
		return IsUpdateAvailable{}, nil
	case MethodMailBundleExport:
		c := MailBundleExport{}
		a.required(0, &c.Bundles)
		return c, a.err
	case MethodQueryAvailableMsgs:
		c := QueryAvailableMsgs{}
		a.required(0, &c.Mails)
		return c, a.err
	case MethodDragExportedMails:
		c := DragExportedMails{}
		a.required(0, &c.IDs)
		return c, a.err
	default:
		return nil, errors.Unsupported(method)
	}
}

// ── positional argument helpers ──────────────────────────────────────

// argList records the first decoding failure and ignores later ones.
type argList struct {
	method Method
	args   []json.RawMessage
	err    error
}

func (a *argList) fail(i int, err error) {
	if a.err == nil {
		a.err = &ArgError{Method: a.method, Index: i, Err: err}
	}
}

func (a *argList) present(i int) bool {
	if i >= len(a.args) {
		return false
	}
	v := bytes.TrimSpace(a.args[i])
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

func (a *argList) raw(i int) json.RawMessage {
	if !a.present(i) {
		return nil
	}
	return a.args[i]
}

// str requires argument i and renders scalars the way a loosely typed
// caller would: numbers and booleans are accepted as their text.
func (a *argList) str(i int) string {
	if !a.present(i) {
		a.fail(i, errMissing)
		return ""
	}
	s, err := scalarString(a.args[i])
	if err != nil {
		a.fail(i, err)
	}
	return s
}

func (a *argList) stringOr(i int, def string) string {
	if !a.present(i) {
		return def
	}
	s, err := scalarString(a.args[i])
	if err != nil {
		a.fail(i, err)
	}
	return s
}

// truthy treats a missing argument, false, 0, "" and null as false.
func (a *argList) truthy(i int) bool {
	if !a.present(i) {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(a.args[i], &v); err != nil {
		a.fail(i, err)
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func (a *argList) required(i int, dst interface{}) {
	if !a.present(i) {
		a.fail(i, errMissing)
		return
	}
	if err := json.Unmarshal(a.args[i], dst); err != nil {
		a.fail(i, err)
	}
}

func (a *argList) optional(i int, dst interface{}) {
	if !a.present(i) {
		return
	}
	if err := json.Unmarshal(a.args[i], dst); err != nil {
		a.fail(i, err)
	}
}

func scalarString(raw json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("expected a string, got %s", bytes.TrimSpace(raw))
	}
}
