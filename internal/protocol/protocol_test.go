package protocol

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskbridge/internal/errors"
)

func rawArgs(t *testing.T, args ...interface{}) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

// ── frames ───────────────────────────────────────────────────────────

func TestFrame_Kind(t *testing.T) {
	assert.Equal(t, KindRequest, Frame{Type: "init"}.Kind())
	assert.Equal(t, KindResponse, Frame{Type: TypeResponse}.Kind())
	assert.Equal(t, KindError, Frame{Type: TypeRequestError}.Kind())
}

func TestFrame_Envelopes(t *testing.T) {
	req, err := NewRequest("desktop0", string(OutboundAppUpdateDownloaded))
	require.NoError(t, err)
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"desktop0","type":"appUpdateDownloaded","args":[]}`, string(data))

	resp, err := NewResponse("r1", nil)
	require.NoError(t, err)
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r1","type":"response","value":null}`, string(data))

	data, err = json.Marshal(NewError("r2", errors.Unsupported("bogusMethod")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r2","type":"requestError","error":{"name":"UnsupportedOperationError","message":"bogusMethod: unsupported operation"}}`, string(data))
}

func TestFrame_Result(t *testing.T) {
	v, err := Frame{ID: "a", Type: TypeResponse}.Result()
	require.NoError(t, err)
	assert.Equal(t, "null", string(v))

	_, err = NewError("b", errors.ErrWindowClosed).Result()
	assert.True(t, errors.Is(err, errors.ErrWindowClosed))

	_, err = Frame{ID: "c", Type: "init"}.Result()
	assert.Error(t, err)
}

// ── decoding ─────────────────────────────────────────────────────────

func TestDecode_EveryMethodKnown(t *testing.T) {
	seen := map[Method]bool{}
	for _, m := range Methods {
		assert.False(t, seen[m], "duplicate method %s", m)
		seen[m] = true

		_, err := Decode(string(m), nil)
		assert.False(t, errors.Is(err, errors.ErrUnsupportedMethod), "method %s should be known", m)
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode("bogusMethod", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedMethod))
}

func TestDecode_Typed(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		args   []interface{}
		want   Call
	}{
		{"init", MethodInit, nil, Init{}},
		{"find", MethodFindInPage, []interface{}{"needle", FindOptions{Forward: true}},
			FindInPage{Text: "needle", Options: FindOptions{Forward: true}}},
		{"overlay", MethodSetSearchOverlayState, []interface{}{true, 0},
			SetSearchOverlayState{State: true, Force: false}},
		{"chooser folder", MethodOpenFileChooser, []interface{}{nil, 1},
			OpenFileChooser{Directory: true}},
		{"chooser file", MethodOpenFileChooser, nil, OpenFileChooser{}},
		{"open", MethodOpen, []interface{}{"/tmp/a.pdf", "application/pdf"},
			Open{Path: "/tmp/a.pdf", MimeType: "application/pdf"}},
		{"download", MethodDownload, []interface{}{"https://x/f", "f.bin", map[string]string{"v": "1"}},
			Download{SourceURL: "https://x/f", Filename: "f.bin", Headers: map[string]string{"v": "1"}}},
		{"save blob", MethodSaveBlob, []interface{}{"a.txt", "aGVsbG8="},
			SaveBlob{Filename: "a.txt", Data: []byte("hello")}},
		{"push id numbers", MethodGetPushIdentifier, []interface{}{42, "a@b.c"},
			GetPushIdentifier{User: UserInfo{UserID: "42", MailAddress: "a@b.c"}}},
		{"store push id", MethodStorePushIdentifierLocally, []interface{}{"ident", "u1", "https://sse", "pid", "key"},
			StorePushIdentifierLocally{Identifier: "ident", UserID: "u1", SSEOrigin: "https://sse", PushIdentifierID: "pid", SessionKey: "key"}},
		{"drag", MethodDragExportedMails, []interface{}{[][]string{{"l", "e"}}},
			DragExportedMails{IDs: []IDTuple{{"l", "e"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(string(tt.method), rawArgs(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.method, got.Method())
		})
	}
}

func TestDecode_ArgErrors(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		args   []interface{}
		index  int
	}{
		{"missing path", MethodOpen, nil, 0},
		{"bad base64", MethodSaveBlob, []interface{}{"a", "***"}, 1},
		{"missing mail address", MethodGetPushIdentifier, []interface{}{"u"}, 1},
		{"object as string", MethodAESDecryptFile, []interface{}{map[string]int{"a": 1}, "p"}, 0},
		{"bundles not a list", MethodMailBundleExport, []interface{}{"x"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(string(tt.method), rawArgs(t, tt.args...))
			var ae *ArgError
			require.True(t, errors.As(err, &ae), "got %v", err)
			assert.Equal(t, tt.method, ae.Method)
			assert.Equal(t, tt.index, ae.Index)
		})
	}
}

func TestDecode_RequiresReady(t *testing.T) {
	for _, m := range Methods {
		c, _ := Decode(string(m), nil)
		if c == nil {
			continue
		}
		g, ok := c.(ReadyGated)
		want := m == MethodFindInPage || m == MethodStopFindInPage
		assert.Equal(t, want, ok && g.RequiresReady(), "method %s", m)
	}
}

// ── types ────────────────────────────────────────────────────────────

func TestByteArray_Forms(t *testing.T) {
	var a, b ByteArray
	require.NoError(t, json.Unmarshal([]byte(`[104,105]`), &a))
	require.NoError(t, json.Unmarshal([]byte(`"aGk="`), &b))
	assert.Equal(t, ByteArray("hi"), a)
	assert.Equal(t, a, b)

	var c ByteArray
	assert.Error(t, json.Unmarshal([]byte(`[300]`), &c))
}

func TestMail_PreservesPayload(t *testing.T) {
	in := `{"_id":["list","elem"],"subject":"hi","unread":true}`
	var m Mail
	require.NoError(t, json.Unmarshal([]byte(in), &m))
	assert.Equal(t, IDTuple{"list", "elem"}, m.ID)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

// ── invoke ───────────────────────────────────────────────────────────

type platformHandler struct {
	UnimplementedHandler
}

func (platformHandler) Init(context.Context, WindowID) (string, error) { return "linux", nil }

func TestInvoke(t *testing.T) {
	h := platformHandler{}

	v, err := Invoke(context.Background(), h, 1, Init{})
	require.NoError(t, err)
	assert.Equal(t, "linux", v)

	_, err = Invoke(context.Background(), h, 1, GetLog{})
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
}

func TestInvoke_EveryMethodRouted(t *testing.T) {
	for _, m := range Methods {
		call, _ := Decode(string(m), nil)
		require.NotNil(t, call, "method %s", m)
		assert.Equal(t, m, call.Method())

		_, err := Invoke(context.Background(), UnimplementedHandler{}, 1, call)
		assert.False(t, errors.Is(err, errors.ErrUnsupportedMethod), "method %s has no case in Invoke", m)
	}
}

type rogueCall struct{}

func (rogueCall) Method() Method { return "rogue" }

func TestInvoke_UnknownCall(t *testing.T) {
	_, err := Invoke(context.Background(), UnimplementedHandler{}, 1, rogueCall{})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedMethod))
}
