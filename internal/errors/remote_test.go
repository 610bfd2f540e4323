package errors

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Sentinels(t *testing.T) {
	tests := []struct {
		err  error
		name string
	}{
		{Unsupported("bogusMethod"), "UnsupportedOperationError"},
		{fmt.Errorf("send: %w", ErrNoSuchWindow), "NoSuchWindowError"},
		{ErrWindowClosed, "WindowClosedError"},
		{Unavailable("crypto"), "ServiceUnavailableError"},
		{fmt.Errorf("disk full"), "Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := Encode(tt.err)
			assert.Equal(t, tt.name, obj.Name)
			assert.Equal(t, tt.err.Error(), obj.Message)
		})
	}
}

func TestDecode_MatchesSentinel(t *testing.T) {
	err := Decode(Encode(Unsupported("bogusMethod")))

	var re *RemoteError
	require.True(t, As(err, &re))
	assert.True(t, Is(err, ErrUnsupportedMethod))
	assert.False(t, Is(err, ErrNoSuchWindow))
	assert.Equal(t, "UnsupportedOperationError: bogusMethod: unsupported operation", err.Error())
}

func TestDecode_PlainError(t *testing.T) {
	err := Decode(ErrorObject{Message: "boom"})
	assert.Equal(t, "boom", err.Error())
	assert.False(t, Is(err, ErrUnsupportedMethod))
}

func TestEncode_RemoteRoundTrip(t *testing.T) {
	in := ErrorObject{
		Name:    "CryptoError",
		Message: "bad key",
		Stack:   "at decrypt",
		Data:    json.RawMessage(`{"code":7}`),
	}
	out := Encode(Decode(in))
	assert.Equal(t, in, out)
}

func TestErrorObject_JSON(t *testing.T) {
	data, err := json.Marshal(Encode(ErrWindowClosed))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"WindowClosedError","message":"window closed"}`, string(data))
}
