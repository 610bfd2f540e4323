package errors

import (
	"encoding/json"
	"errors"
)

// ErrorObject is the serialized form of an error carried in a
// requestError frame.
type ErrorObject struct {
	Name    string          `json:"name"`
	Message string          `json:"message"`
	Stack   string          `json:"stack,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RemoteError is an error rebuilt from an ErrorObject received from
// the other side of a channel.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	if e.Name == "" || e.Name == defaultName {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Is matches the sentinel registered under the same name, so a decoded
// "UnsupportedOperationError" satisfies errors.Is(err, ErrUnsupportedMethod).
func (e *RemoteError) Is(target error) bool {
	for _, n := range names {
		if n.err == target {
			return n.name == e.Name
		}
	}
	return false
}

const defaultName = "Error"

var names = []struct {
	err  error
	name string
}{
	{ErrUnsupportedMethod, "UnsupportedOperationError"},
	{ErrNoSuchWindow, "NoSuchWindowError"},
	{ErrWindowClosed, "WindowClosedError"},
	{ErrClosed, "DispatcherClosedError"},
	{ErrServiceUnavailable, "ServiceUnavailableError"},
	{ErrNotConnected, "NotConnectedError"},
	{ErrCircuitOpen, "CircuitOpenError"},
	{ErrUnauthorized, "UnauthorizedError"},
}

// Encode flattens err for transmission.  Remote errors keep their
// original name and payload; known sentinels are named after their
// kind; everything else is a plain "Error".
func Encode(err error) ErrorObject {
	if err == nil {
		return ErrorObject{Name: defaultName}
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return ErrorObject{Name: re.Name, Message: re.Message, Stack: re.Stack, Data: re.Data}
	}
	obj := ErrorObject{Name: defaultName, Message: err.Error()}
	for _, n := range names {
		if errors.Is(err, n.err) {
			obj.Name = n.name
			break
		}
	}
	return obj
}

// Decode rebuilds an error from its serialized form.
func Decode(obj ErrorObject) error {
	name := obj.Name
	if name == "" {
		name = defaultName
	}
	return &RemoteError{Name: name, Message: obj.Message, Stack: obj.Stack, Data: obj.Data}
}
