// Package protocol defines the wire envelopes exchanged with renderer
// windows and the closed table of operations the native side serves.
//
// Every frame is a JSON object with an "id" and a "type".  Requests
// carry positional "args"; responses carry a "value"; errors carry a
// serialized "error".  The correlation id, not arrival order, links a
// response to its request.
package protocol

import (
	"encoding/json"
	"fmt"

	"deskbridge/internal/errors"
)

// WindowID identifies one renderer surface.
type WindowID uint64

func (id WindowID) String() string { return fmt.Sprintf("window %d", uint64(id)) }

// Frame types that are not method names.
const (
	TypeResponse     = "response"
	TypeRequestError = "requestError"
)

// Kind classifies a frame.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindError
)

// Frame is the single envelope shape used in both directions.
type Frame struct {
	ID    string              `json:"id"`
	Type  string              `json:"type"`
	Args  []json.RawMessage   `json:"args,omitempty"`
	Value json.RawMessage     `json:"value,omitempty"`
	Error *errors.ErrorObject `json:"error,omitempty"`
}

// Kind reports whether f is a request, a response or an error.
func (f Frame) Kind() Kind {
	switch f.Type {
	case TypeResponse:
		return KindResponse
	case TypeRequestError:
		return KindError
	default:
		return KindRequest
	}
}

// MarshalJSON always emits "args" on requests, even when empty, and
// never on responses or errors.
func (f Frame) MarshalJSON() ([]byte, error) {
	if f.Kind() == KindRequest {
		args := f.Args
		if args == nil {
			args = []json.RawMessage{}
		}
		return json.Marshal(struct {
			ID   string            `json:"id"`
			Type string            `json:"type"`
			Args []json.RawMessage `json:"args"`
		}{f.ID, f.Type, args})
	}
	type wire Frame
	w := wire(f)
	w.Args = nil
	return json.Marshal(w)
}

// NewRequest builds a request frame, encoding each argument.
func NewRequest(id, typ string, args ...interface{}) (Frame, error) {
	f := Frame{ID: id, Type: typ, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Frame{}, fmt.Errorf("encode arg %d of %s: %w", i, typ, err)
		}
		f.Args = append(f.Args, raw)
	}
	return f, nil
}

// NewResponse builds a response frame.  A nil value is sent as JSON null.
func NewResponse(id string, value interface{}) (Frame, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Frame{}, fmt.Errorf("encode response %s: %w", id, err)
	}
	return Frame{ID: id, Type: TypeResponse, Value: raw}, nil
}

// NewError builds a requestError frame carrying err.
func NewError(id string, err error) Frame {
	obj := errors.Encode(err)
	return Frame{ID: id, Type: TypeRequestError, Error: &obj}
}

// Result returns the settled outcome of a response or error frame.
func (f Frame) Result() (json.RawMessage, error) {
	switch f.Kind() {
	case KindResponse:
		if len(f.Value) == 0 {
			return json.RawMessage("null"), nil
		}
		return f.Value, nil
	case KindError:
		if f.Error == nil {
			return nil, errors.Decode(errors.ErrorObject{Message: "request failed"})
		}
		return nil, errors.Decode(*f.Error)
	default:
		return nil, fmt.Errorf("frame %s is a %q request, not a result", f.ID, f.Type)
	}
}
