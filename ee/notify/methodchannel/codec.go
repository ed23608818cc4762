// Package methodchannel exposes the notification core as named methods with
// dynamically typed arguments, served over a local socket.
package methodchannel

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Error codes carried in an Error.
const (
	CodeInvalidXML      = "invalid-xml"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeNotInitialized  = "NOT_INITIALIZED"
	CodeInternal        = "INTERNAL"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
)

// EventNotificationResponse is the event method pushed when a notification is
// interacted with while the app is running.
const EventNotificationResponse = "didReceiveNotificationResponse"

type Request struct {
	Method string                 `json:"method" msgpack:"method"`
	Args   map[string]interface{} `json:"args" msgpack:"args"`
}

type Response struct {
	Result interface{} `json:"result" msgpack:"result"`
	Error  *Error      `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Error is a method failure reported to the caller.
type Error struct {
	Code    string                 `json:"code" msgpack:"code"`
	Message string                 `json:"message" msgpack:"message"`
	Details map[string]interface{} `json:"details,omitempty" msgpack:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is pushed to subscribers, shaped like a method call from the plugin to
// the app.
type Event struct {
	Method string                 `json:"method" msgpack:"method"`
	Args   map[string]interface{} `json:"args" msgpack:"args"`
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode leaves numbers at the width they were encoded with. Arguments
// normalizes them.
func decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
