package channel

import "encoding/json"

// Call is a single method invocation delivered over a named channel.
type Call struct {
	ID        json.RawMessage `json:"id"`
	Channel   string          `json:"channel"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is the reply to exactly one Call. Exactly one of Result, Error or
// NotImplemented is set.
type Response struct {
	ID             json.RawMessage `json:"id"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	NotImplemented bool            `json:"notImplemented,omitempty"`
}

// Kind values reported by Response.Kind.
const (
	KindSuccess        = "success"
	KindError          = "error"
	KindNotImplemented = "not_implemented"
)

// Kind classifies the response for logging and metrics.
func (r *Response) Kind() string {
	switch {
	case r.NotImplemented:
		return KindNotImplemented
	case r.Error != nil:
		return KindError
	default:
		return KindSuccess
	}
}

// Error represents a structured channel error.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError creates a new channel error.
func NewError(code, message string, details interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Error codes shared by transports and handlers.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeInternal     = "INTERNAL"
	CodeUnavailable  = "UNAVAILABLE"
)

var nullResult = json.RawMessage("null")
