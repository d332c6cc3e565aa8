package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Result is the single-use reply sink handed to a MethodCallHandler.
// Only the first reply is delivered; later ones are dropped.
type Result interface {
	Success(value interface{})
	Error(code, message string, details interface{})
	NotImplemented()
}

// MethodCallHandler handles calls arriving on one channel.
type MethodCallHandler interface {
	HandleMethodCall(ctx context.Context, call *Call, result Result)
}

// MethodCallHandlerFunc adapts a function to MethodCallHandler.
type MethodCallHandlerFunc func(ctx context.Context, call *Call, result Result)

func (f MethodCallHandlerFunc) HandleMethodCall(ctx context.Context, call *Call, result Result) {
	f(ctx, call, result)
}

// responder records the first reply for a call.
type responder struct {
	call *Call

	mu   sync.Mutex
	resp *Response
}

func newResponder(call *Call) *responder {
	return &responder{call: call}
}

func (r *responder) reply(resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resp != nil {
		slog.Warn("Dropping duplicate reply",
			"channel", r.call.Channel,
			"method", r.call.Method,
			"id", string(r.call.ID),
			"kind", resp.Kind(),
		)
		return
	}
	resp.ID = r.call.ID
	r.resp = resp
}

func (r *responder) Success(value interface{}) {
	if value == nil {
		r.reply(&Response{Result: nullResult})
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		slog.Error("Failed to marshal call result", "error", err, "method", r.call.Method)
		r.reply(&Response{Error: NewError(CodeInternal, "Failed to serialize result", nil)})
		return
	}
	r.reply(&Response{Result: b})
}

func (r *responder) Error(code, message string, details interface{}) {
	r.reply(&Response{Error: NewError(code, message, details)})
}

func (r *responder) NotImplemented() {
	r.reply(&Response{NotImplemented: true})
}

// response returns the recorded reply, or nil if none was made.
func (r *responder) response() *Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resp
}
