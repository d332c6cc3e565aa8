package channel

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Observer is notified after every dispatched call.
type Observer func(call *Call, resp *Response, elapsed time.Duration)

// Registry holds a map of channel names to their handlers.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]MethodCallHandler
	observers []Observer
}

// NewRegistry creates a new channel registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]MethodCallHandler),
	}
}

// Register binds a handler to a channel name.
func (r *Registry) Register(name string, handler MethodCallHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		slog.Warn("Overwriting an existing channel handler", "channel", name)
	}
	r.handlers[name] = handler
	slog.Debug("Registered channel handler", "channel", name)
}

// Unregister removes the handler bound to name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Has reports whether a handler is bound to name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Channels lists registered channel names in sorted order.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Observe adds an observer. Observers must not block.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Dispatch routes a call to its channel handler and returns exactly one response.
func (r *Registry) Dispatch(ctx context.Context, call *Call) *Response {
	start := time.Now()

	r.mu.RLock()
	handler, found := r.handlers[call.Channel]
	observers := r.observers
	r.mu.RUnlock()

	var resp *Response
	if !found {
		slog.Warn("No handler found for channel", "channel", call.Channel, "method", call.Method)
		resp = &Response{ID: call.ID, NotImplemented: true}
	} else {
		resp = invoke(ctx, handler, call)
	}

	elapsed := time.Since(start)
	slog.Debug("Dispatched call",
		"channel", call.Channel,
		"method", call.Method,
		"id", string(call.ID),
		"kind", resp.Kind(),
		"elapsed", elapsed,
	)
	for _, o := range observers {
		o(call, resp, elapsed)
	}
	return resp
}

func invoke(ctx context.Context, handler MethodCallHandler, call *Call) (resp *Response) {
	rs := newResponder(call)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Channel handler panicked", "channel", call.Channel, "method", call.Method, "panic", p)
			rs.Error(CodeInternal, "Handler panicked.", nil)
			resp = rs.response()
		}
	}()

	handler.HandleMethodCall(ctx, call, rs)

	if resp = rs.response(); resp == nil {
		slog.Error("Channel handler returned without responding", "channel", call.Channel, "method", call.Method)
		rs.Error(CodeInternal, "Handler did not respond.", nil)
		resp = rs.response()
	}
	return resp
}
