package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"settings-bridge/pkg/channel"
	"settings-bridge/pkg/events"
)

// ClientIDHeader carries the SSE client id on /channel/command requests.
const ClientIDHeader = "X-Channel-Client-ID"

// maxBodySize bounds a call posted over HTTP.
const maxBodySize = 1 << 20

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Host       string
	Port       int
	AuthTokens []string

	// RateLimitRPS <= 0 disables per-client rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	Events  *events.Hub  // served at /events when set
	MCP     http.Handler // mounted at /mcp when set
	Metrics http.Handler // served at /metrics when set
}

// sseClient represents a connected SSE client.
type sseClient struct {
	id      string
	send    chan []byte
	flusher http.Flusher
}

// ConnectionManager manages all active SSE client connections.
type ConnectionManager struct {
	clients map[string]*sseClient
	mu      sync.RWMutex
	handler CallHandler
}

// NewConnectionManager creates a new connection manager.
func NewConnectionManager(handler CallHandler) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*sseClient),
		handler: handler,
	}
}

func (cm *ConnectionManager) registerClient(flusher http.Flusher) *sseClient {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	client := &sseClient{
		id:      uuid.NewString(),
		send:    make(chan []byte, 256),
		flusher: flusher,
	}
	cm.clients[client.id] = client

	slog.Info("SSE client registered", "clientId", client.id)
	return client
}

func (cm *ConnectionManager) unregisterClient(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if client, ok := cm.clients[id]; ok {
		close(client.send)
		delete(cm.clients, id)
		slog.Info("SSE client unregistered", "clientId", id)
	}
}

func (cm *ConnectionManager) hasClient(id string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.clients[id]
	return ok
}

// dispatchCommand runs the call and queues its response for the client.
func (cm *ConnectionManager) dispatchCommand(ctx context.Context, call *channel.Call, clientID string) {
	response := cm.handler(ctx, call)

	responseBytes, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal response for SSE client", "error", err, "clientId", clientID)
		return
	}

	// Sending under the read lock keeps unregisterClient from closing the channel mid-send.
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	client, ok := cm.clients[clientID]
	if !ok {
		slog.Warn("SSE client went away before its response was ready", "clientId", clientID)
		return
	}
	select {
	case client.send <- responseBytes:
	default:
		slog.Warn("SSE client buffer full, dropping response", "clientId", clientID, "id", string(call.ID))
	}
}

// sseStreamHandler handles the long-lived SSE connection.
func (cm *ConnectionManager) sseStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := cm.registerClient(flusher)
	defer cm.unregisterClient(client.id)

	sendSSEEvent(w, "connection_ready", map[string]string{"clientId": client.id})

	for {
		select {
		case <-r.Context().Done():
			return
		case message, ok := <-client.send:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: response\ndata: %s\n\n", message)
			client.flusher.Flush()
		}
	}
}

// commandHandler accepts a call whose response is delivered on the client's SSE stream.
func (cm *ConnectionManager) commandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := r.Header.Get(ClientIDHeader)
	if clientID == "" {
		http.Error(w, ClientIDHeader+" header is required", http.StatusBadRequest)
		return
	}
	if !cm.hasClient(clientID) {
		http.Error(w, "unknown client", http.StatusNotFound)
		return
	}

	var call channel.Call
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&call); err != nil {
		http.Error(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}

	// Detached from the request so the call completes after 202 is written.
	go cm.dispatchCommand(context.WithoutCancel(r.Context()), &call, clientID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"command accepted"}`))
}

// callHandler serves POST /api/call: one JSON call in, one JSON response out.
func callHandler(handler CallHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		var call channel.Call
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&call); err != nil {
			slog.Warn("Failed to decode call", "error", err)
			writeJSON(w, http.StatusBadRequest, &channel.Response{
				Error: channel.NewError(channel.CodeInvalidInput, "Failed to parse JSON call", nil),
			})
			return
		}

		writeJSON(w, http.StatusOK, handler(r.Context(), &call))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

type route struct {
	pattern string
	h       http.Handler
	limited bool
}

// NewHTTPHandler builds the HTTP routes for the bridge.
func NewHTTPHandler(handler CallHandler, opts HTTPOptions) http.Handler {
	connManager := NewConnectionManager(handler)
	limiter := newClientRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)

	mux := http.NewServeMux()

	protected := []route{
		{"/api/call", callHandler(handler), true},
		{"/channel/stream", http.HandlerFunc(connManager.sseStreamHandler), false},
		{"/channel/command", http.HandlerFunc(connManager.commandHandler), true},
	}
	if opts.MCP != nil {
		protected = append(protected, route{"/mcp", opts.MCP, true})
	}
	for _, p := range protected {
		h := p.h
		if p.limited {
			h = limiter.wrap(h)
		}
		mux.Handle(p.pattern, wrapAuth(h, opts.AuthTokens))
	}

	// /events authorizes itself so EventSource clients can pass ?token=.
	if opts.Events != nil {
		mux.Handle("/events", events.SSEHandler(opts.Events, opts.AuthTokens))
	}
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// RunHTTP serves the bridge over HTTP until ctx is cancelled.
func RunHTTP(ctx context.Context, handler CallHandler, opts HTTPOptions) error {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(handler, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server",
			"addr", addr,
			"auth_enabled", len(opts.AuthTokens) > 0,
			"rate_limit_rps", opts.RateLimitRPS,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// SSE streams keep connections open; close them outright.
		_ = srv.Close()
		return err
	}
	return nil
}

// sendSSEEvent sends a properly formatted SSE event.
func sendSSEEvent(w http.ResponseWriter, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", string(jsonData))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
