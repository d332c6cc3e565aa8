package mcpsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync/atomic"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"settings-bridge/pkg/channel"
	"settings-bridge/pkg/settings"
)

var toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func newTool(name, description string) *sdkmcp.Tool {
	if !toolNameRegex.MatchString(name) {
		panic(fmt.Errorf("invalid tool name: %s (must match ^[a-zA-Z0-9_-]+$)", name))
	}
	return &sdkmcp.Tool{Name: name, Description: description}
}

// Status values reported by the tools.
const (
	StatusSuccess        = channel.KindSuccess
	StatusError          = channel.KindError
	StatusNotImplemented = channel.KindNotImplemented
)

type OpenWifiSettingsRequest struct{}

type OpenWifiSettingsResponse struct {
	Status string `json:"status"`
}

type ChannelInvokeRequest struct {
	Channel   string `json:"channel"`
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type ChannelInvokeResponse struct {
	Status string         `json:"status"`
	Result any            `json:"result,omitempty"`
	Error  *channel.Error `json:"error,omitempty"`
}

// callSeq numbers calls that arrive over MCP, which has no call id of its own.
var callSeq atomic.Int64

func nextCallID() json.RawMessage {
	return json.RawMessage(strconv.FormatInt(callSeq.Add(1), 10))
}

// OpenWifiSettings dispatches openWifiSettings on channelName.
func OpenWifiSettings(ctx context.Context, reg *channel.Registry, channelName string) (OpenWifiSettingsResponse, error) {
	if channelName == "" {
		channelName = settings.ChannelName
	}
	resp := reg.Dispatch(ctx, &channel.Call{
		ID:      nextCallID(),
		Channel: channelName,
		Method:  settings.MethodOpenWifiSettings,
	})
	switch resp.Kind() {
	case channel.KindSuccess:
		return OpenWifiSettingsResponse{Status: StatusSuccess}, nil
	case channel.KindNotImplemented:
		return OpenWifiSettingsResponse{}, fmt.Errorf("NOT_IMPLEMENTED: %s is not served on %s", settings.MethodOpenWifiSettings, channelName)
	default:
		return OpenWifiSettingsResponse{}, resp.Error
	}
}

// ChannelInvoke dispatches an arbitrary method call and reports the reply as data.
// Only malformed input is returned as an error.
func ChannelInvoke(ctx context.Context, reg *channel.Registry, in ChannelInvokeRequest) (ChannelInvokeResponse, error) {
	if in.Channel == "" || in.Method == "" {
		return ChannelInvokeResponse{}, fmt.Errorf("%s: 'channel' and 'method' are required", channel.CodeInvalidInput)
	}
	call := &channel.Call{ID: nextCallID(), Channel: in.Channel, Method: in.Method}
	if in.Arguments != nil {
		raw, err := json.Marshal(in.Arguments)
		if err != nil {
			return ChannelInvokeResponse{}, fmt.Errorf("%s: invalid arguments: %v", channel.CodeInvalidInput, err)
		}
		call.Arguments = raw
	}

	resp := reg.Dispatch(ctx, call)
	out := ChannelInvokeResponse{Status: resp.Kind()}
	switch out.Status {
	case StatusSuccess:
		if len(resp.Result) > 0 && string(resp.Result) != "null" {
			out.Result = resp.Result
		}
	case StatusError:
		out.Error = resp.Error
	}
	return out, nil
}

// buildServer constructs an MCP SDK server whose tools dispatch through reg.
func buildServer(reg *channel.Registry, channelName string) *sdkmcp.Server {
	impl := &sdkmcp.Implementation{
		Name:    "settings-bridge",
		Version: "0.1.0",
	}
	server := sdkmcp.NewServer(impl, nil)

	openTool := newTool("open_wifi_settings", "Open the Wi-Fi settings screen, or the general settings screen if Wi-Fi settings are unavailable")
	openTool.InputSchema = &emptySchema
	sdkmcp.AddTool[OpenWifiSettingsRequest, OpenWifiSettingsResponse](server, openTool,
		func(ctx context.Context, req *sdkmcp.CallToolRequest, _ OpenWifiSettingsRequest) (*sdkmcp.CallToolResult, OpenWifiSettingsResponse, error) {
			out, err := OpenWifiSettings(ctx, reg, channelName)
			return nil, out, err
		},
	)

	// Output is 'any' so an arbitrary result payload is not checked against an inferred schema.
	sdkmcp.AddTool[ChannelInvokeRequest, any](server, newTool("channel_invoke", "Invoke a method on a registered channel"),
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in ChannelInvokeRequest) (*sdkmcp.CallToolResult, any, error) {
			out, err := ChannelInvoke(ctx, reg, in)
			if err != nil {
				return nil, nil, err
			}
			return nil, out, nil
		},
	)

	return server
}

// RunStdio serves the MCP server over stdio until the client disconnects or ctx is cancelled.
func RunStdio(ctx context.Context, reg *channel.Registry, channelName string) error {
	server := buildServer(reg, channelName)
	slog.Info("Starting MCP stdio server", "channel", channelName)
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && err != io.EOF && ctx.Err() == nil {
		slog.Error("MCP SDK stdio server exited with error", "error", err)
		return err
	}
	return nil
}
