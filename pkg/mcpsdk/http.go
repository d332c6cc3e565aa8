package mcpsdk

import (
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"settings-bridge/pkg/channel"
)

// Handler returns the Streamable HTTP handler for the MCP server.
// Auth and rate limiting are applied by the transport that mounts it.
func Handler(reg *channel.Registry, channelName string) http.Handler {
	server := buildServer(reg, channelName)
	return sdkmcp.NewStreamableHTTPHandler(func(r *http.Request) *sdkmcp.Server {
		return server
	}, nil)
}
