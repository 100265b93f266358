package gateway

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentshop/shopgate/pkg/auth"
	"github.com/agentshop/shopgate/pkg/invocation"
	"github.com/agentshop/shopgate/pkg/registry"
)

// streamingEndpointPath is where the JSON-RPC session surface is served.
const streamingEndpointPath = "/sse"

// NewMCPHandler builds the streaming front end: an MCP server over
// streamable HTTP serving initialize / notifications/initialized /
// tools/list / tools/call. Authentication happens once per inbound request
// by the surrounding middleware; the resolved AuthContext is carried into
// every tool handler through the request context.
func NewMCPHandler(serverName, version string, dispatcher *Dispatcher) http.Handler {
	mcpServer := server.NewMCPServer(
		serverName,
		version,
		// Tools capability without listChanged: the registry is immutable
		// after startup, so there is never a change to notify.
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	for _, tool := range dispatcher.Registry().List() {
		mcpServer.AddTool(toMCPTool(tool), toolHandler(dispatcher, tool.Name))
	}

	return server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(streamingEndpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			// Propagate the middleware-resolved AuthContext into the
			// session context the tool handlers see.
			if ac, ok := auth.FromContext(r.Context()); ok {
				return auth.WithAuthContext(ctx, ac)
			}
			return ctx
		}),
	)
}

// toolHandler adapts one registered tool to the dispatcher. Unknown tools
// never reach here on this surface (the MCP server rejects them with a
// JSON-RPC error naming the tool), but the dispatcher still guards.
func toolHandler(dispatcher *Dispatcher, toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ac, _ := auth.FromContext(ctx)

		result, err := dispatcher.HandleInvocation(ctx, &invocation.ToolInvocation{
			ToolName:    toolName,
			Arguments:   request.GetArguments(),
			AuthContext: ac,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toMCPResult(result), nil
	}
}

// toMCPTool converts a registry definition to the wire tool shape.
func toMCPTool(tool registry.ToolDefinition) mcp.Tool {
	return mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: tool.Properties(),
			Required:   tool.Required(),
		},
	}
}

// toMCPResult re-serializes the protocol-neutral result into the JSON-RPC
// envelope's content shape.
func toMCPResult(result *invocation.ToolInvocationResult) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(result.ContentBlocks))
	for _, block := range result.ContentBlocks {
		content = append(content, mcp.TextContent{Type: "text", Text: block.Text})
	}
	return &mcp.CallToolResult{
		Content: content,
		IsError: result.IsError,
	}
}
