// Package invocation defines the normalized tool-invocation domain types
// shared by both protocol front ends and the backend client. A request is
// normalized into a ToolInvocation identically whether it arrived as a
// JSON-RPC tools/call or a REST POST /tools/{name}, and both surfaces
// re-serialize the same ToolInvocationResult shape.
package invocation

import (
	"github.com/agentshop/shopgate/pkg/auth"
)

// ToolInvocation is a validated, protocol-neutral tool call.
type ToolInvocation struct {
	// ToolName is the registered tool being invoked.
	ToolName string

	// Arguments is the JSON object of tool arguments.
	Arguments map[string]any

	// AuthContext carries the caller's identity; never nil once dispatched.
	AuthContext *auth.AuthContext
}

// ContentBlock is one piece of tool output. Only text blocks are produced
// today; the shape leaves room for the protocol's other content types.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolInvocationResult is the protocol-neutral outcome of an invocation.
// Tool-level failures travel inside the result with IsError set, not as
// transport errors, so callers on either protocol detect them uniformly.
type ToolInvocationResult struct {
	ContentBlocks []ContentBlock `json:"content"`
	IsError       bool           `json:"isError"`
}

// NewTextResult builds a successful single-text-block result.
func NewTextResult(text string) *ToolInvocationResult {
	return &ToolInvocationResult{
		ContentBlocks: []ContentBlock{{Type: "text", Text: text}},
	}
}

// NewErrorResult builds a failed result carrying the error message.
func NewErrorResult(message string) *ToolInvocationResult {
	return &ToolInvocationResult{
		ContentBlocks: []ContentBlock{{Type: "text", Text: message}},
		IsError:       true,
	}
}
