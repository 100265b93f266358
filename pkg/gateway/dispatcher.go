// Package gateway implements the dual-protocol front end: a streaming
// JSON-RPC (MCP) session surface and a stateless REST surface, both
// normalizing into one dispatcher over the shared tool registry.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentshop/shopgate/pkg/invocation"
	"github.com/agentshop/shopgate/pkg/logger"
	"github.com/agentshop/shopgate/pkg/registry"
)

// ErrUnknownTool indicates the invocation named a tool the registry does not
// hold. Surfaced as a JSON-RPC error on the streaming path and HTTP 404 on
// the REST path.
var ErrUnknownTool = errors.New("unknown tool")

// Executor runs a validated invocation against the backend.
type Executor interface {
	Execute(ctx context.Context, inv *invocation.ToolInvocation) (*invocation.ToolInvocationResult, error)
}

// Dispatcher is the single invocation path behind both protocol adapters.
// Keeping it pure of wire concerns is what guarantees the two surfaces stay
// behaviorally identical for the same (tool, arguments, authContext) triple.
type Dispatcher struct {
	registry *registry.Registry
	executor Executor
}

// NewDispatcher creates a dispatcher over the given registry and executor.
func NewDispatcher(reg *registry.Registry, executor Executor) *Dispatcher {
	return &Dispatcher{registry: reg, executor: executor}
}

// Registry exposes the tool registry for the protocol adapters and
// discovery publishers.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// HandleInvocation validates and executes one tool invocation.
//
// Unknown tools return ErrUnknownTool for the adapter to translate. Backend
// failures after exhausted retries do NOT return an error: they come back as
// a result with IsError set, so tool-level failure is narratable uniformly
// on both protocols.
func (d *Dispatcher) HandleInvocation(
	ctx context.Context,
	inv *invocation.ToolInvocation,
) (*invocation.ToolInvocationResult, error) {
	if _, ok := d.registry.Get(inv.ToolName); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, inv.ToolName)
	}
	if inv.Arguments == nil {
		inv.Arguments = map[string]any{}
	}

	clientID := ""
	if inv.AuthContext != nil {
		clientID = inv.AuthContext.ClientID
	}
	logger.Infow("dispatching tool invocation", "tool", inv.ToolName, "client_id", clientID)

	result, err := d.executor.Execute(ctx, inv)
	if err != nil {
		logger.Errorw("tool invocation failed", "tool", inv.ToolName, "error", err)
		return invocation.NewErrorResult(err.Error()), nil
	}
	return result, nil
}
