// Package backend executes normalized tool invocations against the remote
// shopping agent service over HTTP. The gateway does not interpret the
// agent's authorization decisions; it only transports the caller's identity
// downstream.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentshop/shopgate/pkg/invocation"
	"github.com/agentshop/shopgate/pkg/logger"
)

// ErrBackend indicates the agent service could not be reached or kept
// failing after all retry attempts.
var ErrBackend = errors.New("backend request failed")

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 30 * time.Second
	defaultInitialBackoff = 1 * time.Second
)

// Client forwards tool invocations to the agent service with bounded
// retries and exponential backoff.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxAttempts    int
	attemptTimeout time.Duration
	initialBackoff time.Duration
}

// ClientConfig configures a backend Client. Zero values use the defaults:
// 3 attempts, 30s per-attempt timeout, 1s initial backoff doubling between
// attempts.
type ClientConfig struct {
	// BaseURL is the agent service root; invocations POST to
	// {BaseURL}/tools/{name}.
	BaseURL string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
}

// NewClient creates a backend client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: missing base URL", ErrBackend)
	}

	c := &Client{
		baseURL:        cfg.BaseURL,
		httpClient:     cfg.HTTPClient,
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: cfg.AttemptTimeout,
		initialBackoff: cfg.InitialBackoff,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = defaultAttemptTimeout
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = defaultInitialBackoff
	}
	return c, nil
}

// agentResponse is the agent service's wire shape for tool execution.
type agentResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Execute runs the invocation against the agent service.
//
// Transport-level failures (network error, per-attempt timeout, non-2xx
// status) are retried with exponential backoff, waiting ~1s then ~2s after
// the first and second failed attempts. On exhaustion the last error is
// returned wrapped with the attempt count. A 2xx response reporting an
// application-level error is not retried; it becomes a result with IsError
// set.
func (c *Client) Execute(ctx context.Context, inv *invocation.ToolInvocation) (*invocation.ToolInvocationResult, error) {
	body, err := json.Marshal(inv.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode arguments: %v", ErrBackend, err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialBackoff
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0

	attempt := 0
	operation := func() (*invocation.ToolInvocationResult, error) {
		attempt++
		result, err := c.attempt(ctx, inv, body)
		if err != nil {
			logger.Warnw("backend attempt failed",
				"tool", inv.ToolName, "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
			return nil, err
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.maxAttempts)), // #nosec G115 -- small positive constant
		backoff.WithNotify(func(_ error, wait time.Duration) {
			logger.Debugw("retrying backend call", "tool", inv.ToolName, "wait", wait)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrBackend, attempt, err)
	}
	return result, nil
}

// attempt performs one bounded HTTP exchange with the agent service.
func (c *Client) attempt(
	ctx context.Context,
	inv *invocation.ToolInvocation,
	body []byte,
) (*invocation.ToolInvocationResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/tools/%s", c.baseURL, inv.ToolName)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Forward the caller's identity so the agent can make its own
	// personalization and authorization decisions.
	if ac := inv.AuthContext; ac != nil {
		if ac.RawAccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+ac.RawAccessToken)
		}
		if ac.RawUserToken != "" {
			req.Header.Set("X-User-Token", "Bearer "+ac.RawUserToken)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for diagnostics, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var agentResp agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}

	if agentResp.Error != "" {
		return invocation.NewErrorResult(agentResp.Error), nil
	}
	return invocation.NewTextResult(agentResp.Result), nil
}
