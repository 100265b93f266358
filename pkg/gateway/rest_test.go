package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentshop/shopgate/pkg/auth"
	"github.com/agentshop/shopgate/pkg/invocation"
)

func restCall(t *testing.T, handler http.Handler, tool, body string, ac *auth.AuthContext) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/"+tool, strings.NewReader(body))
	if ac != nil {
		req = req.WithContext(auth.WithAuthContext(req.Context(), ac))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRESTCallTool(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{result: invocation.NewTextResult("found 3 products")}
	router := NewRESTRouter(testDispatcher(t, executor))
	ac := &auth.AuthContext{ClientID: "shop-client", Method: auth.MethodClientOnly}

	rec := restCall(t, router, "search_products", `{"query": "milk", "limit": 5}`, ac)
	require.Equal(t, http.StatusOK, rec.Code)

	var result invocation.ToolInvocationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.ContentBlocks, 1)
	assert.Equal(t, "found 3 products", result.ContentBlocks[0].Text)
	assert.False(t, result.IsError)

	require.NotNil(t, executor.lastInvocation)
	assert.Equal(t, "search_products", executor.lastInvocation.ToolName)
	assert.Equal(t, "milk", executor.lastInvocation.Arguments["query"])
	assert.Same(t, ac, executor.lastInvocation.AuthContext)
}

func TestRESTEmptyBodyMeansNoArguments(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{result: invocation.NewTextResult("cart is empty")}
	router := NewRESTRouter(testDispatcher(t, executor))

	rec := restCall(t, router, "view_cart", "", &auth.AuthContext{ClientID: "shop-client"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, executor.lastInvocation.Arguments)
}

func TestRESTRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	router := NewRESTRouter(testDispatcher(t, &fakeExecutor{}))

	rec := restCall(t, router, "search_products", `["not", "an", "object"]`, &auth.AuthContext{ClientID: "shop-client"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body restErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}

func TestRESTUnknownToolIs404(t *testing.T) {
	t.Parallel()

	router := NewRESTRouter(testDispatcher(t, &fakeExecutor{}))

	rec := restCall(t, router, "teleport_groceries", `{}`, &auth.AuthContext{ClientID: "shop-client"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body restErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "teleport_groceries")
}

func TestRESTWithoutAuthContextIsServerError(t *testing.T) {
	t.Parallel()

	router := NewRESTRouter(testDispatcher(t, &fakeExecutor{}))

	rec := restCall(t, router, "view_cart", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
