package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentshop/shopgate/pkg/auth"
	"github.com/agentshop/shopgate/pkg/invocation"
	"github.com/agentshop/shopgate/pkg/logger"
)

// restErrorBody is the explicit error shape for the REST surface.
type restErrorBody struct {
	Error string `json:"error"`
}

// NewRESTRouter builds the stateless front end: POST /tools/{name} with a
// JSON body of arguments, answering with the plain ToolInvocationResult JSON
// body instead of a JSON-RPC envelope. Authentication runs fresh for every
// call via the surrounding middleware.
func NewRESTRouter(dispatcher *Dispatcher) http.Handler {
	routes := &restRoutes{dispatcher: dispatcher}
	r := chi.NewRouter()
	r.Post("/{name}", routes.callTool)
	return r
}

type restRoutes struct {
	dispatcher *Dispatcher
}

func (h *restRoutes) callTool(w http.ResponseWriter, r *http.Request) {
	toolName := chi.URLParam(r, "name")

	ac, ok := auth.FromContext(r.Context())
	if !ok {
		// The auth middleware always runs ahead of this router; reaching
		// here without a context is a wiring bug, not a client error.
		writeJSONError(w, http.StatusInternalServerError, "no authentication context")
		return
	}

	args, err := decodeArguments(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body must be a JSON object of tool arguments")
		return
	}

	result, err := h.dispatcher.HandleInvocation(r.Context(), &invocation.ToolInvocation{
		ToolName:    toolName,
		Arguments:   args,
		AuthContext: ac,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Errorw("failed to encode tool result", "tool", toolName, "error", err)
	}
}

// decodeArguments parses the request body. An empty body means no arguments.
func decodeArguments(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(restErrorBody{Error: message})
}
