package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentshop/shopgate/pkg/discovery"
	"github.com/agentshop/shopgate/pkg/logger"
)

const (
	// readHeaderTimeout guards against slowloris-style clients.
	readHeaderTimeout = 10 * time.Second

	// shutdownTimeout bounds graceful drain on exit.
	shutdownTimeout = 10 * time.Second
)

// Server is the gateway HTTP server hosting both protocol front ends, the
// discovery endpoints, and the health check.
type Server struct {
	httpServer  *http.Server
	serviceName string
	dispatcher  *Dispatcher
}

// ServerConfig configures the gateway server.
type ServerConfig struct {
	// Host and Port form the listen address.
	Host string
	Port string

	// ServiceName and Version identify the server in the MCP handshake and
	// the health endpoint.
	ServiceName string
	Version     string

	// Dispatcher is the shared invocation path.
	Dispatcher *Dispatcher

	// AuthMiddleware wraps both protocol surfaces. Health and discovery
	// endpoints stay outside it by design.
	AuthMiddleware func(http.Handler) http.Handler

	// Publisher serves the well-known discovery documents.
	Publisher *discovery.Publisher
}

// NewServer assembles the router and HTTP server.
func NewServer(cfg ServerConfig) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	s := &Server{
		serviceName: cfg.ServiceName,
		dispatcher:  cfg.Dispatcher,
	}

	// Unauthenticated surface: health and discovery.
	r.Get("/health", s.healthHandler)
	r.Handle("/.well-known/openid-configuration", cfg.Publisher.OpenIDConfigurationHandler())
	r.Handle("/.well-known/oauth-protected-resource", cfg.Publisher.ProtectedResourceHandler())
	r.Handle("/.well-known/openapi.json", cfg.Publisher.OpenAPIHandler())
	r.Handle("/.well-known/ai-plugin.json", cfg.Publisher.ManifestHandler())

	// Authenticated surface: both protocol front ends behind the same
	// middleware, normalizing into the same dispatcher.
	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthMiddleware)
		r.Handle(streamingEndpointPath, NewMCPHandler(cfg.ServiceName, cfg.Version, cfg.Dispatcher))
		r.Mount("/tools", NewRESTRouter(cfg.Dispatcher))
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the server until the context is canceled, then drains
// gracefully. It is assumed the caller set up signal handling.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gateway listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down gateway server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown failed: %w", err)
	}
	return nil
}

// healthBody is the GET /health response shape.
type healthBody struct {
	Status  string   `json:"status"`
	Service string   `json:"service"`
	Tools   []string `json:"tools"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := healthBody{
		Status:  "ok",
		Service: s.serviceName,
		Tools:   s.dispatcher.Registry().Names(),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to encode health response", "error", err)
	}
}
