// Package app defines the shopgate CLI commands.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentshop/shopgate/pkg/auth"
	"github.com/agentshop/shopgate/pkg/backend"
	"github.com/agentshop/shopgate/pkg/config"
	"github.com/agentshop/shopgate/pkg/discovery"
	"github.com/agentshop/shopgate/pkg/gateway"
	"github.com/agentshop/shopgate/pkg/logger"
	"github.com/agentshop/shopgate/pkg/registry"
)

const (
	serviceName = "shopgate"
	version     = "0.1.0"
)

// NewRootCmd creates the root command for shopgate.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "shopgate",
		Short:        "Authentication and dual-protocol tool gateway for the shopping agent",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// Configuration problems are the only fatal conditions: they are
	// checked once here, never mid-request.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Infow("starting gateway",
		"auth_mode", cfg.AuthMode, "agent_base_url", cfg.AgentBaseURL)

	reg, err := registry.New(registry.DefaultTools()...)
	if err != nil {
		return fmt.Errorf("invalid tool registry: %w", err)
	}

	resolver, err := buildResolver(ctx, cfg)
	if err != nil {
		return err
	}

	agentClient, err := backend.NewClient(backend.ClientConfig{BaseURL: cfg.AgentBaseURL})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	publisher := discovery.NewPublisher(discovery.PublisherConfig{
		Registry:    reg,
		PublicURL:   cfg.PublicURL,
		Issuer:      cfg.Issuer,
		JWKSURI:     cfg.JWKSURI,
		Scopes:      cfg.RequiredScopes,
		ServiceName: serviceName,
		AuthEnabled: cfg.OAuth2Enabled(),
	})

	authMiddleware := auth.NewMiddleware(
		resolver,
		cfg.Issuer,
		cfg.PublicURL+"/.well-known/oauth-protected-resource",
	)

	server := gateway.NewServer(gateway.ServerConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ServiceName:    serviceName,
		Version:        version,
		Dispatcher:     gateway.NewDispatcher(reg, agentClient),
		AuthMiddleware: authMiddleware.Handler,
		Publisher:      publisher,
	})
	return server.Serve(ctx)
}

// buildResolver wires the authentication stack for the configured mode.
func buildResolver(ctx context.Context, cfg *config.Config) (*auth.Resolver, error) {
	resolverCfg := auth.ResolverConfig{
		AllowAnonymous: !cfg.AuthEnabled(),
	}
	if cfg.AuthMode == config.AuthModeAPIKey || cfg.AuthMode == config.AuthModeHybrid {
		resolverCfg.APIKey = cfg.APIKey
	}

	if cfg.OAuth2Enabled() {
		keys, err := auth.NewSigningKeyCache(ctx, auth.SigningKeyCacheConfig{
			JWKSURL: cfg.JWKSURI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create signing key cache: %w", err)
		}

		verifier, err := auth.NewTokenVerifier(auth.TokenVerifierConfig{
			Keys:           keys,
			Issuer:         cfg.Issuer,
			Audience:       cfg.Audience,
			AllowedClients: cfg.AllowedClients,
			RequiredScopes: cfg.RequiredScopes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
		resolverCfg.Verifier = verifier
	}

	return auth.NewResolver(resolverCfg), nil
}
