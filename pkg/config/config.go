// Package config loads and validates the gateway's environment configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// AuthMode selects how inbound requests are authenticated.
type AuthMode string

// Supported authentication modes.
const (
	// AuthModeOAuth2 requires a JWT bearer token verified against the
	// identity provider's JWKS.
	AuthModeOAuth2 AuthMode = "oauth2"

	// AuthModeAPIKey requires a pre-shared API key bearer token.
	AuthModeAPIKey AuthMode = "api-key"

	// AuthModeHybrid accepts either the API key or a valid OAuth2 token.
	AuthModeHybrid AuthMode = "hybrid"

	// AuthModeNone disables authentication entirely.
	AuthModeNone AuthMode = "none"
)

// Common configuration errors.
var (
	ErrInvalidAuthMode  = errors.New("invalid auth mode")
	ErrMissingJWKSURI   = errors.New("OAUTH2_JWKS_URI is required for oauth2 and hybrid auth modes")
	ErrMissingAPIKey    = errors.New("MCP_API_KEY is required for api-key and hybrid auth modes")
	ErrMissingAgentURL  = errors.New("AGENT_BASE_URL is required")
)

// Config holds the gateway's runtime configuration, resolved once at startup.
type Config struct {
	// Host and Port are the listen address for the HTTP server.
	Host string
	Port string

	// PublicURL is the externally visible base URL of this gateway,
	// used in discovery documents. Defaults to http://HOST:PORT.
	PublicURL string

	// AuthMode selects the authentication scheme for inbound requests.
	AuthMode AuthMode

	// JWKSURI is the identity provider's JSON Web Key Set endpoint.
	JWKSURI string

	// Issuer and Audience are matched exactly against token claims when set.
	Issuer   string
	Audience string

	// AllowedClients restricts which client IDs may call the gateway.
	// Empty means any verified client is accepted.
	AllowedClients []string

	// RequiredScopes must all be present on the client token.
	RequiredScopes []string

	// APIKey is the pre-shared key for api-key and hybrid modes.
	APIKey string

	// AgentBaseURL is the base URL of the remote shopping agent service
	// that executes tool invocations.
	AgentBaseURL string
}

// OAuth2Enabled reports whether JWT verification is active in this mode.
func (c *Config) OAuth2Enabled() bool {
	return c.AuthMode == AuthModeOAuth2 || c.AuthMode == AuthModeHybrid
}

// AuthEnabled reports whether any authentication is required.
func (c *Config) AuthEnabled() bool {
	return c.AuthMode != AuthModeNone
}

// Load reads configuration from the environment and validates it.
// Validation failures here are fatal by design: a misconfigured gateway
// should refuse to start rather than fail mid-request.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "8080")
	v.SetDefault("MCP_AUTH_MODE", string(AuthModeOAuth2))

	for _, key := range []string{
		"HOST", "PORT", "PUBLIC_URL",
		"MCP_AUTH_MODE", "OAUTH2_JWKS_URI", "OAUTH2_ISSUER", "OAUTH2_AUDIENCE",
		"ALLOWED_MCP_CLIENTS", "REQUIRED_MCP_SCOPES", "MCP_API_KEY",
		"AGENT_BASE_URL",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		Host:           v.GetString("HOST"),
		Port:           v.GetString("PORT"),
		PublicURL:      v.GetString("PUBLIC_URL"),
		AuthMode:       AuthMode(v.GetString("MCP_AUTH_MODE")),
		JWKSURI:        v.GetString("OAUTH2_JWKS_URI"),
		Issuer:         v.GetString("OAUTH2_ISSUER"),
		Audience:       v.GetString("OAUTH2_AUDIENCE"),
		AllowedClients: splitCommaList(v.GetString("ALLOWED_MCP_CLIENTS")),
		RequiredScopes: splitCommaList(v.GetString("REQUIRED_MCP_SCOPES")),
		APIKey:         v.GetString("MCP_API_KEY"),
		AgentBaseURL:   strings.TrimSuffix(v.GetString("AGENT_BASE_URL"), "/"),
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port)
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete for the selected mode.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeOAuth2, AuthModeAPIKey, AuthModeHybrid, AuthModeNone:
	default:
		return fmt.Errorf("%w: %q (expected oauth2, api-key, hybrid or none)", ErrInvalidAuthMode, c.AuthMode)
	}

	if c.OAuth2Enabled() && c.JWKSURI == "" {
		return ErrMissingJWKSURI
	}
	if (c.AuthMode == AuthModeAPIKey || c.AuthMode == AuthModeHybrid) && c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.AgentBaseURL == "" {
		return ErrMissingAgentURL
	}
	return nil
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
