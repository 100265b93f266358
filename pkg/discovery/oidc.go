package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentshop/shopgate/pkg/logger"
)

// userAgent identifies the gateway on upstream discovery requests.
const userAgent = "shopgate/1.0"

// maxDiscoveryResponseSize bounds the upstream document read.
const maxDiscoveryResponseSize = 1024 * 1024

// OpenIDConfiguration is the filtered OpenID provider metadata the gateway
// republishes. Only the client-credentials machine-to-machine surface
// survives filtering: interactive endpoints (authorization, userinfo,
// end-session) are stripped so downstream clients never attempt a user
// login flow against this resource.
type OpenIDConfiguration struct {
	Issuer                string   `json:"issuer"`
	TokenEndpoint         string   `json:"token_endpoint"`
	JWKSURI               string   `json:"jwks_uri,omitempty"`
	IntrospectionEndpoint string   `json:"introspection_endpoint,omitempty"`
	GrantTypesSupported   []string `json:"grant_types_supported"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// upstreamConfiguration mirrors the provider's own document, including the
// fields filtering removes.
type upstreamConfiguration struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint"`
	EndSessionEndpoint    string   `json:"end_session_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	IntrospectionEndpoint string   `json:"introspection_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
}

// fetchOpenIDConfiguration fetches the provider's well-known document and
// returns the filtered form. A document that lacks token_endpoint after
// filtering is a configuration error: guessing a provider-specific endpoint
// would hand clients a URL that may not exist.
func (p *Publisher) fetchOpenIDConfiguration(ctx context.Context) (*OpenIDConfiguration, error) {
	wellKnownURL := strings.TrimSuffix(p.issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OpenID configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenID discovery endpoint returned status %d", resp.StatusCode)
	}

	var upstream upstreamConfiguration
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryResponseSize)).Decode(&upstream); err != nil {
		return nil, fmt.Errorf("failed to decode OpenID configuration: %w", err)
	}

	if upstream.Issuer == "" {
		return nil, fmt.Errorf("OpenID configuration missing issuer")
	}
	if upstream.TokenEndpoint == "" {
		return nil, fmt.Errorf("OpenID configuration for %s missing token_endpoint; cannot republish a client-credentials document", upstream.Issuer)
	}

	return &OpenIDConfiguration{
		Issuer:                upstream.Issuer,
		TokenEndpoint:         upstream.TokenEndpoint,
		JWKSURI:               upstream.JWKSURI,
		IntrospectionEndpoint: upstream.IntrospectionEndpoint,
		GrantTypesSupported:   []string{"client_credentials"},
		ScopesSupported:       upstream.ScopesSupported,
	}, nil
}

// openIDConfiguration returns the cached filtered document, refreshing it
// when the TTL has lapsed. On refresh failure a stale copy is served rather
// than failing the request; only a cold cache propagates the error.
func (p *Publisher) openIDConfiguration(ctx context.Context) (*OpenIDConfiguration, error) {
	p.mu.Lock()
	cached := p.oidcDoc
	fresh := cached != nil && time.Since(p.oidcFetched) < p.ttl
	p.mu.Unlock()

	if fresh {
		return cached, nil
	}

	doc, err := p.fetchOpenIDConfiguration(ctx)
	if err != nil {
		if cached != nil {
			logger.Warnw("OpenID configuration refresh failed, serving stale copy", "error", err)
			return cached, nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.oidcDoc = doc
	p.oidcFetched = time.Now()
	p.mu.Unlock()
	return doc, nil
}

// tokenEndpoint resolves the provider's token endpoint for use in the
// OpenAPI security scheme. Empty when it cannot be determined.
func (p *Publisher) tokenEndpoint(ctx context.Context) string {
	if !p.authEnabled || p.issuer == "" {
		return ""
	}
	doc, err := p.openIDConfiguration(ctx)
	if err != nil {
		logger.Warnw("token endpoint unavailable for OpenAPI document", "error", err)
		return ""
	}
	return doc.TokenEndpoint
}

// OpenIDConfigurationHandler serves GET /.well-known/openid-configuration.
// Answers 404 when authentication is disabled.
func (p *Publisher) OpenIDConfigurationHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.authEnabled || p.issuer == "" {
			http.NotFound(w, r)
			return
		}

		doc, err := p.openIDConfiguration(r.Context())
		if err != nil {
			logger.Errorw("failed to produce OpenID configuration", "error", err)
			http.Error(w, "upstream discovery unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, doc)
	})
}

// ProtectedResourceMetadata is the OAuth Protected Resource document
// (RFC 9728) advertising who may authorize access to this gateway.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	GrantTypesSupported    []string `json:"grant_types_supported"`
	TokenEndpoint          string   `json:"token_endpoint,omitempty"`
	JWKSURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}

// ProtectedResourceHandler serves GET /.well-known/oauth-protected-resource.
// Answers 404 when authentication is disabled.
func (p *Publisher) ProtectedResourceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Discovery endpoints are unauthenticated; permissive CORS lets
		// browser-based clients self-configure.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !p.authEnabled || p.issuer == "" {
			http.NotFound(w, r)
			return
		}

		metadata := ProtectedResourceMetadata{
			Resource:               p.publicURL,
			AuthorizationServers:   []string{p.issuer},
			BearerMethodsSupported: []string{"header"},
			GrantTypesSupported:    []string{"client_credentials"},
			JWKSURI:                p.jwksURI,
			ScopesSupported:        p.scopes,
		}
		if doc, err := p.openIDConfiguration(r.Context()); err == nil {
			metadata.TokenEndpoint = doc.TokenEndpoint
		}
		writeJSON(w, metadata)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("failed to encode discovery response", "error", err)
	}
}
