// Package discovery derives the gateway's machine-readable discovery
// documents (OpenAPI 3.0, OpenID/OAuth metadata, actions manifest) from the
// tool registry and environment configuration. Documents are cached with a
// TTL; the upstream OpenID configuration additionally falls back to a stale
// copy when the identity provider is unreachable.
package discovery

import (
	"net/http"
	"sync"
	"time"

	"github.com/agentshop/shopgate/pkg/registry"
)

// defaultDocTTL is how long generated and republished documents are cached.
const defaultDocTTL = time.Hour

// Publisher builds and caches the discovery documents. The cached documents
// are the only mutable state; each is replaced atomically under the mutex,
// never mutated in place, so concurrent readers are safe.
type Publisher struct {
	registry    *registry.Registry
	publicURL   string
	issuer      string
	jwksURI     string
	scopes      []string
	serviceName string
	authEnabled bool
	httpClient  *http.Client
	ttl         time.Duration

	mu          sync.Mutex
	oidcDoc     *OpenIDConfiguration
	oidcFetched time.Time
	openapiJSON []byte
	openapiTime time.Time
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Registry is the tool registry the documents are derived from.
	Registry *registry.Registry

	// PublicURL is this gateway's externally visible base URL.
	PublicURL string

	// Issuer is the identity provider whose OpenID configuration is
	// republished in filtered form. Empty when OAuth2 is disabled.
	Issuer string

	// JWKSURI is advertised in the protected-resource metadata.
	JWKSURI string

	// Scopes are the scopes this resource requires.
	Scopes []string

	// ServiceName labels the documents.
	ServiceName string

	// AuthEnabled gates the OAuth-specific endpoints; when false they
	// answer 404 rather than advertise flows that cannot succeed.
	AuthEnabled bool

	// HTTPClient fetches the upstream OpenID configuration.
	HTTPClient *http.Client

	// TTL overrides the 1-hour document cache, mainly for tests.
	TTL time.Duration
}

// NewPublisher creates a discovery publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	p := &Publisher{
		registry:    cfg.Registry,
		publicURL:   cfg.PublicURL,
		issuer:      cfg.Issuer,
		jwksURI:     cfg.JWKSURI,
		scopes:      cfg.Scopes,
		serviceName: cfg.ServiceName,
		authEnabled: cfg.AuthEnabled,
		httpClient:  cfg.HTTPClient,
		ttl:         cfg.TTL,
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if p.ttl <= 0 {
		p.ttl = defaultDocTTL
	}
	if p.serviceName == "" {
		p.serviceName = "shopgate"
	}
	return p
}

// Clear drops all cached documents so the next request regenerates them.
// Intended for test isolation.
func (p *Publisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.oidcDoc = nil
	p.oidcFetched = time.Time{}
	p.openapiJSON = nil
	p.openapiTime = time.Time{}
}
