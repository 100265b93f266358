package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/agentshop/shopgate/pkg/logger"
)

// Middleware authenticates inbound HTTP requests with a Resolver and stores
// the resulting AuthContext in the request context. Failures answer 401 with
// a WWW-Authenticate bearer challenge and are never retried by the gateway.
type Middleware struct {
	resolver *Resolver

	// realm is advertised in the challenge; usually the issuer URL.
	realm string

	// resourceMetadataURL points clients at the RFC 9728 protected-resource
	// document, when published.
	resourceMetadataURL string
}

// NewMiddleware creates an authentication middleware.
func NewMiddleware(resolver *Resolver, realm, resourceMetadataURL string) *Middleware {
	return &Middleware{
		resolver:            resolver,
		realm:               realm,
		resourceMetadataURL: resourceMetadataURL,
	}
}

// Handler wraps next with bearer authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := m.resolver.Resolve(r.Context(), r)
		if err != nil {
			logger.Debugw("authentication rejected", "path", r.URL.Path, "error", err)
			m.unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
	})
}

// unauthorized writes a 401 with an RFC 6750 / RFC 9728 challenge.
func (m *Middleware) unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", m.buildWWWAuthenticate(err))
	http.Error(w, fmt.Sprintf("Unauthorized: %v", err), http.StatusUnauthorized)
}

// buildWWWAuthenticate builds the challenge value. It always includes realm
// and, if set, resource_metadata; token failures other than plain absence
// add error="invalid_token" with a description.
func (m *Middleware) buildWWWAuthenticate(err error) string {
	var parts []string

	if m.realm != "" {
		parts = append(parts, fmt.Sprintf(`realm="%s"`, escapeQuotes(m.realm)))
	}
	if m.resourceMetadataURL != "" {
		parts = append(parts, fmt.Sprintf(`resource_metadata="%s"`, escapeQuotes(m.resourceMetadataURL)))
	}
	if err != nil && !strings.Contains(err.Error(), ErrNoToken.Error()) {
		parts = append(parts, `error="invalid_token"`)
		parts = append(parts, fmt.Sprintf(`error_description="%s"`, escapeQuotes(err.Error())))
	}
	return strings.TrimSpace("Bearer " + strings.Join(parts, ", "))
}

// escapeQuotes escapes backslashes and double quotes for use inside a
// quoted-string header parameter.
func escapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
