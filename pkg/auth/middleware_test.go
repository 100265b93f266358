package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareStoresAuthContext(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	resolver := NewResolver(ResolverConfig{
		Verifier: signer.verifier(t, TokenVerifierConfig{Issuer: testIssuer}),
	})
	m := NewMiddleware(resolver, testIssuer, "https://gateway.example.com/.well-known/oauth-protected-resource")

	var seen *AuthContext
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := signer.sign(t, jwt.MapClaims{
		"iss":       testIssuer,
		"exp":       futureExp(),
		"client_id": "shop-client",
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, clientRequest(t, token, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "shop-client", seen.ClientID)
}

func TestMiddlewareUnauthorized(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	resolver := NewResolver(ResolverConfig{
		Verifier: signer.verifier(t, TokenVerifierConfig{Issuer: testIssuer}),
	})
	m := NewMiddleware(resolver, testIssuer, "https://gateway.example.com/.well-known/oauth-protected-resource")

	handler := m.Handler(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run for unauthenticated requests")
	}))

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, clientRequest(t, "", ""))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		challenge := rec.Header().Get("WWW-Authenticate")
		assert.Contains(t, challenge, "Bearer")
		assert.Contains(t, challenge, `realm="`+testIssuer+`"`)
		assert.Contains(t, challenge, `resource_metadata="https://gateway.example.com/.well-known/oauth-protected-resource"`)
		// Plain absence of a token gets the bare challenge without an
		// error code.
		assert.NotContains(t, challenge, "invalid_token")
	})

	t.Run("rejected token", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, clientRequest(t, "garbage", ""))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		challenge := rec.Header().Get("WWW-Authenticate")
		assert.Contains(t, challenge, `error="invalid_token"`)
		assert.Contains(t, challenge, "error_description=")
	})
}
