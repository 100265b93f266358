package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key-1"

// testSigner holds an RSA key pair plus a JWKS endpoint publishing the
// public half, so tests can mint tokens the verifier will accept.
type testSigner struct {
	privateKey *rsa.PrivateKey
	server     *httptest.Server
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")

	key, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err, "failed to create JWK from public key")
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, key.Set(jwk.AlgorithmKey, "RS256"))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))

	keySet := jwk.NewSet()
	require.NoError(t, keySet.AddKey(key))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keySet)
	}))
	t.Cleanup(server.Close)

	return &testSigner{privateKey: privateKey, server: server}
}

// sign mints an RS256 token with the published key ID.
func (s *testSigner) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return s.signWithKeyID(t, testKeyID, claims)
}

func (s *testSigner) signWithKeyID(t *testing.T, keyID string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(s.privateKey)
	require.NoError(t, err, "failed to sign token")
	return signed
}

func (s *testSigner) keyCache(t *testing.T) *SigningKeyCache {
	t.Helper()

	keys, err := NewSigningKeyCache(context.Background(), SigningKeyCacheConfig{
		JWKSURL: s.server.URL,
	})
	require.NoError(t, err, "failed to create signing key cache")
	return keys
}

func (s *testSigner) verifier(t *testing.T, cfg TokenVerifierConfig) *TokenVerifier {
	t.Helper()

	cfg.Keys = s.keyCache(t)
	verifier, err := NewTokenVerifier(cfg)
	require.NoError(t, err, "failed to create token verifier")
	return verifier
}

// futureExp is a convenient unexpired exp claim value.
func futureExp() int64 {
	return time.Now().Add(time.Hour).Unix()
}
