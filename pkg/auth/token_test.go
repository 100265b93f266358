package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://issuer.example.com"
	testAudience = "https://gateway.example.com"
)

func TestVerifyClientToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{
		Issuer:   testIssuer,
		Audience: testAudience,
	})

	testCases := []struct {
		name    string
		claims  jwt.MapClaims
		errType error
	}{
		{
			name: "valid token",
			claims: jwt.MapClaims{
				"iss":       testIssuer,
				"aud":       testAudience,
				"exp":       futureExp(),
				"client_id": "shop-client",
				"scope":     "mcp:tools",
			},
		},
		{
			name: "expired token",
			claims: jwt.MapClaims{
				"iss":       testIssuer,
				"aud":       testAudience,
				"exp":       time.Now().Add(-time.Hour).Unix(),
				"client_id": "shop-client",
			},
			errType: ErrTokenExpired,
		},
		{
			name: "wrong issuer",
			claims: jwt.MapClaims{
				"iss":       "https://evil.example.com",
				"aud":       testAudience,
				"exp":       futureExp(),
				"client_id": "shop-client",
			},
			errType: ErrInvalidIssuer,
		},
		{
			name: "wrong audience",
			claims: jwt.MapClaims{
				"iss":       testIssuer,
				"aud":       "https://other.example.com",
				"exp":       futureExp(),
				"client_id": "shop-client",
			},
			errType: ErrInvalidAudience,
		},
		{
			name: "no resolvable client identity",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"aud": testAudience,
				"exp": futureExp(),
			},
			errType: ErrMissingClientID,
		},
		{
			name: "interactive grant as client credential",
			claims: jwt.MapClaims{
				"iss":       testIssuer,
				"aud":       testAudience,
				"exp":       futureExp(),
				"client_id": "shop-client",
				"gty":       "authorization_code",
			},
			errType: ErrWrongGrantType,
		},
		{
			name: "client credentials grant accepted",
			claims: jwt.MapClaims{
				"iss":       testIssuer,
				"aud":       testAudience,
				"exp":       futureExp(),
				"client_id": "shop-client",
				"gty":       "client_credentials",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			claims, err := verifier.VerifyClientToken(context.Background(), signer.sign(t, tc.claims))
			if tc.errType != nil {
				require.ErrorIs(t, err, tc.errType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "shop-client", claims.ClientID)
		})
	}
}

func TestVerifyClientTokenRejectsUnknownKeyID(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{Issuer: testIssuer})

	token := signer.signWithKeyID(t, "rotated-away", jwt.MapClaims{
		"iss":       testIssuer,
		"exp":       futureExp(),
		"client_id": "shop-client",
	})

	_, err := verifier.VerifyClientToken(context.Background(), token)
	require.ErrorIs(t, err, ErrKeyFetch)
}

func TestVerifyClientTokenRejectsSymmetricSignature(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{Issuer: testIssuer})

	// An HS256 token signed with the public key material must never verify,
	// even with a known kid.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":       testIssuer,
		"exp":       futureExp(),
		"client_id": "shop-client",
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = verifier.VerifyClientToken(context.Background(), signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyClientTokenAllowlist(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{
		Issuer:         testIssuer,
		AllowedClients: []string{"trusted-app"},
	})

	mint := func(clientID string) string {
		return signer.sign(t, jwt.MapClaims{
			"iss":       testIssuer,
			"exp":       futureExp(),
			"client_id": clientID,
		})
	}

	claims, err := verifier.VerifyClientToken(context.Background(), mint("trusted-app"))
	require.NoError(t, err)
	assert.Equal(t, "trusted-app", claims.ClientID)

	_, err = verifier.VerifyClientToken(context.Background(), mint("unknown-app"))
	require.ErrorIs(t, err, ErrClientNotAllowed)
	assert.Contains(t, err.Error(), "unknown-app")
}

func TestVerifyClientTokenRequiredScopes(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{
		Issuer:         testIssuer,
		RequiredScopes: []string{"mcp:tools", "shop:read"},
	})

	_, err := verifier.VerifyClientToken(context.Background(), signer.sign(t, jwt.MapClaims{
		"iss":       testIssuer,
		"exp":       futureExp(),
		"client_id": "shop-client",
		"scope":     "mcp:tools",
	}))
	require.ErrorIs(t, err, ErrMissingScopes)
	// The rejection names exactly the scopes that were missing.
	assert.Contains(t, err.Error(), "shop:read")
	assert.NotContains(t, err.Error(), "mcp:tools,")

	claims, err := verifier.VerifyClientToken(context.Background(), signer.sign(t, jwt.MapClaims{
		"iss":       testIssuer,
		"exp":       futureExp(),
		"client_id": "shop-client",
		"scope":     "mcp:tools shop:read extra",
	}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mcp:tools", "shop:read", "extra"}, claims.Scopes)
}

func TestClientIDClaimFallbackOrder(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{Issuer: testIssuer})

	testCases := []struct {
		name     string
		claims   jwt.MapClaims
		expected string
	}{
		{
			name: "client_id wins over all others",
			claims: jwt.MapClaims{
				"client_id": "from-client-id",
				"azp":       "from-azp",
				"appid":     "from-appid",
				"cid":       "from-cid",
				"sub":       "from-sub",
			},
			expected: "from-client-id",
		},
		{
			name: "azp wins when client_id absent",
			claims: jwt.MapClaims{
				"azp":   "from-azp",
				"appid": "from-appid",
				"sub":   "from-sub",
			},
			expected: "from-azp",
		},
		{
			name:     "appid when earlier claims absent",
			claims:   jwt.MapClaims{"appid": "from-appid", "cid": "from-cid"},
			expected: "from-appid",
		},
		{
			name:     "cid before sub",
			claims:   jwt.MapClaims{"cid": "from-cid", "sub": "from-sub"},
			expected: "from-cid",
		},
		{
			name:     "sub as last resort",
			claims:   jwt.MapClaims{"sub": "from-sub"},
			expected: "from-sub",
		},
		{
			name: "empty client_id falls through to azp",
			claims: jwt.MapClaims{
				"client_id": "  ",
				"azp":       "from-azp",
			},
			expected: "from-azp",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			claims := tc.claims
			claims["iss"] = testIssuer
			claims["exp"] = futureExp()

			verified, err := verifier.VerifyClientToken(context.Background(), signer.sign(t, claims))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, verified.ClientID)
		})
	}
}

func TestVerifyUserToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := signer.verifier(t, TokenVerifierConfig{Issuer: testIssuer})

	testCases := []struct {
		name    string
		claims  jwt.MapClaims
		errType error
	}{
		{
			name: "valid user token",
			claims: jwt.MapClaims{
				"iss":   testIssuer,
				"exp":   futureExp(),
				"sub":   "user-42",
				"email": "shopper@example.com",
			},
		},
		{
			name: "client credentials token rejected as user token",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"exp": futureExp(),
				"sub": "service",
				"gty": "client_credentials",
			},
			errType: ErrWrongGrantType,
		},
		{
			name: "missing subject",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"exp": futureExp(),
			},
			errType: ErrInvalidToken,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			claims, err := verifier.VerifyUserToken(context.Background(), signer.sign(t, tc.claims))
			if tc.errType != nil {
				require.ErrorIs(t, err, tc.errType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-42", claims.Subject)
			assert.Equal(t, "shopper@example.com", claims.Email)
		})
	}
}

func TestExtractScopesConventions(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"mcp:tools", "shop:read"},
		extractScopes(jwt.MapClaims{"scope": "mcp:tools shop:read"}))

	assert.Equal(t,
		[]string{"mcp:tools", "shop:read"},
		extractScopes(jwt.MapClaims{"scp": []any{"mcp:tools", "shop:read"}}))

	// scope string wins when both conventions appear.
	assert.Equal(t,
		[]string{"from-scope"},
		extractScopes(jwt.MapClaims{"scope": "from-scope", "scp": []any{"from-scp"}}))

	assert.Nil(t, extractScopes(jwt.MapClaims{}))
}
