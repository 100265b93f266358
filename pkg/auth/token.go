package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// grantClientCredentials is the OAuth2 grant type for machine-to-machine
// tokens. When a token carries a grant-type claim, the client token must be
// of this grant and the user token must not be.
const grantClientCredentials = "client_credentials"

// clientIDExtractors is the ordered list of claim lookups used to resolve
// the calling application's identifier. Different identity providers
// populate different fields:
//
//	client_id  RFC 9068 / most providers' client-credentials tokens
//	azp        Google, Keycloak ("authorized party")
//	appid      Azure AD v1 tokens
//	cid        Okta
//	sub        last resort; client-credentials tokens often set sub=client
//
// The ordering is a compatibility contract; do not reorder.
var clientIDExtractors = []struct {
	claim   string
	extract func(jwt.MapClaims) string
}{
	{"client_id", stringClaim("client_id")},
	{"azp", stringClaim("azp")},
	{"appid", stringClaim("appid")},
	{"cid", stringClaim("cid")},
	{"sub", stringClaim("sub")},
}

func stringClaim(name string) func(jwt.MapClaims) string {
	return func(claims jwt.MapClaims) string {
		s, _ := claims[name].(string)
		return strings.TrimSpace(s)
	}
}

// Claims is the decoded and verified payload of a bearer token.
type Claims struct {
	Subject   string
	ClientID  string
	Scopes    []string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	GrantType string
	Email     string

	// Raw preserves every claim for callers that need provider-specific
	// fields beyond the extracted ones.
	Raw jwt.MapClaims
}

// HasScope reports whether the token carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenVerifier decodes, verifies, and extracts claims from bearer tokens.
// Signature verification is pinned to RS256; issuer and audience are checked
// only when configured, expiry always.
type TokenVerifier struct {
	keys           *SigningKeyCache
	issuer         string
	audience       string
	allowedClients map[string]struct{}
	requiredScopes []string
}

// TokenVerifierConfig configures a TokenVerifier.
type TokenVerifierConfig struct {
	// Keys resolves signing keys by key ID.
	Keys *SigningKeyCache

	// Issuer, when set, must match the iss claim exactly.
	Issuer string

	// Audience, when set, must be present in the aud claim.
	Audience string

	// AllowedClients, when non-empty, restricts accepted client IDs.
	// Membership is exact string match.
	AllowedClients []string

	// RequiredScopes must all be present on client tokens.
	RequiredScopes []string
}

// NewTokenVerifier creates a token verifier.
func NewTokenVerifier(cfg TokenVerifierConfig) (*TokenVerifier, error) {
	if cfg.Keys == nil {
		return nil, errors.New("signing key cache is required")
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedClients) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedClients))
		for _, c := range cfg.AllowedClients {
			allowed[c] = struct{}{}
		}
	}

	return &TokenVerifier{
		keys:           cfg.Keys,
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
		allowedClients: allowed,
		requiredScopes: cfg.RequiredScopes,
	}, nil
}

// VerifyClientToken verifies the primary (application) token and enforces
// the full client policy: grant type, client allowlist, and required scopes.
func (v *TokenVerifier) VerifyClientToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := v.verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	// A user-interactive grant presented as the application credential is a
	// hard failure: it would let end-user tokens impersonate applications.
	if claims.GrantType != "" && claims.GrantType != grantClientCredentials {
		return nil, fmt.Errorf("%w: client token has grant %q, want %q",
			ErrWrongGrantType, claims.GrantType, grantClientCredentials)
	}

	if claims.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if v.allowedClients != nil {
		if _, ok := v.allowedClients[claims.ClientID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrClientNotAllowed, claims.ClientID)
		}
	}

	if missing := v.missingScopes(claims); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingScopes, strings.Join(missing, ", "))
	}

	return claims, nil
}

// VerifyUserToken verifies the optional end-user token. It applies the same
// signature and claim checks as the client path but inverts the grant rule:
// a client-credentials token carries no user identity and is rejected.
func (v *TokenVerifier) VerifyUserToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := v.verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if claims.GrantType == grantClientCredentials {
		return nil, fmt.Errorf("%w: client-credentials token used as user token", ErrWrongGrantType)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: user token missing sub claim", ErrInvalidToken)
	}
	return claims, nil
}

// verify parses the token, resolves its signing key, and checks signature
// and temporal/issuer/audience claims.
func (v *TokenVerifier) verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (any, error) {
			kid, ok := token.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("%w: token header missing kid", ErrInvalidToken)
			}
			return v.keys.GetSigningKey(ctx, kid)
		},
		// RS256 only: no algorithm-confusion acceptance of HS* or none.
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrKeyFetch):
			return nil, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}
	if err := v.validateClaims(mapClaims); err != nil {
		return nil, err
	}
	return extractClaims(mapClaims), nil
}

// validateClaims enforces expiry always, and issuer/audience when configured.
func (v *TokenVerifier) validateClaims(claims jwt.MapClaims) error {
	if v.issuer != "" {
		issuerClaim, err := claims.GetIssuer()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
		}
		if strings.TrimSpace(issuerClaim) != strings.TrimSpace(v.issuer) {
			return ErrInvalidIssuer
		}
	}

	if v.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return ErrInvalidAudience
		}
		found := false
		for _, aud := range audiences {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidAudience
		}
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil || expirationTime.Before(time.Now()) {
		return ErrTokenExpired
	}
	return nil
}

// missingScopes returns the required scopes the token does not carry.
func (v *TokenVerifier) missingScopes(claims *Claims) []string {
	var missing []string
	for _, required := range v.requiredScopes {
		if !claims.HasScope(required) {
			missing = append(missing, required)
		}
	}
	return missing
}

// extractClaims pulls the fields the gateway cares about out of the raw map.
func extractClaims(claims jwt.MapClaims) *Claims {
	out := &Claims{Raw: claims}

	out.Subject, _ = claims.GetSubject()
	out.Issuer, _ = claims.GetIssuer()
	if aud, err := claims.GetAudience(); err == nil {
		out.Audience = aud
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if grant, ok := claims["gty"].(string); ok {
		out.GrantType = grant
	} else if grant, ok := claims["grant_type"].(string); ok {
		out.GrantType = grant
	}

	for _, e := range clientIDExtractors {
		if id := e.extract(claims); id != "" {
			out.ClientID = id
			break
		}
	}

	out.Scopes = extractScopes(claims)
	return out
}

// extractScopes handles both OAuth2 conventions: a space-delimited "scope"
// string (RFC 6749 / RFC 8693) and an "scp" array (Azure AD, Okta).
func extractScopes(claims jwt.MapClaims) []string {
	if scope, ok := claims["scope"].(string); ok {
		return strings.Fields(scope)
	}
	if scp, ok := claims["scp"].([]any); ok {
		scopes := make([]string, 0, len(scp))
		for _, s := range scp {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	}
	return nil
}
