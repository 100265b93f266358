package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentshop/shopgate/pkg/logger"
)

// UserTokenHeader carries the optional end-user token alongside the
// mandatory Authorization header.
const UserTokenHeader = "X-User-Token"

// Resolver combines the mandatory client-token verification with the
// optional user-token verification into one AuthContext per request or
// session.
//
// The two paths are deliberately asymmetric: the client token is
// load-bearing authorization and fails hard; the user token only enables
// personalization, so its failures are logged and discarded, downgrading
// the context to client-only.
type Resolver struct {
	verifier       *TokenVerifier
	apiKey         string
	allowAnonymous bool
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Verifier verifies JWT bearer tokens. May be nil when only API-key or
	// anonymous access is configured.
	Verifier *TokenVerifier

	// APIKey, when set, is accepted as a bearer credential by exact match.
	APIKey string

	// AllowAnonymous disables authentication entirely.
	AllowAnonymous bool
}

// NewResolver creates an AuthContext resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		verifier:       cfg.Verifier,
		apiKey:         cfg.APIKey,
		allowAnonymous: cfg.AllowAnonymous,
	}
}

// Resolve authenticates the request and returns its immutable AuthContext.
// Terminal states: an AuthContext, or an error from the auth taxonomy that
// callers surface as 401.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*AuthContext, error) {
	if r.allowAnonymous {
		return &AuthContext{
			ClientID:        "anonymous",
			Method:          MethodAnonymous,
			AuthenticatedAt: time.Now(),
		}, nil
	}

	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	// The API key is checked first: it is an exact match with no network
	// dependency. In hybrid mode a miss falls through to JWT verification.
	if r.apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(r.apiKey)) == 1 {
		ac := &AuthContext{
			ClientID:        "api-key",
			RawAccessToken:  token,
			Method:          MethodAPIKey,
			AuthenticatedAt: time.Now(),
		}
		r.resolveUser(ctx, req, ac)
		return ac, nil
	}

	if r.verifier == nil {
		return nil, fmt.Errorf("%w: credential not recognized", ErrInvalidToken)
	}

	claims, err := r.verifier.VerifyClientToken(ctx, token)
	if err != nil {
		return nil, err
	}

	ac := &AuthContext{
		ClientID:        claims.ClientID,
		ClientScopes:    claims.Scopes,
		RawAccessToken:  token,
		Method:          MethodClientOnly,
		AuthenticatedAt: time.Now(),
	}
	r.resolveUser(ctx, req, ac)
	return ac, nil
}

// resolveUser runs the lenient user-token path. It never returns an error:
// a failed verification downgrades to client-only and is only observable in
// the logs.
func (r *Resolver) resolveUser(ctx context.Context, req *http.Request, ac *AuthContext) {
	outcome := r.userOutcome(ctx, req)

	if claims, ok := outcome.Verified(); ok {
		ac.UserID = claims.Subject
		ac.UserEmail = claims.Email
		ac.RawUserToken = strings.TrimPrefix(req.Header.Get(UserTokenHeader), "Bearer ")
		ac.Method = MethodDualToken
		return
	}
	if reason, failed := outcome.Failed(); failed {
		logger.Warnw("user token verification failed, continuing client-only",
			"client_id", ac.ClientID, "error", reason)
	}
}

// userOutcome produces the typed result of the optional user verification.
func (r *Resolver) userOutcome(ctx context.Context, req *http.Request) UserAuthOutcome {
	raw := strings.TrimSpace(req.Header.Get(UserTokenHeader))
	if raw == "" {
		return UserAuthAbsent()
	}
	if r.verifier == nil {
		return UserAuthFailed(fmt.Errorf("no token verifier configured"))
	}

	claims, err := r.verifier.VerifyUserToken(ctx, strings.TrimPrefix(raw, "Bearer "))
	if err != nil {
		return UserAuthFailed(err)
	}
	return UserAuthVerified(claims)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing credentials", ErrNoToken)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("%w: authorization header is not a bearer token", ErrInvalidToken)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", ErrNoToken)
	}
	return token, nil
}
