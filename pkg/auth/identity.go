package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuthMethod records how a request was authenticated.
type AuthMethod string

// Authentication methods.
const (
	// MethodDualToken means both the client token and a user token verified.
	MethodDualToken AuthMethod = "dual-token"

	// MethodClientOnly means only the client token verified; any user token
	// was absent or invalid.
	MethodClientOnly AuthMethod = "client-only"

	// MethodAPIKey means the pre-shared API key matched.
	MethodAPIKey AuthMethod = "api-key"

	// MethodAnonymous means authentication is disabled.
	MethodAnonymous AuthMethod = "anonymous"
)

// AuthContext is the immutable authentication context attached to a request
// or streaming session. It is created once by the Resolver and only ever
// passed down, never mutated.
//
// Invariant: UserID is non-empty iff Method is MethodDualToken.
type AuthContext struct {
	// ClientID identifies the calling application.
	ClientID string

	// ClientScopes are the scopes granted to the application token.
	ClientScopes []string

	// UserID and UserEmail identify the end user when a user token verified.
	UserID    string
	UserEmail string

	// RawAccessToken is the client bearer token, forwarded verbatim to the
	// backend so it can make its own authorization decisions.
	RawAccessToken string

	// RawUserToken is the user bearer token, if one verified.
	RawUserToken string

	// Method records how this context was established.
	Method AuthMethod

	// AuthenticatedAt is when verification completed.
	AuthenticatedAt time.Time
}

// String returns a representation with tokens redacted so an AuthContext can
// be logged safely.
func (a *AuthContext) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("AuthContext{ClientID:%q, Method:%q, UserID:%q}", a.ClientID, a.Method, a.UserID)
}

// MarshalJSON redacts the raw tokens to prevent leakage through structured
// logs or API responses.
func (a *AuthContext) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}

	type safeAuthContext struct {
		ClientID        string     `json:"clientId"`
		ClientScopes    []string   `json:"clientScopes"`
		UserID          string     `json:"userId,omitempty"`
		UserEmail       string     `json:"userEmail,omitempty"`
		RawAccessToken  string     `json:"rawAccessToken"`
		RawUserToken    string     `json:"rawUserToken,omitempty"`
		Method          AuthMethod `json:"authMethod"`
		AuthenticatedAt time.Time  `json:"authenticatedAt"`
	}

	safe := safeAuthContext{
		ClientID:        a.ClientID,
		ClientScopes:    a.ClientScopes,
		UserID:          a.UserID,
		UserEmail:       a.UserEmail,
		Method:          a.Method,
		AuthenticatedAt: a.AuthenticatedAt,
	}
	if a.RawAccessToken != "" {
		safe.RawAccessToken = "REDACTED"
	}
	if a.RawUserToken != "" {
		safe.RawUserToken = "REDACTED"
	}
	return json.Marshal(&safe)
}

// UserAuthOutcome is the typed result of the optional user-token
// verification. Failed and Absent are treated alike for authorization
// purposes; they differ only for logging.
type UserAuthOutcome struct {
	state  userAuthState
	claims *Claims
	reason error
}

type userAuthState int

const (
	userAuthAbsent userAuthState = iota
	userAuthVerified
	userAuthFailed
)

// UserAuthAbsent reports no user token was presented.
func UserAuthAbsent() UserAuthOutcome {
	return UserAuthOutcome{state: userAuthAbsent}
}

// UserAuthVerified reports a user token verified with the given claims.
func UserAuthVerified(claims *Claims) UserAuthOutcome {
	return UserAuthOutcome{state: userAuthVerified, claims: claims}
}

// UserAuthFailed reports a user token was presented but failed verification.
func UserAuthFailed(reason error) UserAuthOutcome {
	return UserAuthOutcome{state: userAuthFailed, reason: reason}
}

// Verified returns the user claims and true when verification succeeded.
func (o UserAuthOutcome) Verified() (*Claims, bool) {
	return o.claims, o.state == userAuthVerified
}

// Failed returns the failure reason and true when a presented token was
// rejected.
func (o UserAuthOutcome) Failed() (error, bool) {
	return o.reason, o.state == userAuthFailed
}

// AuthContextKey is the key used to store the AuthContext in a request
// context. An empty struct type avoids collisions with other packages' keys.
type AuthContextKey struct{}

// WithAuthContext stores an AuthContext in the context.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	if ac == nil {
		return ctx
	}
	return context.WithValue(ctx, AuthContextKey{}, ac)
}

// FromContext retrieves the AuthContext from the context.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey{}).(*AuthContext)
	return ac, ok
}
