// Package auth provides bearer-token authentication for the gateway.
//
// Two credentials may accompany a request: a mandatory client token proving
// the calling application's authorization, and an optional user token
// carrying end-user identity for personalization. The client path is strict;
// the user path degrades silently (see Resolver).
package auth

import "errors"

// Common errors. All of them surface to HTTP callers as 401 with a
// WWW-Authenticate challenge; they are distinguished with errors.Is.
var (
	// ErrNoToken indicates the Authorization header was absent or empty.
	ErrNoToken = errors.New("no token provided")

	// ErrInvalidToken indicates the token failed signature or format checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer indicates the iss claim did not match the configured issuer.
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience indicates the aud claim did not contain the configured audience.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrKeyFetch indicates the JWKS endpoint was unreachable or the
	// token's key ID is absent from the published set.
	ErrKeyFetch = errors.New("signing key resolution failed")

	// ErrMissingClientID indicates no client identifier could be extracted
	// from any of the recognized claims.
	ErrMissingClientID = errors.New("token carries no client identifier")

	// ErrClientNotAllowed indicates the extracted client ID is not in the
	// configured allowlist.
	ErrClientNotAllowed = errors.New("client is not allowed")

	// ErrMissingScopes indicates one or more required scopes are absent.
	ErrMissingScopes = errors.New("missing required scopes")

	// ErrWrongGrantType indicates a token minted under the wrong OAuth2
	// grant was presented for its position (client vs. user).
	ErrWrongGrantType = errors.New("wrong grant type for token position")
)
