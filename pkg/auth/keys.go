package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/time/rate"
)

const (
	// defaultKeyTTL is how long a fetched key set is trusted before a
	// lookup miss may trigger a refresh.
	defaultKeyTTL = 10 * time.Minute

	// defaultFetchesPerMinute caps refresh requests against the JWKS
	// endpoint. Identity providers rotate keys rarely; hammering the
	// endpoint on every verification would add latency and load.
	defaultFetchesPerMinute = 10

	// registrationTimeout bounds the initial JWKS registration so a slow
	// provider cannot stall the first authenticated request indefinitely.
	registrationTimeout = 5 * time.Second
)

// SigningKeyCache fetches and caches public signing keys from a JWKS
// endpoint. Entries are immutable once cached; the whole set is replaced
// atomically on refresh, so concurrent readers never observe a partial
// update.
type SigningKeyCache struct {
	jwksURL string
	cache   *jwk.Cache
	ttl     time.Duration
	limiter *rate.Limiter

	mu          sync.Mutex
	registered  bool
	registerErr error
	lastRefresh time.Time
}

// SigningKeyCacheConfig configures a SigningKeyCache. Zero values fall back
// to the defaults above.
type SigningKeyCacheConfig struct {
	// JWKSURL is the JSON Web Key Set endpoint to fetch keys from.
	JWKSURL string

	// TTL is how long the cached key set is trusted.
	TTL time.Duration

	// FetchesPerMinute caps refresh requests against the endpoint.
	FetchesPerMinute int

	// HTTPClient is used for all JWKS requests. Defaults to a client with
	// a 30-second timeout.
	HTTPClient *http.Client
}

// NewSigningKeyCache creates a signing key cache backed by an auto-refreshing
// JWKS client.
func NewSigningKeyCache(ctx context.Context, cfg SigningKeyCacheConfig) (*SigningKeyCache, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("%w: missing JWKS URL", ErrKeyFetch)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	httprcClient := httprc.NewClient(httprc.WithHTTPClient(httpClient))
	cache, err := jwk.NewCache(ctx, httprcClient)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create JWKS cache: %v", ErrKeyFetch, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}
	perMinute := cfg.FetchesPerMinute
	if perMinute <= 0 {
		perMinute = defaultFetchesPerMinute
	}

	return &SigningKeyCache{
		jwksURL: cfg.JWKSURL,
		cache:   cache,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}, nil
}

// ensureRegistered registers the JWKS URL with the cache on first use.
// Registration is lazy so a misconfigured or unreachable provider does not
// block process startup.
func (c *SigningKeyCache) ensureRegistered(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		return c.registerErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, registrationTimeout)
	defer cancel()

	if err := c.cache.Register(registrationCtx, c.jwksURL); err != nil {
		c.registerErr = fmt.Errorf("%w: failed to register JWKS URL: %v", ErrKeyFetch, err)
	} else {
		c.registerErr = nil
		c.lastRefresh = time.Now()
	}
	c.registered = true
	return c.registerErr
}

// GetSigningKey returns the public key with the given key ID.
//
// A lookup miss outside the TTL window triggers at most one rate-limited
// refresh before failing: key rotation means a previously unseen kid is
// expected occasionally, but an attacker-supplied kid must not let callers
// drive unbounded traffic to the provider.
func (c *SigningKeyCache) GetSigningKey(ctx context.Context, keyID string) (any, error) {
	if err := c.ensureRegistered(ctx); err != nil {
		return nil, err
	}

	keySet, err := c.cache.Lookup(ctx, c.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up JWKS: %v", ErrKeyFetch, err)
	}

	key, found := keySet.LookupKeyID(keyID)
	if !found {
		keySet, err = c.refreshIfAllowed(ctx)
		if err != nil {
			return nil, err
		}
		if key, found = keySet.LookupKeyID(keyID); !found {
			return nil, fmt.Errorf("%w: key ID %q not found in JWKS", ErrKeyFetch, keyID)
		}
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("%w: failed to export raw key: %v", ErrKeyFetch, err)
	}
	return rawKey, nil
}

// refreshIfAllowed refreshes the key set when the cached copy has aged past
// the TTL and the fetch ceiling permits another request.
func (c *SigningKeyCache) refreshIfAllowed(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	fresh := time.Since(c.lastRefresh) < c.ttl
	c.mu.Unlock()

	if fresh {
		return nil, fmt.Errorf("%w: key not present in cached JWKS", ErrKeyFetch)
	}
	if !c.limiter.Allow() {
		return nil, fmt.Errorf("%w: JWKS fetch rate limit exceeded", ErrKeyFetch)
	}

	keySet, err := c.cache.Refresh(ctx, c.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to refresh JWKS: %v", ErrKeyFetch, err)
	}

	c.mu.Lock()
	c.lastRefresh = time.Now()
	c.mu.Unlock()
	return keySet, nil
}

// Clear forgets the cached key set's freshness so the next lookup miss
// refreshes from the endpoint. Intended for test isolation.
func (c *SigningKeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = time.Time{}
}
