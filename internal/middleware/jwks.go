package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrKeySetUnavailable means the JWKS endpoint could not be read.
var ErrKeySetUnavailable = errors.New("jwks unavailable")

const (
	defaultJWKSRefreshInterval = 5 * time.Minute
	defaultJWKSRetryInterval   = 5 * time.Second
)

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSClient caches the RSA keys of a JWKS document by kid. A kid that is
// not cached triggers a refetch. Successful refetches happen at most once per
// refresh interval, so forged kids cannot be used to hammer the endpoint. A
// failed fetch does not count against that budget; it is retried after the
// retry interval and reported as ErrKeySetUnavailable until then.
type JWKSClient struct {
	url           string
	httpClient    *http.Client
	limiter       *rate.Limiter
	retryInterval time.Duration

	// guarded by fetchMu, which also serialises refetches
	fetchMu     sync.Mutex
	lastErr     error
	nextAttempt time.Time

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

type JWKSOption func(*JWKSClient)

func WithJWKSHTTPClient(hc *http.Client) JWKSOption {
	return func(c *JWKSClient) { c.httpClient = hc }
}

func WithJWKSRefreshInterval(d time.Duration) JWKSOption {
	return func(c *JWKSClient) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithJWKSRetryInterval sets how long a failed fetch is reported before the
// endpoint is tried again.
func WithJWKSRetryInterval(d time.Duration) JWKSOption {
	return func(c *JWKSClient) { c.retryInterval = d }
}

func NewJWKSClient(url string, opts ...JWKSOption) *JWKSClient {
	c := &JWKSClient{
		url:           url,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		limiter:       rate.NewLimiter(rate.Every(defaultJWKSRefreshInterval), 1),
		retryInterval: defaultJWKSRetryInterval,
		keys:          make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *JWKSClient) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Another caller may have refetched while we waited.
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	if c.lastErr != nil && time.Now().Before(c.nextAttempt) {
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, c.lastErr)
	}
	if c.lastErr == nil && c.limiter.Tokens() < 1 {
		return nil, fmt.Errorf("key with kid %q not found in JWKS", kid)
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		c.lastErr = err
		c.nextAttempt = time.Now().Add(c.retryInterval)
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
	}
	c.lastErr = nil
	c.limiter.Allow()

	c.mu.Lock()
	c.keys = keys
	c.mu.Unlock()

	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %q not found in JWKS", kid)
}

func (c *JWKSClient) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 2 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

var _ KeySource = (*JWKSClient)(nil)
