// Package jwt authenticates RS256/384/512 bearer tokens whose signing keys
// are published at a JWKS endpoint.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/chatwire/pkg/auth"
)

// Config selects the accepted tokens and the claims an identity is built
// from. Issuer and Audience are only checked when set.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string

	UserClaim   string // default "sub"
	TenantClaim string // default "tenant_id"
	ScopesClaim string // default "scope"; space separated string or array
	TierClaim   string // default "tier"

	// CacheTTL bounds how long fetched keys are trusted. Default 1h.
	CacheTTL time.Duration

	// MinRefresh throttles refetches caused by unknown key IDs. Default 30s.
	MinRefresh time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Config) setDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

func New(cfg Config) *Authenticator {
	cfg.setDefaults()

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   &keySet{url: cfg.JWKSURL, ttl: cfg.CacheTTL, minRefresh: cfg.MinRefresh, client: cfg.HTTPClient, logger: cfg.Logger},
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains without a bearer token and rejects tokens that
// fail verification or lack the user claim.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return auth.Result{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(tok *jwtlib.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.get(ctx, kid)
	})
	if err != nil {
		a.cfg.Logger.Debug("jwt rejected", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid token: %w", err)}
	}

	subject := stringClaim(claims, a.cfg.UserClaim)
	if subject == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("token has no %q claim", a.cfg.UserClaim)}
	}

	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     subject,
			TenantID:    stringClaim(claims, a.cfg.TenantClaim),
			ServiceTier: stringClaim(claims, a.cfg.TierClaim),
			Scopes:      scopes(claims[a.cfg.ScopesClaim]),
		},
	}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func scopes(v any) []string {
	var out []string
	switch v := v.(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// keySet caches the RSA keys of a JWKS document by key ID.
type keySet struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	age := time.Since(s.fetchedAt)
	if key, ok := s.keys[kid]; ok && age < s.ttl {
		return key, nil
	}
	// A token with an unknown kid refetches at most once per minRefresh.
	if s.keys != nil && age < s.ttl && age < s.minRefresh {
		return nil, fmt.Errorf("unknown key %q", kid)
	}

	keys, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.keys = keys
	s.fetchedAt = time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key %q", kid)
	}
	return key, nil
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching jwks: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaKey()
		if err != nil {
			s.logger.Warn("skipping jwks key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	s.logger.Debug("jwks refreshed", "url", s.url, "keys", len(keys))
	return keys, nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
