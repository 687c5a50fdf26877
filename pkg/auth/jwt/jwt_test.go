package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/chatwire/pkg/auth"
)

const (
	testKID      = "key-1"
	testIssuer   = "https://idp.example.com"
	testAudience = "chatwire"
)

var signingKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

func serveJWKS(t *testing.T, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		pub := signingKey.PublicKey
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{"kty": "EC", "kid": "ec-key"},
				{
					"kty": "RSA",
					"kid": testKID,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAuthenticator(t *testing.T, fetches *atomic.Int32, tweak func(*Config)) *Authenticator {
	t.Helper()
	if fetches == nil {
		fetches = &atomic.Int32{}
	}
	cfg := Config{
		Issuer:   testIssuer,
		Audience: testAudience,
		JWKSURL:  serveJWKS(t, fetches).URL,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	return New(cfg)
}

func sign(t *testing.T, kid string, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(signingKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func validClaims(extra jwtlib.MapClaims) jwtlib.MapClaims {
	c := jwtlib.MapClaims{
		"sub": "user-1",
		"iss": testIssuer,
		"aud": testAudience,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return c
}

func authenticate(a *Authenticator, header string) auth.Result {
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestAuthenticateIdentity(t *testing.T) {
	a := newAuthenticator(t, nil, nil)

	res := authenticate(a, "Bearer "+sign(t, testKID, validClaims(jwtlib.MapClaims{
		"tenant_id": "org-1",
		"tier":      "premium",
		"scope":     "chat transcripts:read",
	})))
	if res.Decision != auth.Yes {
		t.Fatalf("Decision = %s, err = %v", res.Decision, res.Err)
	}

	id := res.Identity
	if id.Subject != "user-1" || id.TenantID != "org-1" || id.ServiceTier != "premium" {
		t.Errorf("identity = %+v", id)
	}
	if !slices.Equal(id.Scopes, []string{"chat", "transcripts:read"}) {
		t.Errorf("Scopes = %v", id.Scopes)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	a := newAuthenticator(t, nil, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"expired", "Bearer " + sign(t, testKID, validClaims(jwtlib.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()}))},
		{"wrong audience", "Bearer " + sign(t, testKID, validClaims(jwtlib.MapClaims{"aud": "other"}))},
		{"wrong issuer", "Bearer " + sign(t, testKID, validClaims(jwtlib.MapClaims{"iss": "https://evil.example.com"}))},
		{"missing subject", "Bearer " + sign(t, testKID, validClaims(jwtlib.MapClaims{"sub": nil}))},
		{"unknown kid", "Bearer " + sign(t, "key-2", validClaims(nil))},
		{"no kid", "Bearer " + sign(t, "", validClaims(nil))},
		{"garbage", "Bearer not-a-jwt"},
		{"empty", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := authenticate(a, tt.header); res.Decision != auth.No || res.Err == nil {
				t.Errorf("Decision = %s, err = %v, want no", res.Decision, res.Err)
			}
		})
	}
}

func TestAuthenticateAbstains(t *testing.T) {
	a := newAuthenticator(t, nil, nil)
	for _, header := range []string{"", "Basic dXNlcjpwYXNz"} {
		if res := authenticate(a, header); res.Decision != auth.Abstain {
			t.Errorf("header %q: Decision = %s, want abstain", header, res.Decision)
		}
	}
}

func TestOptionalIssuerAndAudience(t *testing.T) {
	a := newAuthenticator(t, nil, func(c *Config) {
		c.Issuer = ""
		c.Audience = ""
	})
	tok := sign(t, testKID, validClaims(jwtlib.MapClaims{"iss": "https://any.example.com", "aud": "any"}))
	if res := authenticate(a, "Bearer "+tok); res.Decision != auth.Yes {
		t.Errorf("Decision = %s, err = %v", res.Decision, res.Err)
	}
}

func TestCustomClaims(t *testing.T) {
	a := newAuthenticator(t, nil, func(c *Config) {
		c.UserClaim = "email"
		c.TenantClaim = "org"
		c.ScopesClaim = "permissions"
		c.TierClaim = "plan"
	})
	tok := sign(t, testKID, validClaims(jwtlib.MapClaims{
		"sub":         nil,
		"email":       "alice@example.com",
		"org":         "acme",
		"plan":        "gold",
		"permissions": []any{"chat", 7, ""},
	}))

	res := authenticate(a, "Bearer "+tok)
	if res.Decision != auth.Yes {
		t.Fatalf("Decision = %s, err = %v", res.Decision, res.Err)
	}
	id := res.Identity
	if id.Subject != "alice@example.com" || id.TenantID != "acme" || id.ServiceTier != "gold" {
		t.Errorf("identity = %+v", id)
	}
	if !slices.Equal(id.Scopes, []string{"chat"}) {
		t.Errorf("Scopes = %v", id.Scopes)
	}
}

func TestKeysAreCached(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, nil)

	tok := sign(t, testKID, validClaims(nil))
	for i := range 5 {
		if res := authenticate(a, "Bearer "+tok); res.Decision != auth.Yes {
			t.Fatalf("request %d: Decision = %s, err = %v", i, res.Decision, res.Err)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("jwks fetched %d times, want 1", n)
	}
}

func TestUnknownKidRefetchIsThrottled(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, nil)

	tok := sign(t, "rotated-away", validClaims(nil))
	for range 3 {
		authenticate(a, "Bearer "+tok)
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("jwks fetched %d times, want 1", n)
	}
}
