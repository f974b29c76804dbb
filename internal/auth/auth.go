// Package auth validates the bearer tokens of API requests
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/omerasipi/Es-Selam-Banko/internal/config"
)

// Token validation failures
var (
	ErrNoToken         = errors.New("no authorization token provided")
	ErrInvalidToken    = errors.New("invalid authorization token")
	ErrTokenExpired    = errors.New("token has expired")
	ErrTokenNotYet     = errors.New("token not yet valid")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrMissingScope    = errors.New("token lacks the required scope")
)

// jwksTTL is how long fetched signing keys are trusted
const jwksTTL = time.Hour

// Claims are the token claims the service reads
type Claims struct {
	Issuer    string   `json:"iss"`
	Subject   string   `json:"sub"`
	Audience  []string `json:"aud"`
	ExpiresAt int64    `json:"exp"`
	IssuedAt  int64    `json:"iat"`
	NotBefore int64    `json:"nbf,omitempty"`
	Scope     string   `json:"scope,omitempty"`
	Name      string   `json:"name,omitempty"`
}

// UnmarshalJSON accepts a single audience string or a list
func (c *Claims) UnmarshalJSON(data []byte) error {
	type alias Claims
	aux := &struct {
		Audience any `json:"aud"`
		*alias
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	switch v := aux.Audience.(type) {
	case string:
		c.Audience = []string{v}
	case []any:
		c.Audience = make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				c.Audience = append(c.Audience, s)
			}
		}
	}
	return nil
}

// HasScope reports whether the space separated scope claim grants scope
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(strings.Fields(c.Scope), scope)
}

// JWKS is a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is one RSA JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// PublicKey converts the key to an RSA public key
func (j *JWK) PublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type: %s", j.Kty)
	}
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	if len(e) == 0 || len(e) > 4 {
		return nil, fmt.Errorf("invalid exponent length %d", len(e))
	}

	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}

// Authenticator validates RS256/RS384/RS512 tokens against the issuer's JWKS
type Authenticator struct {
	cfg    config.OAuth2Config
	logger zerolog.Logger
	client *http.Client
	now    func() time.Time

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// NewAuthenticator creates an authenticator for cfg
func NewAuthenticator(cfg config.OAuth2Config, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		logger: logger.With().Str("component", "auth").Logger(),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// IsEnabled reports whether an issuer is configured
func (a *Authenticator) IsEnabled() bool {
	return a.cfg.Issuer != ""
}

// ValidateRequest validates the bearer token of r
func (a *Authenticator) ValidateRequest(r *http.Request) (*Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, ErrNoToken
	}
	return a.ValidateToken(r.Context(), token)
}

// ValidateToken checks the signature and claims of a compact JWT
func (a *Authenticator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(parts[0], &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}

	key, err := a.key(ctx, header.Kid)
	if err != nil {
		return nil, err
	}
	if err := verify(header.Alg, key, []byte(parts[0]+"."+parts[1]), sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := a.checkClaims(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func decodeSegment(seg string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (a *Authenticator) checkClaims(c *Claims) error {
	now := a.now().Unix()
	if now > c.ExpiresAt {
		return ErrTokenExpired
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return ErrTokenNotYet
	}
	if c.Issuer != a.cfg.Issuer {
		return ErrInvalidIssuer
	}
	if a.cfg.Audience != "" && !slices.Contains(c.Audience, a.cfg.Audience) {
		return ErrInvalidAudience
	}
	if a.cfg.Scope != "" && !c.HasScope(a.cfg.Scope) {
		return ErrMissingScope
	}
	return nil
}

func (a *Authenticator) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.RLock()
	key, ok := a.keys[kid]
	fresh := a.now().Before(a.expires)
	a.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	// Unknown kids trigger a refresh so rotated keys are picked up
	if err := a.refresh(ctx, !ok); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	key, ok = a.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidToken, kid)
	}
	return key, nil
}

func (a *Authenticator) refresh(ctx context.Context, force bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !force && a.now().Before(a.expires) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.JWKSUrl, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching JWKS: status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pk, err := k.PublicKey()
		if err != nil {
			a.logger.Warn().Err(err).Str("kid", k.Kid).Msg("skipping JWK")
			continue
		}
		keys[k.Kid] = pk
	}

	a.keys = keys
	a.expires = a.now().Add(jwksTTL)
	a.logger.Debug().Int("keys", len(keys)).Msg("refreshed JWKS")
	return nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// claimsKey stores the validated claims in the gin context
const claimsKey = "auth_claims"

// Middleware rejects requests without a valid bearer token. When the
// authenticator is disabled every request passes.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.IsEnabled() {
			c.Next()
			return
		}

		claims, err := a.ValidateRequest(c.Request)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrMissingScope) {
				status = http.StatusForbidden
			} else {
				c.Header("WWW-Authenticate", `Bearer realm="banko"`)
			}
			a.logger.Debug().Err(err).Str("path", c.FullPath()).Msg("request rejected")
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Middleware, or nil
func ClaimsFrom(c *gin.Context) *Claims {
	if v, ok := c.Get(claimsKey); ok {
		claims, _ := v.(*Claims)
		return claims
	}
	return nil
}
