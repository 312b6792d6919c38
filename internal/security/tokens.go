package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, unsigned by this provider, or otherwise invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's signature is valid but it has passed its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// Claims holds the JWT payload for a bearer credential. Subject is the account email;
// MFA records whether the second factor was completed before this credential was issued.
type Claims struct {
	jwt.RegisteredClaims
	MFA bool `json:"mfa"`
}

// TokenProvider issues and validates HS256 bearer credentials signed with a shared secret.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenProvider returns a TokenProvider signing with secret and defaulting to ttl as the
// credential lifetime. A non-positive ttl falls back to one hour.
func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenProvider{secret: []byte(secret), ttl: ttl}
}

// Issue mints a bearer credential for email, carrying the given mfa flag, expiring after the
// provider's ttl. Returns the signed token and its expiration time.
func (p *TokenProvider) Issue(email string, mfa bool) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		MFA: mfa,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = t.SignedString(p.secret)
	return token, expiresAt, err
}

// Validate parses tokenString, checks its signature and expiry, and returns its claims.
// It does not consult a revocation/blacklist store; callers combine Validate with a cache
// lookup to honor logout semantics.
func (p *TokenProvider) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RemainingLifetime returns the duration between now and the claims' exp, used to size the
// credential-blacklist cache entry on logout. Negative once the token has expired.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}
