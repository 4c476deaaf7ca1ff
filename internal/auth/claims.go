package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/facility-core/internal/infrastructure/config"
)

// defaultAccessTTL applies when the configured TTL is not positive.
const defaultAccessTTL = 60 * time.Minute

// Claims are the access token claims. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// AccessToken is an issued token and its expiry.
type AccessToken struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer from the security.jwt config section.
// AccessTokenTTL is in minutes.
func NewIssuer(cfg config.JWTConfig) *Issuer {
	ttl := time.Duration(cfg.AccessTokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &Issuer{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}
}

// Issue creates an access token for user.
func (i *Issuer) Issue(user *User) (AccessToken, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Role: user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("signing access token: %w", err)
	}
	return AccessToken{Token: signed, Expires: expires.UTC()}, nil
}

// Parse verifies the signature and expiry of token and returns its claims.
// Every failure wraps ErrTokenInvalid.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
