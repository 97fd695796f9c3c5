package utils // package utils provides helpers for admin token signing and password hashing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
)

// RoleAdmin is the only role issued by the login endpoint.
const RoleAdmin = "ADMIN"

// ErrInvalidToken is returned for tokens that are malformed, expired, signed
// with another key or carry another role.
var ErrInvalidToken = errors.New("invalid token")

// AdminToken is a signed admin JWT along with its expiry.
type AdminToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminToken builds and signs an HS256 JWT with role ADMIN that expires
// ttl after now.
func NewAdminToken(secret string, ttl time.Duration, now time.Time) (AdminToken, error) {
	if secret == "" {
		return AdminToken{}, errors.New("jwt secret is empty")
	}
	now = now.UTC()
	exp := now.Add(ttl)
	claims := adminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AdminToken{}, err
	}
	return AdminToken{Token: signed, Exp: exp}, nil
}

// ParseAdminToken verifies raw against secret at time now and checks its
// role claim.
func ParseAdminToken(secret, raw string, now time.Time) error {
	if secret == "" || raw == "" {
		return ErrInvalidToken
	}
	var claims adminClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !tok.Valid || claims.Role != RoleAdmin {
		return ErrInvalidToken
	}
	return nil
}
