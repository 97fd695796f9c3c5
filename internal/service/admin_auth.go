package service

import (
	"time"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/utils"
)

// DefaultAdminTokenTTL is the lifetime of a login token.
const DefaultAdminTokenTTL = 60 * time.Minute

// AdminAuth checks the shared admin secret and issues bearer tokens for it.
type AdminAuth struct {
	passwordHash string
	jwtSecret    string
	tokenTTL     time.Duration
	clock        clock.Clock
}

// NewAdminAuth returns an AdminAuth that verifies passwords against the
// bcrypt passwordHash.  Tokens are disabled when jwtSecret is empty.
func NewAdminAuth(passwordHash, jwtSecret string, tokenTTL time.Duration, clk clock.Clock) *AdminAuth {
	if tokenTTL <= 0 {
		tokenTTL = DefaultAdminTokenTTL
	}
	return &AdminAuth{passwordHash: passwordHash, jwtSecret: jwtSecret, tokenTTL: tokenTTL, clock: clk}
}

// CheckPassword reports whether password is the admin secret.
func (a *AdminAuth) CheckPassword(password string) bool {
	if password == "" || a.passwordHash == "" {
		return false
	}
	return utils.VerifyPassword(a.passwordHash, password)
}

// CheckToken reports whether raw is a valid admin token.
func (a *AdminAuth) CheckToken(raw string) bool {
	if a.jwtSecret == "" {
		return false
	}
	return utils.ParseAdminToken(a.jwtSecret, raw, a.clock.Now()) == nil
}

// Login exchanges the admin secret for a signed token.
func (a *AdminAuth) Login(password string) (utils.AdminToken, error) {
	if !a.CheckPassword(password) {
		return utils.AdminToken{}, newError(ErrUnauthorized, CodeUnauthorized, "invalid admin password")
	}
	if a.jwtSecret == "" {
		return utils.AdminToken{}, newError(ErrPrecondition, CodeTokensDisabled, "admin tokens are not configured")
	}
	tok, err := utils.NewAdminToken(a.jwtSecret, a.tokenTTL, a.clock.Now())
	if err != nil {
		return utils.AdminToken{}, storageError("sign admin token", err)
	}
	return tok, nil
}
