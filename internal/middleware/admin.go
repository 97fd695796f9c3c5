package middleware // middleware provides shared request processing for handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminPasswordHeader carries the shared admin secret.
const AdminPasswordHeader = "X-Admin-Password"

// maxCredentialBody bounds how much of a JSON body is read to find the
// password field.
const maxCredentialBody = 1 << 20

// AdminVerifier checks admin credentials.
type AdminVerifier interface {
	CheckPassword(password string) bool
	CheckToken(token string) bool
}

// RequireAdmin rejects requests that carry no valid admin credential with
// 401.  A credential is a bearer token from the login endpoint or the shared
// secret sent in the X-Admin-Password header, the password query parameter
// or the password field of a JSON body.  The body stays readable for the
// handler.
func RequireAdmin(v AdminVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authorized(c, v) {
				c.Set("role", "ADMIN")
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
	}
}

func authorized(c echo.Context, v AdminVerifier) bool {
	req := c.Request()
	if auth := req.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		if v.CheckToken(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))) {
			return true
		}
	}
	if p := req.Header.Get(AdminPasswordHeader); p != "" && v.CheckPassword(p) {
		return true
	}
	if p := c.QueryParam("password"); p != "" && v.CheckPassword(p) {
		return true
	}
	if p := passwordFromBody(req); p != "" && v.CheckPassword(p) {
		return true
	}
	return false
}

// passwordFromBody reads the password field of a JSON body and puts the
// body back so the handler can bind it.
func passwordFromBody(req *http.Request) string {
	if req.Body == nil || req.Body == http.NoBody {
		return ""
	}
	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxCredentialBody))
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Password string `json:"password"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return body.Password
}
