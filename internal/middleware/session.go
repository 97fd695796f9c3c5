package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SessionHeader carries the opaque browser session id.
const SessionHeader = "X-Session-Id"

// SessionID returns the session id sent with the request through the
// sessionId query parameter or, failing that, the X-Session-Id header.
// Session ids sent in JSON bodies are read by the handlers.
func SessionID(c echo.Context) string {
	if s := strings.TrimSpace(c.QueryParam("sessionId")); s != "" {
		return s
	}
	return strings.TrimSpace(c.Request().Header.Get(SessionHeader))
}
