package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/event-seat-reservation/internal/handler"    // handlers that call the services
	"github.com/iliyamo/event-seat-reservation/internal/middleware" // admin auth, rate limit and cache middleware
)

// RegisterRoutes registers the operational endpoints: /healthz pings the
// database and /metrics exposes the Prometheus registry.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the unauthenticated read endpoints.  Only the
// event details go through the response cache; seat status is always
// derived fresh.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache *middleware.ResponseCache) {
	e.GET(handler.EventRoute, p.GetEvent, cache.Middleware())
	e.GET("/api/seats", p.ListSeats)
}
