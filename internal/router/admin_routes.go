package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
)

// RegisterAdmin registers the /api/admin endpoints.  Login is open; every
// other route requires the admin secret or a token issued by login.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, v middleware.AdminVerifier, limit echo.MiddlewareFunc) {
	e.POST("/api/admin/login", a.Login, limit)

	g := e.Group("/api/admin", middleware.RequireAdmin(v))

	// ---- Rows ----
	g.GET("/rows", a.ListRows)
	g.PUT("/rows/:row", a.UpdateRow)

	// ---- Seats ----
	g.GET("/seats", a.ListSeats)
	g.PUT("/seats/:id", a.UpdateSeat)
	g.POST("/seats/regenerate", a.Regenerate)

	// ---- Bookings ----
	g.GET("/export", a.Export)

	// ---- Event ----
	g.GET("/event", a.GetEvent)
	g.PUT("/event", a.UpdateEvent)
}
