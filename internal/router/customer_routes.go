package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
)

// RegisterCustomer registers the checkout endpoints under /api.  Customers
// are anonymous browser sessions, so there is no authentication; the
// writes that can be abused are wrapped in limit.
func RegisterCustomer(e *echo.Echo, b *handler.BookingHandler, h *handler.HoldHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/api")

	g.POST("/bookings", b.Create, limit)
	g.GET("/bookings", b.List)
	g.POST("/bookings/retrieve", b.Retrieve, limit)
	g.DELETE("/bookings/:id", b.Cancel)

	g.POST("/holds", h.Place, limit)
	g.PUT("/holds/renew", h.Renew)
	g.DELETE("/holds", h.Release)
}
