package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

// HoldHandler places, renews and releases seat holds for a browser session.
type HoldHandler struct {
	Holds  *service.HoldManager
	Logger logrus.FieldLogger
}

// NewHoldHandler constructs a HoldHandler.
func NewHoldHandler(holds *service.HoldManager, logger logrus.FieldLogger) *HoldHandler {
	if holds == nil {
		panic("nil hold manager passed to NewHoldHandler")
	}
	return &HoldHandler{Holds: holds, Logger: loggerOrDefault(logger)}
}

type holdRequest struct {
	SeatIDs   []uint64 `json:"seatIds"`
	SessionID string   `json:"sessionId"`
}

// bindHold reads the request body.  The session falls back to the
// sessionId query parameter and the X-Session-Id header.
func bindHold(c echo.Context) (holdRequest, error) {
	var body holdRequest
	if err := c.Bind(&body); err != nil {
		return body, err
	}
	if body.SessionID == "" {
		body.SessionID = middleware.SessionID(c)
	}
	return body, nil
}

// Place handles POST /api/holds.  Seats held by another session make the
// answer 409, but the seats that could be held stay held.
func (h *HoldHandler) Place(c echo.Context) error {
	body, err := bindHold(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Holds.Place(c.Request().Context(), body.SeatIDs, body.SessionID)
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	if len(res.Conflicts) > 0 {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":          "some seats are held by another customer",
			"code":           service.CodeSeatHeld,
			"held":           res.Held,
			"conflicts":      lo.Map(res.Conflicts, func(hc service.HoldConflict, _ int) uint64 { return hc.SeatID }),
			"conflictLabels": lo.Map(res.Conflicts, func(hc service.HoldConflict, _ int) string { return hc.Label }),
		})
	}
	out := echo.Map{"ok": true, "held": res.Held}
	if len(res.Held) > 0 {
		out["expiresAt"] = res.ExpiresAt
	}
	return c.JSON(http.StatusOK, out)
}

// Renew handles PUT /api/holds/renew.  Seats the session does not hold are
// ignored, so the answer is always ok unless storage fails.
func (h *HoldHandler) Renew(c echo.Context) error {
	body, err := bindHold(c)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	if _, err := h.Holds.Renew(c.Request().Context(), body.SeatIDs, body.SessionID); err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Release handles DELETE /api/holds.
func (h *HoldHandler) Release(c echo.Context) error {
	body, err := bindHold(c)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	if _, err := h.Holds.Release(c.Request().Context(), body.SeatIDs, body.SessionID); err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
