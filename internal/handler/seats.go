package handler

import (
    "errors"   // sentinel comparisons against repository errors
    "net/http" // HTTP status codes
    "strconv"  // parsing path parameters

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/cinema-seat-live/internal/hold"
    "github.com/iliyamo/cinema-seat-live/internal/repository"
)

// SeatsHandler serves the REST view of a show's seat map.  It exposes
// the same point-in-time snapshot the websocket protocol delivers, for
// clients that render the seat map before opening a live connection.
type SeatsHandler struct {
    Snapshots *hold.SnapshotSource
}

// NewSeatsHandler constructs a SeatsHandler.  The snapshot source must
// be non-nil.
func NewSeatsHandler(snapshots *hold.SnapshotSource) *SeatsHandler {
    if snapshots == nil {
        panic("nil snapshot source passed to NewSeatsHandler")
    }
    return &SeatsHandler{Snapshots: snapshots}
}

// GetShowSeats handles GET /v1/shows/:id/seats.  It returns one status
// row per seat: AVAILABLE, HELD (with holder and expiry) or CONFIRMED.
// A durable-store failure is reported as 503 rather than an empty or
// all-available seat map.
func (h *SeatsHandler) GetShowSeats(c echo.Context) error {
    showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || showID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    seats, err := h.Snapshots.Snapshot(c.Request().Context(), showID)
    if err != nil {
        if errors.Is(err, repository.ErrShowNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
        }
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "seat map could not be loaded"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "show_id": showID,
        "seats":   seats,
    })
}
