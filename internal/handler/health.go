package handler // declare the package name; contains HTTP handlers

import (
    "net/http" // net/http provides status codes and response helpers

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is the liveness endpoint used by load balancers and monitoring
// to verify the coordinator is serving.  It deliberately touches no
// dependency: the coordinator keeps serving in-memory holds even when
// the durable store or the broker is down, and a health check that
// probed them would take live showtimes out of rotation needlessly.
func Health(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"status": "ok"}) // structured body, matching every other JSON response
}
