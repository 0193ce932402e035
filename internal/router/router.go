package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/iliyamo/cinema-seat-live/internal/handler"    // import the handlers that implement request logic
    "github.com/iliyamo/cinema-seat-live/internal/middleware" // import middleware for JWT authentication
    "github.com/iliyamo/cinema-seat-live/internal/realtime"   // import the websocket endpoint handler
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Map the GET request at path "/healthz" to the Health handler.  This
    // endpoint can be used by load balancers or monitoring systems to verify
    // that the service is up and running.
    e.GET("/healthz", handler.Health)
}

// RegisterRealtime registers the websocket endpoint.  The JWT middleware
// runs before the upgrade, so connections without a valid bearer
// credential (header or `token` query parameter) are rejected before any
// session exists.
func RegisterRealtime(e *echo.Echo, ws *realtime.WSHandler, jwtSecret string) {
    e.GET("/v1/ws", ws.Serve, middleware.JWTAuth(jwtSecret))
}

// RegisterSeats registers the REST seat-map snapshot under the same JWT
// protection as the websocket.  It gives clients a plain request/response
// view of the seat states without opening a live connection.
func RegisterSeats(e *echo.Echo, h *handler.SeatsHandler, jwtSecret string) {
    g := e.Group("/v1")
    g.Use(middleware.JWTAuth(jwtSecret))
    g.GET("/shows/:id/seats", h.GetShowSeats)
}
