package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/cinema-seat-live/internal/utils" // token verification helpers
)

// JWTAuth returns an Echo middleware that validates a bearer access token
// and injects the token's subject into the request context.  The provided
// secret must match the one the auth service signs tokens with.  This
// middleware gates every route of the coordinator, including the
// websocket upgrade: a connection without a valid credential is rejected
// before any session is created.
//
// The token is read from the Authorization header ("Bearer <jwt>") or,
// because browsers cannot set headers on websocket connections, from the
// `token` query parameter.  Handlers access the authenticated identity
// via `c.Get("user_id")` (uint64) and `c.Get("role")` (string).
func JWTAuth(secret string) echo.MiddlewareFunc {
    // The outer function returns a middleware function.  Echo executes this
    // once when registering the middleware.
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        // The returned handler is invoked for each incoming HTTP request.
        return func(c echo.Context) error {
            // Prefer the Authorization header; fall back to the query
            // parameter used by websocket clients.
            raw := ""
            if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
                raw = strings.TrimPrefix(auth, "Bearer ")
            } else {
                raw = c.QueryParam("token")
            }
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "AUTHENTICATION_ERROR"})
            }

            // Verify the signature and extract the normalized claims.
            // utils.VerifyAccessToken enforces the HS256 signing method
            // and converts the subject to a numeric user ID regardless
            // of how the issuer encoded it.
            claims, err := utils.VerifyAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "AUTHENTICATION_ERROR"})
            }

            // Store the normalized identity in the context for handlers
            // and downstream middleware.
            c.Set("user_id", claims.UserID)
            c.Set("role", claims.Role)
            // Call the next handler in the chain and return its result.
            return next(c)
        }
    }
}
