package utility

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context keys shared by middleware and handlers.
const (
	ContextLogger    = "logger"
	ContextRequestID = "request_id"
	ContextSessionID = "session_id"
)

// GetRealIP returns the client address, preferring proxy headers.
func GetRealIP(c echo.Context) string {
	// 1. Check X-Forwarded-For first
	// This header can be a list: "client, proxy1, proxy2"
	if xForwardedFor := c.Request().Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	// 2. Check X-Real-IP
	if xRealIP := c.Request().Header.Get("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}

	// 3. Fall back to the direct peer
	return c.RealIP()
}

// LoggerFromContext returns the request-scoped logger, or the global one.
func LoggerFromContext(c echo.Context) *zerolog.Logger {
	if l, ok := c.Get(ContextLogger).(*zerolog.Logger); ok && l != nil {
		return l
	}
	return &log.Logger
}

// GetSessionIDFromContext safely retrieves the session ID from Echo context
func GetSessionIDFromContext(c echo.Context) (string, error) {
	id, ok := c.Get(ContextSessionID).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return id, nil
}
