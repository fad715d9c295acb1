package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/leeaandrob/coloredlog/internal/observability"
)

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the Locals key for request ID.
	RequestIDKey = "request_id"
	// LoggerKey is the Locals key for the request-scoped logger.
	LoggerKey = "request_logger"
)

// RequestID reuses an incoming X-Request-ID or generates one, echoes it on the
// response, and stores a logger tagged with it for handlers.
func RequestID(logger *observability.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Locals(RequestIDKey, requestID)
		c.Locals(LoggerKey, logger.WithRequestID(requestID))
		c.Set(RequestIDHeader, requestID)

		return c.Next()
	}
}

// GetRequestID retrieves the request ID from the fiber context.
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetLogger returns the request-scoped logger, or fallback when RequestID did
// not run.
func GetLogger(c *fiber.Ctx, fallback *observability.Logger) *observability.Logger {
	if l, ok := c.Locals(LoggerKey).(*observability.Logger); ok {
		return l
	}
	return fallback
}

// InFlight tracks the number of requests being served.
func InFlight(metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		metrics.IncrementActive()
		defer metrics.DecrementActive()
		return c.Next()
	}
}
