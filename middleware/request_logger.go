package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"edio/config"
)

// RequestLogger tags every request with a uuid and emits one structured line
// when it completes. The session user, when the auth middleware has resolved
// one, is included so project operations can be traced back to an account.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := uuid.NewString()
		c.Locals("requestid", requestID)

		err := c.Next()

		statusCode := c.Response().StatusCode()
		fields := logrus.Fields{
			"request_id": requestID,
			"method":     c.Method(),
			"path":       c.OriginalURL(),
			"status":     statusCode,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.IP(),
		}
		if user, ok := CurrentUser(c); ok {
			fields["user_id"] = user.ID
		}
		entry := config.Log.WithFields(fields)

		switch {
		case err != nil:
			// The global error handler produces the response; this line keeps
			// the request context next to the failure.
			entry.WithField("error", err.Error()).Error("Request failed")
		case statusCode >= 500:
			entry.Error("Request completed")
		case statusCode >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}

		return err
	}
}
