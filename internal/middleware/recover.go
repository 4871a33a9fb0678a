package middleware

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
)

const sentryHubKey = "sentry_hub"

// InitSentry initializes the Sentry SDK. It is a no-op without a DSN.
func InitSentry(cfg config.SentryConfig, environment, release string) error {
	if !cfg.Enabled() {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return nil
}

// FlushSentry flushes any buffered events to Sentry
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// SentryMiddleware attaches a per-request Sentry hub to locals.
func SentryMiddleware(enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enabled {
			return c.Next()
		}

		hub := sentry.CurrentHub().Clone()
		setSentryRequestContext(hub, c)
		hub.Scope().SetTag("request_id", GetRequestID(c))
		c.Locals(sentryHubKey, hub)

		return c.Next()
	}
}

// Recover turns panics into 500 responses, logging the stack and
// reporting to Sentry when a hub is attached.
func Recover(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			stack := debug.Stack()
			panicErr, ok := r.(error)
			if !ok {
				panicErr = fmt.Errorf("%v", r)
			}

			logger.Error("panic recovered",
				zap.Error(panicErr),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("stack", string(stack)),
				zap.String("request_id", GetRequestID(c)),
			)

			if hub, ok := c.Locals(sentryHubKey).(*sentry.Hub); ok && hub != nil {
				hub.Scope().SetExtra("stack_trace", string(stack))
				hub.Scope().SetLevel(sentry.LevelFatal)
				if eventID := hub.RecoverWithContext(c.Context(), r); eventID != nil {
					logger.Info("panic reported to Sentry", zap.String("event_id", string(*eventID)))
				}
			}

			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":      "Internal Server Error",
				"message":    "An unexpected error occurred",
				"request_id": GetRequestID(c),
			})
		}()

		return c.Next()
	}
}

// CaptureError reports an error to Sentry from a Fiber context
func CaptureError(c *fiber.Ctx, err error) {
	hub, ok := c.Locals(sentryHubKey).(*sentry.Hub)
	if !ok || hub == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("path", utils.CopyString(c.Path()))
		scope.SetExtra("method", utils.CopyString(c.Method()))
		hub.CaptureException(err)
	})
}

func setSentryRequestContext(hub *sentry.Hub, c *fiber.Ctx) {
	hub.Scope().SetContext("Request", map[string]interface{}{
		"url":          utils.CopyString(c.OriginalURL()),
		"method":       utils.CopyString(c.Method()),
		"query_string": string(c.Request().URI().QueryString()),
		"remote_addr":  utils.CopyString(c.IP()),
	})
}
