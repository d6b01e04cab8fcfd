package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const userKey = "user"

// accessLog writes one line per request after the error handler has set the
// final status.
func accessLog(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if u, ok := c.Locals(userKey).(*models.User); ok {
			fields = append(fields, zap.String("user", u.Username))
		}
		logger.Info("Request handled", fields...)

		return nil
	}
}

func traceRequests(tracer trace.Tracer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
		return err
	}
}

// authenticate resolves HTTP Basic credentials to a user stored under the
// "user" local. With authentication disabled it passes every request.
func (h *handler) authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !h.AuthEnabled {
			return c.Next()
		}

		username, password, ok := parseBasicAuth(c.Get(fiber.HeaderAuthorization))
		if !ok {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="shop-orders"`)
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}

		u, err := h.Auth.Authenticate(c.UserContext(), username, password)
		if err != nil {
			if errors.Is(err, database.ErrInvalidCredentials) {
				h.Logger.Warn("Authentication failed",
					zap.String("username", username),
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
				)
				c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="shop-orders"`)
			}
			return err
		}

		c.Locals(userKey, u)
		return c.Next()
	}
}

func (h *handler) requireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !h.AuthEnabled {
			return c.Next()
		}

		u, ok := c.Locals(userKey).(*models.User)
		if !ok || !u.HasRole(roles...) {
			h.Logger.Warn("Access denied",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
			)
			return fiber.NewError(fiber.StatusForbidden, "Access denied")
		}
		return c.Next()
	}
}

func parseBasicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}

	username, password, ok = strings.Cut(string(decoded), ":")
	return username, password, ok
}
