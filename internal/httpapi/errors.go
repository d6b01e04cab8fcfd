package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/database"
	"go.uber.org/zap"
)

const genericErrorMessage = "Something went wrong. Please try again."

type errorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrOrderNotInProgress):
		return fiber.StatusNotAcceptable
	case errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidProduct),
		errors.Is(err, database.ErrInvalidUser),
		errors.Is(err, database.ErrInvalidRole):
		return fiber.StatusBadRequest
	case errors.Is(err, database.ErrOptimisticLockFailed),
		errors.Is(err, database.ErrUserExists):
		return fiber.StatusConflict
	case errors.Is(err, database.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusFor(err)

		message := err.Error()
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			message = genericErrorMessage
		}

		return c.Status(status).JSON(errorBody{
			Timestamp: time.Now().UTC(),
			Message:   message,
			Details:   "uri=" + c.Path(),
		})
	}
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}
