package serverutils

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"filings-rag-be/internal/pkg/logger"
)

// ErrorStatus maps a sentinel error to an HTTP status.
type ErrorStatus struct {
	Err  error
	Code int
}

// ErrorHandlerMiddleware renders errors returned by later handlers as the
// response envelope. Mappings are checked in order with errors.Is.
func ErrorHandlerMiddleware(log logger.ILogger, mappings ...ErrorStatus) fiber.Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err, mappings...)
		if code >= fiber.StatusInternalServerError {
			log.Error("http", "request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"status": code,
				"error":  err.Error(),
			})
		}
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

// StatusFor resolves the HTTP status of err.
func StatusFor(err error, mappings ...ErrorStatus) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var re *RequestError
	if errors.As(err, &re) {
		return fiber.StatusBadRequest
	}
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return m.Code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}
