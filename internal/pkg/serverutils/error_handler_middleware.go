package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"helpdesk-chat-core/internal/service"
)

// ErrorHandlerMiddleware maps service errors that escape the handlers onto
// consistent JSON responses.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(fiber.Map{"message": fiberErr.Message})
		}

		switch {
		case errors.Is(err, service.ErrRequestNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, service.ErrRequestSolved), errors.Is(err, service.ErrEmptyMessage),
			errors.Is(err, service.ErrContentTooLong):
			return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": err.Error()})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error"})
		}
	}
}
