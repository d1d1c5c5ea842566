package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"podshorts/internal/backend"
	"podshorts/internal/validate"
)

func errorJSON(c *fiber.Ctx, status int, code, msg string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Code:    code,
		Error:   msg,
		Details: details,
	})
}

func invalidJSON(c *fiber.Ctx) error {
	return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST_INVALID_JSON", "Bad request, malformed JSON", nil)
}

// validationFailed reports field errors. With a single failing field its
// message becomes the top-level error so toast layers can show it as is.
func validationFailed(c *fiber.Ctx, fe validate.FieldErrors) error {
	msg := "Validation failed"
	if len(fe) == 1 {
		for _, m := range fe {
			msg = m
		}
	}
	return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", msg, fe)
}

// backendFailed maps backend client errors to the envelope.
func backendFailed(c *fiber.Ctx, err error) error {
	if errors.Is(err, backend.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	}
	if errors.Is(err, backend.ErrUnavailable) {
		return errorJSON(c, fiber.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "Processing service is temporarily unavailable", nil)
	}
	var se *backend.StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		return errorJSON(c, se.Code, "BACKEND_REJECTED", se.Message, nil)
	}

	loggerFrom(c).Error("backend_request_failed", "error", err)
	return errorJSON(c, fiber.StatusBadGateway, "BACKEND_ERROR", "Processing service request failed", nil)
}

func loggerFrom(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
