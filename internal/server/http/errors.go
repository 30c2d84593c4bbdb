package http

import (
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/gofiber/fiber/v2"
)

const msgInternal = "Internal server error"

// ValidationError is returned by request decoding when input is rejected.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string { return "validation failed" }

func (e *ValidationError) Unwrap() error { return common.ErrorValidation }

var errorStatuses = []struct {
	err     error
	status  int
	message string
}{
	{common.ErrorAlreadyExists, fiber.StatusConflict, "Email already exists"},
	{common.ErrorInvalidCredentials, fiber.StatusUnauthorized, "Invalid email or password"},
	{common.ErrorInvalidRefreshToken, fiber.StatusUnauthorized, "Invalid refresh token"},
	{common.ErrorUnauthorized, fiber.StatusUnauthorized, "Authentication required"},
	{common.ErrorForbidden, fiber.StatusForbidden, "You do not have permission to access this resource"},
	{common.ErrorNotFound, fiber.StatusNotFound, "Resource not found"},
	{common.ErrorInvalidPassword, fiber.StatusBadRequest, "Current password is incorrect"},
	{common.ErrorValidation, fiber.StatusBadRequest, "Validation failed"},
}

// statusOf maps an error to an HTTP status and a client-safe message.
func statusOf(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return fiber.StatusInternalServerError, msgInternal
}

// notFound gives ErrorNotFound a resource-specific message.
func notFound(err error, message string) error {
	if errors.Is(err, common.ErrorNotFound) {
		return fiber.NewError(fiber.StatusNotFound, message)
	}
	return err
}

// forbidden gives ErrorForbidden an operation-specific message.
func forbidden(err error, message string) error {
	if errors.Is(err, common.ErrorForbidden) {
		return fiber.NewError(fiber.StatusForbidden, message)
	}
	return err
}

func errorHandler(logger logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return respondError(c, fiber.StatusBadRequest, "Validation failed", ve.Fields)
		}

		status, message := statusOf(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error(c.UserContext(), "request failed", "error", err,
				"method", c.Method(), "path", c.Path())
		}
		return respondError(c, status, message, nil)
	}
}
