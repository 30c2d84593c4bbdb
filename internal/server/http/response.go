package http

import "github.com/gofiber/fiber/v2"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// envelope is the shape of every JSON response.
type envelope struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{Status: statusSuccess, Message: message, Data: data})
}

func respondError(c *fiber.Ctx, status int, message string, fields []FieldError) error {
	return c.Status(status).JSON(envelope{Status: statusError, Message: message, Errors: fields})
}
