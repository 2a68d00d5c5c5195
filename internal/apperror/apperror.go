// Package apperror defines the error envelope every HTTP handler returns.
package apperror

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"secrets-backend/internal/permission"
)

type ErrorDetail = permission.ErrorDetail

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFound(kind, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: fiber.StatusConflict, Message: msg}
}

func InvalidPayload(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: fiber.StatusBadRequest, Message: msg}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: fiber.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: fiber.StatusForbidden, Message: msg}
}

func Validation(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  fiber.StatusUnprocessableEntity,
		Message: "Validation failed",
		Details: details,
	}
}

// Handler renders errors returned by fiber handlers. Anything that is not an
// AppError or a fiber.Error is logged and hidden behind a 500.
func Handler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Status: fiberErr.Code, Message: fiberErr.Message},
		})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
	})
}
