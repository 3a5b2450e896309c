package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"img2pdf/internal/assembler"
	"img2pdf/internal/http/middleware"
	"img2pdf/internal/imaging"
	"img2pdf/internal/service"
)

// errorPayload is the body of every error response.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes the standard error body. message must be safe to show to clients.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	})
}

// writeServiceError translates a service error into a status code and a
// client-safe message. Unexpected errors never leak their text.
func writeServiceError(c *fiber.Ctx, err error) error {
	var batch *service.BatchError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return writeError(c, fiber.StatusNotFound, "SESSION_NOT_FOUND", "session not found or expired")
	case errors.Is(err, service.ErrDocumentNotReady):
		return writeError(c, fiber.StatusNotFound, "DOCUMENT_NOT_READY", "document has not been generated")
	case errors.Is(err, service.ErrSessionIDRequired):
		return writeError(c, fiber.StatusBadRequest, "SESSION_ID_REQUIRED", "session_id is required")
	case errors.Is(err, service.ErrNoFiles):
		return writeError(c, fiber.StatusBadRequest, "NO_FILES", "no files uploaded")
	case errors.Is(err, service.ErrTooManyFiles):
		return writeError(c, fiber.StatusBadRequest, "TOO_MANY_FILES", "too many files in one upload")
	case errors.Is(err, service.ErrNoImages):
		return writeError(c, fiber.StatusBadRequest, "NO_IMAGES", "no images to convert")
	case errors.Is(err, service.ErrSessionChanged):
		return writeError(c, fiber.StatusConflict, "SESSION_CHANGED", "images were added during generation, generate again")
	case errors.As(err, &batch):
		return writeBatchError(c, batch)
	case errors.Is(err, assembler.ErrDocumentTooLarge):
		return writeError(c, fiber.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", "document exceeds size limits")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeBatchError(c *fiber.Ctx, batch *service.BatchError) error {
	prefix := "failed to process " + batch.Name + ": "
	switch {
	case errors.Is(batch.Err, imaging.ErrImageTooLarge), errors.Is(batch.Err, service.ErrFileTooLarge):
		return writeError(c, fiber.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", prefix+"image too large")
	case errors.Is(batch.Err, imaging.ErrDecode):
		return writeError(c, fiber.StatusBadRequest, "INVALID_IMAGE", prefix+"unsupported or corrupt image")
	case errors.Is(batch.Err, imaging.ErrConversion):
		return writeError(c, fiber.StatusBadRequest, "INVALID_IMAGE", prefix+"image conversion failed")
	case errors.Is(batch.Err, context.DeadlineExceeded):
		return writeError(c, fiber.StatusBadRequest, "INVALID_IMAGE", prefix+"processing timed out")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", prefix+"internal server error")
	}
}

// ErrorHandler renders errors that escape handlers, including fiber's own.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "REQUEST_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
