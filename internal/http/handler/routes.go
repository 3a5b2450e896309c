package handler

import (
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"img2pdf/internal/model"
	"img2pdf/internal/service"
)

// UploadField is the repeatable multipart field carrying images.
const UploadField = "images"

type sessionRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
}

type imageResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size string `json:"size"`
}

type uploadResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id"`
	Images    []imageResponse `json:"images"`
}

type generateResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id"`
	PDFFilename string `json:"pdf_filename"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// RegisterRoutes attaches the health and conversion routes.
func RegisterRoutes(app *fiber.App, svc service.SessionService) {
	app.Get("/health", HealthCheck(svc))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Post("/upload", UploadImages(svc))
	api.Post("/generate", GeneratePDF(svc))
	api.Get("/download/:session_id", DownloadPDF(svc))
	api.Post("/cleanup", CleanupSession(svc))
}

// HealthCheck godoc
// @Summary  Readiness probe
// @Tags     health
// @Produce  json
// @Success  200 {object} map[string]string
// @Failure  503 {object} errorPayload
// @Router   /health [get]
func HealthCheck(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := svc.Healthy(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe godoc
// @Summary  Liveness probe
// @Tags     health
// @Success  200
// @Router   /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadImages godoc
// @Summary      Upload a batch of images
// @Description  Normalizes every image into the session, creating one when session_id is empty. The batch is rejected as a whole if any image fails.
// @Tags         convert
// @Accept       multipart/form-data
// @Produce      json
// @Param        images      formData  file    true   "image files, repeatable"
// @Param        session_id  formData  string  false  "existing session to append to"
// @Success      200  {object}  uploadResponse
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Router       /api/upload [post]
func UploadImages(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FORM", "multipart form expected")
		}
		headers := form.File[UploadField]
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "NO_FILES", "no files uploaded")
		}
		var sessionID string
		if v := form.Value["session_id"]; len(v) > 0 {
			sessionID = v[0]
		}

		uploads := make([]model.Upload, len(headers))
		for i, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file "+fh.Filename)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot read uploaded file "+fh.Filename)
			}
			uploads[i] = model.Upload{Name: fh.Filename, Data: data}
		}

		res, err := svc.Ingest(c.UserContext(), sessionID, uploads)
		if err != nil {
			return writeServiceError(c, err)
		}

		images := make([]imageResponse, len(res.Images))
		for i, img := range res.Images {
			images[i] = imageResponse{ID: img.ID, Name: img.Name, Size: img.Size}
		}
		return c.JSON(uploadResponse{Success: true, SessionID: res.SessionID, Images: images})
	}
}

// GeneratePDF godoc
// @Summary  Assemble the session's images into a PDF
// @Tags     convert
// @Accept   json
// @Produce  json
// @Param    body  body      sessionRequest  true  "session"
// @Success  200   {object}  generateResponse
// @Failure  400   {object}  errorPayload
// @Failure  404   {object}  errorPayload
// @Failure  409   {object}  errorPayload
// @Failure  413   {object}  errorPayload
// @Failure  500   {object}  errorPayload
// @Router   /api/generate [post]
func GeneratePDF(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req sessionRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if req.SessionID == "" {
			return writeError(c, fiber.StatusBadRequest, "SESSION_ID_REQUIRED", "session_id is required")
		}

		res, err := svc.Generate(c.UserContext(), req.SessionID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(generateResponse{Success: true, SessionID: res.SessionID, PDFFilename: res.DocumentName})
	}
}

// DownloadPDF godoc
// @Summary      Download the generated PDF once
// @Description  The session and all its files are removed after the document is handed over.
// @Tags         convert
// @Produce      application/pdf
// @Param        session_id  path  string  true  "session id"
// @Success      200
// @Failure      404  {object}  errorPayload
// @Router       /api/download/{session_id} [get]
func DownloadPDF(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// The session's files are removed as soon as send returns, before fasthttp
		// writes the response, so the document is streamed from a spool copy.
		err := svc.Retrieve(c.UserContext(), c.Params("session_id"), func(_ context.Context, d service.Delivery) error {
			body, size, err := spool(d.Body)
			if err != nil {
				return err
			}
			c.Attachment(d.Name)
			c.Set(fiber.HeaderContentType, d.ContentType)
			return c.Status(fiber.StatusOK).SendStream(body, int(size))
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return nil
	}
}

// CleanupSession godoc
// @Summary  Discard a session
// @Description  Always succeeds, also for unknown or already removed sessions.
// @Tags     convert
// @Accept   json
// @Produce  json
// @Param    body  body      sessionRequest  true  "session"
// @Success  200   {object}  successResponse
// @Router   /api/cleanup [post]
func CleanupSession(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req sessionRequest
		_ = c.BodyParser(&req)
		svc.Cleanup(c.UserContext(), req.SessionID)
		return c.JSON(successResponse{Success: true})
	}
}
