package controller

import (
	"io"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IIngestController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Ingest(ctx *fiber.Ctx) error
	IngestDocuments(ctx *fiber.Ctx) error
}

type ingestController struct {
	service service.IIngestService
}

func NewIngestController(service service.IIngestService) IIngestController {
	return &ingestController{service: service}
}

func (c *ingestController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/ingest")
	h.Use(auth)
	h.Post("", c.Ingest)
	h.Post("/documents", c.IngestDocuments)
}

// Ingest checks, in order: file type, size, config JSON, thread id.
func (c *ingestController) Ingest(ctx *fiber.Ctx) error {
	file, err := ctx.FormFile("file")
	if err != nil {
		return serverutils.BadRequest("A PDF file is required in field 'file'")
	}
	if err := c.service.CheckUpload(file.Filename, file.Size); err != nil {
		return err
	}

	cfg, err := dto.ParseRunConfig(ctx.FormValue("config"))
	if err != nil {
		return serverutils.BadRequest("Invalid config JSON")
	}

	threadID := ctx.FormValue("threadId")
	if len(threadID) > 128 {
		return serverutils.BadRequest("threadId must be at most 128 characters")
	}

	f, err := file.Open()
	if err != nil {
		return serverutils.Internal("Failed to read upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return serverutils.Internal("Failed to read upload", err)
	}

	res, err := c.service.IngestPDF(ctx.UserContext(), threadID, file.Filename, data, cfg.Configurable)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *ingestController) IngestDocuments(ctx *fiber.Ctx) error {
	var req dto.IngestDocumentsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.IngestDocuments(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}
