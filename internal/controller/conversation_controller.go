package controller

import (
	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	List(ctx *fiber.Ctx) error
	Create(ctx *fiber.Ctx) error
	ListDeleted(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Restore(ctx *fiber.Ctx) error
}

type conversationController struct {
	service service.IConversationService
}

func NewConversationController(service service.IConversationService) IConversationController {
	return &conversationController{service: service}
}

func (c *conversationController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/conversations")
	h.Use(auth)
	h.Get("", c.List)
	h.Post("", c.Create)
	h.Get("/deleted", c.ListDeleted)
	h.Get("/:threadId/history", c.History)
	h.Patch("/:threadId", c.Update)
	h.Delete("/:threadId", c.Delete)
	h.Post("/:threadId/restore", c.Restore)
}

func (c *conversationController) List(ctx *fiber.Ctx) error {
	var req dto.ListConversationsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.BadRequest("Invalid query parameters")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.List(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list conversations", res))
}

func (c *conversationController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateConversationRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return serverutils.BadRequest("Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create conversation", res))
}

func (c *conversationController) ListDeleted(ctx *fiber.Ctx) error {
	res, err := c.service.ListDeleted(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list deleted conversations", res))
}

func (c *conversationController) History(ctx *fiber.Ctx) error {
	res, err := c.service.History(ctx.UserContext(), ctx.Params("threadId"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get conversation history", res))
}

func (c *conversationController) Update(ctx *fiber.Ctx) error {
	var req dto.UpdateConversationTitleRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request body")
	}
	req.ThreadId = ctx.Params("threadId")
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdateTitle(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update conversation", res))
}

func (c *conversationController) Delete(ctx *fiber.Ctx) error {
	threadID := ctx.Params("threadId")
	if err := c.service.Delete(ctx.UserContext(), threadID); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation "+threadID+" deleted successfully", fiber.Map{"thread_id": threadID}))
}

func (c *conversationController) Restore(ctx *fiber.Ctx) error {
	res, err := c.service.Restore(ctx.UserContext(), ctx.Params("threadId"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success restore conversation", res))
}
