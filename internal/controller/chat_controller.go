package controller

import (
	"bufio"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/service"
	"ai-docchat-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Chat(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	logger  logger.ILogger
}

func NewChatController(service service.IChatService, log logger.ILogger) IChatController {
	return &chatController{service: service, logger: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/chat")
	h.Use(auth)
	h.Post("", c.Chat)
	h.Post("/:threadId/cancel", c.Cancel)
}

// Chat streams one turn as Server-Sent Events. A failed write means the client left;
// the turn is cancelled so its partial answer is never saved.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	turn, err := c.service.StartTurn(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		enc := stream.NewEncoder(w)
		for ev := range turn.Events() {
			if err := enc.Encode(ev); err != nil {
				c.logger.Info("CHAT_CONTROLLER", "Client disconnected, cancelling turn", map[string]interface{}{
					"thread_id": turn.ThreadID,
					"error":     err.Error(),
				})
				turn.Cancel()
				for range turn.Events() {
				}
				return
			}
		}
	})
	return nil
}

func (c *chatController) Cancel(ctx *fiber.Ctx) error {
	threadID := ctx.Params("threadId")
	cancelled := c.service.Cancel(ctx.UserContext(), threadID)
	return ctx.JSON(serverutils.SuccessResponse("Cancel requested", dto.CancelTurnResponse{
		ThreadId:  threadID,
		Cancelled: cancelled,
	}))
}
