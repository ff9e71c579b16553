package handler

import (
	"ai-docchat-be/internal/pkg/logger"
	internalWS "ai-docchat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

const maxThreadIDLength = 128

// ThreadEventHandler serves the WebSocket feed of a thread's turn lifecycle events.
type ThreadEventHandler struct {
	hub         *internalWS.Hub
	authEnabled bool
	jwtSecret   string
	logger      logger.ILogger
}

func NewThreadEventHandler(hub *internalWS.Hub, authEnabled bool, jwtSecret string, log logger.ILogger) *ThreadEventHandler {
	return &ThreadEventHandler{
		hub:         hub,
		authEnabled: authEnabled,
		jwtSecret:   jwtSecret,
		logger:      log,
	}
}

// ServeWs handles websocket requests from the peer.
func (h *ThreadEventHandler) ServeWs(c *fiber.Ctx) error {
	threadID := c.Params("threadId")
	if threadID == "" || len(threadID) > maxThreadIDLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid thread id"})
	}

	if h.authEnabled {
		// Browsers cannot set headers on a WebSocket handshake, so the query wins.
		tokenStr := c.Query("token")
		if tokenStr == "" {
			authHeader := c.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				tokenStr = authHeader[7:]
			}
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			h.logger.Warn("ThreadEventHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ThreadEventHandler", "Starting WebSocket session", map[string]interface{}{"thread_id": threadID})
			internalWS.ServeWs(h.hub, conn, threadID)
			h.logger.Info("ThreadEventHandler", "WebSocket session ended", map[string]interface{}{"thread_id": threadID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *ThreadEventHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws/threads/:threadId", h.ServeWs)
}
