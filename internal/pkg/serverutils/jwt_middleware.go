package serverutils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JwtMiddleware checks a bearer token signed with secret and stores the "sub" or
// "user_id" claim in Locals("user_id").
func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}

		if uid, ok := claims["user_id"]; ok {
			ctx.Locals("user_id", uid)
		} else if sub, err := claims.GetSubject(); err == nil {
			ctx.Locals("user_id", sub)
		}
		return ctx.Next()
	}
}

// OptionalAuth is JwtMiddleware when enabled and a pass-through otherwise.
func OptionalAuth(enabled bool, secret string) fiber.Handler {
	if !enabled {
		return func(ctx *fiber.Ctx) error { return ctx.Next() }
	}
	return JwtMiddleware(secret)
}
