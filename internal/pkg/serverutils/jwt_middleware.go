package serverutils

import (
	"strings"

	"gardener-chat-be/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// BearerToken extracts the token from the query (browsers cannot set headers on a
// websocket handshake) or from the Authorization header.
func BearerToken(ctx *fiber.Ctx) string {
	if token := ctx.Query("token"); token != "" {
		return token
	}
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

// JwtMiddleware rejects requests without a valid token and stores the caller's
// id in the "user_id" local.
func JwtMiddleware(verifier auth.AuthVerifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		userID, err := verifier.Verify(BearerToken(ctx))
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}
		ctx.Locals("user_id", userID)
		return ctx.Next()
	}
}

// UserID returns the id stored by JwtMiddleware.
func UserID(ctx *fiber.Ctx) (string, bool) {
	userID, ok := ctx.Locals("user_id").(string)
	return userID, ok && userID != ""
}
