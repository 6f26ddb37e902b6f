package serverutils

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalUserID is the fiber.Ctx local holding the authenticated user id.
const LocalUserID = "user_id"

// JwtMiddleware resolves a bearer token's user_id claim into the request
// locals. With required false, requests without a token pass through
// anonymously; a present but invalid token is always rejected.
func JwtMiddleware(secret string, required bool) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			if required {
				return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
			}
			return ctx.Next()
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}
		if uid, ok := claims["user_id"].(string); ok && uid != "" {
			ctx.Locals(LocalUserID, uid)
		}
		return ctx.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(ctx *fiber.Ctx) string {
	if v, ok := ctx.Locals(LocalUserID).(string); ok {
		return v
	}
	return ""
}
