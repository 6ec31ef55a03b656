package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-gate/backend/internal/auth"
	"github.com/nft-gate/backend/internal/http/dto"
	"github.com/nft-gate/backend/internal/rbac"
	"go.uber.org/zap"
)

const (
	CtxSubject = "subject"
	CtxScopes  = "scopes"
)

func AuthMiddleware(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(secret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid or expired token"})
		}

		c.Locals(CtxSubject, claims.Subject)
		c.Locals(CtxScopes, claims.Scopes)

		return c.Next()
	}
}

func GetSubject(c *fiber.Ctx) string {
	s, _ := c.Locals(CtxSubject).(string)
	return s
}

func GetScopes(c *fiber.Ctx) []string {
	s, _ := c.Locals(CtxScopes).([]string)
	return s
}

// RequirePermission rejects callers whose scopes do not grant permission.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.Allowed(GetScopes(c), permission) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "insufficient scope"})
		}
		return c.Next()
	}
}
