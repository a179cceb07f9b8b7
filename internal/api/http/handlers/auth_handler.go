package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/project-service/internal/api/dto"
	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/service"
	apperrors "github.com/spec-kit/project-service/pkg/util/errorutil"
)

// AuthHandler exposes login and principal endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	cache  service.MembershipInvalidator
	logger *zap.Logger
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cache service.MembershipInvalidator, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: authService, cache: cache, logger: logger}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result := h.auth.Login(c.UserContext(), req.Email, req.Password)
	c.Set(fiber.HeaderCacheControl, "no-store")
	if err := result.Err(); err != nil {
		return err
	}
	return c.JSON(dto.NewLoginResponse(result.Token))
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.NewPrincipalResponse(claims)})
}

// InvalidateMemberships handles DELETE /auth/memberships/cache/:userId.
func (h *AuthHandler) InvalidateMemberships(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return apperrors.NewValidationError("userId required", nil)
	}
	if err := h.cache.Invalidate(c.UserContext(), userID); err != nil {
		return err
	}

	if claims, ok := auth.PrincipalFromContext(c); ok {
		h.logger.Info("membership cache invalidated", zap.String("user_id", userID), zap.String("by", claims.UserID))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
