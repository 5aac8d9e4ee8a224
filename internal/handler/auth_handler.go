package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/service"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// AuthHandler exposes the authentication and profile routes.
type AuthHandler struct {
	auth service.AuthService
}

// NewAuthHandler constructs the auth handler.
func NewAuthHandler(auth service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.auth.Register(c.Context(), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "registration successful", user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.auth.Login(c.Context(), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "login successful", resp)
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.RefreshToken == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "refresh token is required")
	}

	pair, err := h.auth.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "token refreshed", pair)
}

// Logout handles POST /api/auth/logout (revokes one refresh token).
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.RefreshToken == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "refresh token is required")
	}

	if err := h.auth.Logout(c.Context(), req.RefreshToken); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "logged out", nil)
}

// LogoutAll handles POST /api/auth/logout-all (revokes every device).
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID := middleware.UserIDFromContext(c)
	if err := h.auth.LogoutAll(c.Context(), userID); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "logged out everywhere", nil)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.auth.Me(c.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "profile retrieved", user)
}

// UpdateProfile handles PUT /api/auth/profile.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.auth.UpdateProfile(c.Context(), middleware.UserIDFromContext(c), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "profile updated", user)
}

// UploadPhoto handles POST /api/auth/profile/photo.
func (h *AuthHandler) UploadPhoto(c *fiber.Ctx) error {
	file, err := c.FormFile("photo")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "photo file is required")
	}

	user, err := h.auth.UploadPhoto(c.Context(), middleware.UserIDFromContext(c), file)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "photo uploaded", user)
}
