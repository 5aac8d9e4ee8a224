package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/service"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// TutorHandler exposes the AI tutor routes.
type TutorHandler struct {
	tutor service.TutorService
}

// NewTutorHandler constructs the tutor handler.
func NewTutorHandler(tutor service.TutorService) *TutorHandler {
	return &TutorHandler{tutor: tutor}
}

// Chat handles POST /api/ai/chat.
func (h *TutorHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.tutor.Chat(c.Context(),
		middleware.UserIDFromContext(c), middleware.UserRoleFromContext(c), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "chat completed", resp)
}

// History handles GET /api/ai/history/:studentId.
func (h *TutorHandler) History(c *fiber.Ctx) error {
	studentID, err := studentIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	history, err := h.tutor.History(c.Context(), studentID, limit, offset)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "history retrieved", history)
}

// Stats handles GET /api/ai/stats/:studentId.
func (h *TutorHandler) Stats(c *fiber.Ctx) error {
	studentID, err := studentIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	stats, err := h.tutor.Stats(c.Context(), studentID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "stats retrieved", stats)
}

// Suggestions handles GET /api/ai/suggestions/:studentId.
func (h *TutorHandler) Suggestions(c *fiber.Ctx) error {
	studentID, err := studentIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	resp, err := h.tutor.Suggestions(c.Context(), studentID, c.Query("subject"))
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "suggestions retrieved", resp)
}

// Performance handles POST /api/ai/analyze-performance/:studentId.
func (h *TutorHandler) Performance(c *fiber.Ctx) error {
	studentID, err := studentIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	resp, err := h.tutor.AnalyzePerformance(c.Context(), studentID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "performance analyzed", resp)
}

// UpdatePreferences handles PUT /api/ai/preferences/:studentId.
func (h *TutorHandler) UpdatePreferences(c *fiber.Ctx) error {
	studentID, err := studentIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	var req dto.PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.tutor.UpdatePreferences(c.Context(), studentID, req); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "preferences updated", nil)
}

// GrantApproval handles POST /api/ai/approvals (admin only).
func (h *TutorHandler) GrantApproval(c *fiber.Ctx) error {
	var req dto.ApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	approval, err := h.tutor.GrantApproval(c.Context(), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "approval granted", approval)
}

// RevokeApproval handles DELETE /api/ai/approvals/:parentId/:studentId.
func (h *TutorHandler) RevokeApproval(c *fiber.Ctx) error {
	parentID, err := uintParam(c, "parentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid parent id")
	}
	studentID, err := uintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	if err := h.tutor.RevokeApproval(c.Context(), parentID, studentID, c.Query("scope")); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "approval revoked", nil)
}

// Health handles GET /api/ai/health.
func (h *TutorHandler) Health(c *fiber.Ctx) error {
	if err := h.tutor.Health(c.Context()); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "tutor provider healthy", nil)
}

func studentIDParam(c *fiber.Ctx) (uint, error) {
	return uintParam(c, "studentId")
}

func uintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
