package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/service"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// StudentHandler exposes the directory-backed student routes.
type StudentHandler struct {
	students service.StudentService
}

// NewStudentHandler constructs the student handler.
func NewStudentHandler(students service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List handles GET /api/students.
func (h *StudentHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	page, err := h.students.List(c.Context(), limit, offset)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "students retrieved", page)
}

// Get handles GET /api/students/:externalId. Ownership is enforced by the
// service: students see only themselves, parents only linked children.
func (h *StudentHandler) Get(c *fiber.Ctx) error {
	student, err := h.students.Get(c.Context(),
		middleware.UserIDFromContext(c), middleware.UserRoleFromContext(c), c.Params("externalId"))
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "student retrieved", student)
}

// Update handles PUT /api/students/:externalId.
func (h *StudentHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	student, err := h.students.Update(c.Context(), c.Params("externalId"), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "student updated", student)
}

// Delete handles DELETE /api/students/:externalId (soft delete).
func (h *StudentHandler) Delete(c *fiber.Ctx) error {
	if err := h.students.Delete(c.Context(), c.Params("externalId")); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "student deleted", nil)
}
