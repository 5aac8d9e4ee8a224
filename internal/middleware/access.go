package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// RelationshipChecker answers ownership questions the middleware cannot decide
// from claims alone: whether a parent or teacher is linked to a student,
// whether a user account is active, and whether its email is verified.
type RelationshipChecker interface {
	IsParentOf(ctx context.Context, parentID, studentID uint) (bool, error)
	IsTeacherOf(ctx context.Context, teacherID, studentID uint) (bool, error)
	AccountStatus(ctx context.Context, userID uint) (status string, emailVerified bool, err error)
}

// RequireStudentAccess guards resource-scoped routes carrying a student id
// path parameter. The authenticated identity must be the student themselves,
// a linked parent, a linked teacher, or an admin.
func RequireStudentAccess(param string, checker RelationshipChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserIDFromContext(c)
		if userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		studentID, err := parseUintParam(c, param)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
		}

		switch UserRoleFromContext(c) {
		case models.RoleAdmin:
			return c.Next()
		case models.RoleStudent:
			if userID == studentID {
				return c.Next()
			}
		case models.RoleParent:
			linked, err := checker.IsParentOf(c.Context(), userID, studentID)
			if err != nil {
				return utils.SendError(c, fiber.StatusInternalServerError, "relationship lookup failed")
			}
			if linked {
				return c.Next()
			}
		case models.RoleTeacher:
			linked, err := checker.IsTeacherOf(c.Context(), userID, studentID)
			if err != nil {
				return utils.SendError(c, fiber.StatusInternalServerError, "relationship lookup failed")
			}
			if linked {
				return c.Next()
			}
		}

		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
}

// RequireActive denies suspended, pending, and inactive accounts.
func RequireActive(checker RelationshipChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserIDFromContext(c)
		if userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		status, _, err := checker.AccountStatus(c.Context(), userID)
		if err != nil {
			return utils.SendError(c, fiber.StatusInternalServerError, "account lookup failed")
		}
		if status != models.StatusActive {
			return utils.SendError(c, fiber.StatusForbidden, "account suspended")
		}

		return c.Next()
	}
}

// RequireVerifiedEmail denies accounts that have not confirmed their address.
func RequireVerifiedEmail(checker RelationshipChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserIDFromContext(c)
		if userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		_, verified, err := checker.AccountStatus(c.Context(), userID)
		if err != nil {
			return utils.SendError(c, fiber.StatusInternalServerError, "account lookup failed")
		}
		if !verified {
			return utils.SendError(c, fiber.StatusForbidden, "email not verified")
		}

		return c.Next()
	}
}

func parseUintParam(c *fiber.Ctx, param string) (uint, error) {
	raw := strings.TrimSpace(c.Params(param))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
