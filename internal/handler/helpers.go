package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/service"
	"github.com/noah-isme/sma-core-api/internal/token"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// sendServiceError translates service and infrastructure errors onto the
// response envelope with the right status code.
func sendServiceError(c *fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return utils.SendError(c, fiber.StatusBadRequest, validationMessage(validationErrs))
	}

	switch {
	case errors.Is(err, service.ErrApprovalInvalid):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, token.ErrTokenInvalid),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenRevoked):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountSuspended),
		errors.Is(err, service.ErrStudentAccess),
		errors.Is(err, service.ErrApprovalMissing),
		errors.Is(err, directory.ErrPermission):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, directory.ErrConflict):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		return utils.SendError(c, fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrContentPolicy),
		errors.Is(err, service.ErrPhotoType),
		errors.Is(err, service.ErrPhotoTooLarge):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrTutorUnhealthy):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, directory.ErrTimeout):
		return utils.SendError(c, fiber.StatusGatewayTimeout, "directory request timed out")
	case errors.Is(err, directory.ErrUpstream):
		return utils.SendError(c, fiber.StatusBadGateway, "directory unavailable")
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	first := errs[0]
	msg := "validation failed on field " + first.Field() + ": " + first.Tag()
	if first.Param() != "" {
		msg += "=" + first.Param()
	}
	return msg
}
