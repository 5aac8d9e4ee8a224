package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-core-api/internal/token"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// Locals keys populated by the auth middleware for downstream handlers.
const (
	LocalUserID    = "user_id"
	LocalUserRole  = "user_role"
	LocalUserEmail = "user_email"
)

// Protected returns a middleware that requires a valid bearer access token.
func Protected(manager *token.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := claimsFromRequest(c, manager)
		if err != nil {
			return unauthorized(c, err)
		}

		setIdentity(c, claims)
		return c.Next()
	}
}

// Optional populates the identity context when a valid token is present but
// lets anonymous requests through untouched.
func Optional(manager *token.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(c.Get(fiber.HeaderAuthorization)) == "" {
			return c.Next()
		}

		claims, err := claimsFromRequest(c, manager)
		if err != nil {
			return unauthorized(c, err)
		}

		setIdentity(c, claims)
		return c.Next()
	}
}

func claimsFromRequest(c *fiber.Ctx, manager *token.Manager) (*token.Claims, error) {
	authorization := c.Get(fiber.HeaderAuthorization)
	if authorization == "" {
		return nil, errors.New("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return nil, errors.New("invalid authorization header")
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return nil, token.ErrTokenInvalid
	}

	return manager.VerifyAccess(tokenString)
}

func setIdentity(c *fiber.Ctx, claims *token.Claims) {
	c.Locals(LocalUserID, claims.UserID)
	c.Locals(LocalUserRole, strings.ToLower(claims.Role))
	c.Locals(LocalUserEmail, claims.Email)
}

func unauthorized(c *fiber.Ctx, err error) error {
	message := "invalid token"
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		message = "token expired"
	case errors.Is(err, token.ErrTokenRevoked):
		message = "token revoked"
	case err != nil && !errors.Is(err, token.ErrTokenInvalid):
		message = err.Error()
	}
	return utils.SendError(c, fiber.StatusUnauthorized, message)
}

// UserIDFromContext extracts the authenticated user id, zero when anonymous.
func UserIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals(LocalUserID); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// UserRoleFromContext extracts the authenticated role, empty when anonymous.
func UserRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals(LocalUserRole); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}
