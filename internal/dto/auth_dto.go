package dto

import (
	"time"

	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/token"
)

// RegisterRequest creates a new account plus its directory record.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"required,min=2,max=255"`
	Role     string `json:"role" validate:"required,oneof=student teacher parent admin"`

	// Role-specific fields; validated by the service against Role.
	NIS        string `json:"nis,omitempty" validate:"omitempty,max=64"`
	ClassName  string `json:"class_name,omitempty" validate:"omitempty,max=128"`
	EmployeeID string `json:"employee_id,omitempty" validate:"omitempty,max=64"`
	Subject    string `json:"subject,omitempty" validate:"omitempty,max=128"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// LoginRequest authenticates a user for a specific role. A role mismatch is
// answered exactly like a wrong password.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=student teacher parent admin"`
}

// RefreshRequest rotates a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LogoutRequest revokes a single refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UpdateProfileRequest patches mutable profile fields.
type UpdateProfileRequest struct {
	FullName string `json:"full_name,omitempty" validate:"omitempty,min=2,max=255"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// UserResponse is the public shape of an account.
type UserResponse struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	PhotoURL      string     `json:"photo_url,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewUserResponse maps a model onto the public shape.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		FullName:      user.FullName,
		Role:          user.Role,
		Status:        user.Status,
		EmailVerified: user.EmailVerified,
		PhotoURL:      user.PhotoURL,
		ExternalID:    user.ExternalID,
		LastLogin:     user.LastLogin,
		CreatedAt:     user.CreatedAt,
	}
}

// LoginResponse bundles the user with a fresh token pair.
type LoginResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// NewLoginResponse builds the login payload.
func NewLoginResponse(user models.User, pair token.Pair) LoginResponse {
	return LoginResponse{
		User:         NewUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
}

// TokenResponse carries a rotated pair.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}
