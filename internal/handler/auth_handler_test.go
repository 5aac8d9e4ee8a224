package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/service"
	"github.com/noah-isme/sma-core-api/internal/utils"
)

// stubAuthService returns canned answers so handler tests exercise only the
// HTTP mapping.
type stubAuthService struct {
	user  dto.UserResponse
	login dto.LoginResponse
	pair  dto.TokenResponse
	err   error
}

func (s *stubAuthService) Register(context.Context, dto.RegisterRequest) (dto.UserResponse, error) {
	return s.user, s.err
}

func (s *stubAuthService) Login(context.Context, dto.LoginRequest) (dto.LoginResponse, error) {
	return s.login, s.err
}

func (s *stubAuthService) Refresh(context.Context, string) (dto.TokenResponse, error) {
	return s.pair, s.err
}

func (s *stubAuthService) Logout(context.Context, string) error  { return s.err }
func (s *stubAuthService) LogoutAll(context.Context, uint) error { return s.err }

func (s *stubAuthService) Me(context.Context, uint) (dto.UserResponse, error) {
	return s.user, s.err
}

func (s *stubAuthService) UpdateProfile(context.Context, uint, dto.UpdateProfileRequest) (dto.UserResponse, error) {
	return s.user, s.err
}

func (s *stubAuthService) UploadPhoto(context.Context, uint, *multipart.FileHeader) (dto.UserResponse, error) {
	return s.user, s.err
}

func newAuthApp(stub *stubAuthService) *fiber.App {
	app := fiber.New()
	h := NewAuthHandler(stub)
	app.Post("/api/auth/register", h.Register)
	app.Post("/api/auth/login", h.Login)
	app.Post("/api/auth/refresh", h.Refresh)
	app.Post("/api/auth/logout", h.Logout)
	app.Get("/api/auth/me", func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(1))
		return h.Me(c)
	})
	return app
}

func decodeEnvelope(t *testing.T, resp *http.Response) utils.APIResponse {
	t.Helper()

	var envelope utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRegisterReturns201Envelope(t *testing.T) {
	stub := &stubAuthService{user: dto.UserResponse{ID: 1, Email: "s@demo.com", Role: models.RoleStudent}}
	app := newAuthApp(stub)

	resp := postJSON(t, app, "/api/auth/register", dto.RegisterRequest{
		Email: "s@demo.com", Password: "password123", FullName: "Student", Role: models.RoleStudent,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	require.True(t, envelope.Success)
	require.Equal(t, "registration successful", envelope.Message)
}

func TestRegisterMalformedBodyIs400(t *testing.T) {
	app := newAuthApp(&stubAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader([]byte("{not json")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.False(t, decodeEnvelope(t, resp).Success)
}

func TestLoginInvalidCredentialsIs401(t *testing.T) {
	app := newAuthApp(&stubAuthService{err: service.ErrInvalidCredentials})

	resp := postJSON(t, app, "/api/auth/login", dto.LoginRequest{
		Email: "s@demo.com", Password: "wrong", Role: models.RoleStudent,
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	require.False(t, envelope.Success)
	require.Equal(t, "invalid credentials", envelope.Error)
}

func TestLoginSuspendedIs403(t *testing.T) {
	app := newAuthApp(&stubAuthService{err: service.ErrAccountSuspended})

	resp := postJSON(t, app, "/api/auth/login", dto.LoginRequest{
		Email: "s@demo.com", Password: "pass", Role: models.RoleStudent,
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRegisterEmailTakenIs409(t *testing.T) {
	app := newAuthApp(&stubAuthService{err: service.ErrEmailTaken})

	resp := postJSON(t, app, "/api/auth/register", dto.RegisterRequest{
		Email: "dup@demo.com", Password: "password123", FullName: "Dup", Role: models.RoleStudent,
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestRefreshMissingTokenIs400(t *testing.T) {
	app := newAuthApp(&stubAuthService{})

	resp := postJSON(t, app, "/api/auth/refresh", dto.RefreshRequest{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMeReturnsProfile(t *testing.T) {
	stub := &stubAuthService{user: dto.UserResponse{ID: 1, Email: "s@demo.com"}}
	app := newAuthApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	require.True(t, envelope.Success)
}
