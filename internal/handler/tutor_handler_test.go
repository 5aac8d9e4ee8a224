package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/repository"
	"github.com/noah-isme/sma-core-api/internal/service"
)

type stubTutorService struct {
	chat    dto.ChatResponse
	history []dto.InteractionResponse
	err     error
}

func (s *stubTutorService) Chat(context.Context, uint, string, dto.ChatRequest) (dto.ChatResponse, error) {
	return s.chat, s.err
}

func (s *stubTutorService) History(context.Context, uint, int, int) ([]dto.InteractionResponse, error) {
	return s.history, s.err
}

func (s *stubTutorService) Stats(context.Context, uint) (repository.InteractionStats, error) {
	return repository.InteractionStats{}, s.err
}

func (s *stubTutorService) Suggestions(context.Context, uint, string) (dto.SuggestionsResponse, error) {
	return dto.SuggestionsResponse{}, s.err
}

func (s *stubTutorService) AnalyzePerformance(context.Context, uint) (dto.PerformanceResponse, error) {
	return dto.PerformanceResponse{}, s.err
}

func (s *stubTutorService) UpdatePreferences(context.Context, uint, dto.PreferencesRequest) error {
	return s.err
}

func (s *stubTutorService) GrantApproval(_ context.Context, req dto.ApprovalRequest) (dto.ApprovalResponse, error) {
	if s.err != nil {
		return dto.ApprovalResponse{}, s.err
	}
	return dto.ApprovalResponse{
		ID: 1, ParentID: req.ParentID, StudentID: req.StudentID, Scope: models.ApprovalScopeAITutor,
	}, nil
}

func (s *stubTutorService) RevokeApproval(context.Context, uint, uint, string) error {
	return s.err
}

func (s *stubTutorService) Health(context.Context) error { return s.err }

func newTutorApp(stub *stubTutorService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(1))
		c.Locals(middleware.LocalUserRole, models.RoleStudent)
		return c.Next()
	})
	h := NewTutorHandler(stub)
	app.Post("/api/ai/chat", h.Chat)
	app.Get("/api/ai/history/:studentId", h.History)
	app.Post("/api/ai/analyze-performance/:studentId", h.Performance)
	app.Post("/api/ai/approvals", h.GrantApproval)
	app.Delete("/api/ai/approvals/:parentId/:studentId", h.RevokeApproval)
	app.Get("/api/ai/health", h.Health)
	return app
}

func TestChatQuotaExceededIs429(t *testing.T) {
	app := newTutorApp(&stubTutorService{err: service.ErrQuotaExceeded})

	resp := postJSON(t, app, "/api/ai/chat", dto.ChatRequest{Message: "hello"})
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.False(t, decodeEnvelope(t, resp).Success)
}

func TestChatContentPolicyIs422(t *testing.T) {
	app := newTutorApp(&stubTutorService{err: service.ErrContentPolicy})

	resp := postJSON(t, app, "/api/ai/chat", dto.ChatRequest{Message: "hello"})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestChatAccessDeniedIs403(t *testing.T) {
	app := newTutorApp(&stubTutorService{err: service.ErrStudentAccess})

	resp := postJSON(t, app, "/api/ai/chat", dto.ChatRequest{Message: "hello", StudentID: 99})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestChatSuccessEnvelope(t *testing.T) {
	app := newTutorApp(&stubTutorService{chat: dto.ChatResponse{Reply: "An answer", InteractionID: 12}})

	resp := postJSON(t, app, "/api/ai/chat", dto.ChatRequest{Message: "hello"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	require.True(t, envelope.Success)
	require.Equal(t, "chat completed", envelope.Message)
}

func TestHistoryBadStudentIDIs400(t *testing.T) {
	app := newTutorApp(&stubTutorService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ai/history/abc", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzePerformanceAnswersOnPost(t *testing.T) {
	app := newTutorApp(&stubTutorService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/ai/analyze-performance/7", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "performance analyzed", decodeEnvelope(t, resp).Message)
}

func TestGrantApprovalReturns201(t *testing.T) {
	app := newTutorApp(&stubTutorService{})

	resp := postJSON(t, app, "/api/ai/approvals", dto.ApprovalRequest{ParentID: 3, StudentID: 7})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.True(t, decodeEnvelope(t, resp).Success)
}

func TestRevokeApprovalBadParamIs400(t *testing.T) {
	app := newTutorApp(&stubTutorService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/ai/approvals/abc/7", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTutorHealthUnavailableIs503(t *testing.T) {
	app := newTutorApp(&stubTutorService{err: service.ErrTutorUnhealthy})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ai/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
