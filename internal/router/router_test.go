package router

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-core-api/internal/handler"
	"github.com/noah-isme/sma-core-api/internal/token"
)

type staticChecker struct{}

func (staticChecker) IsParentOf(context.Context, uint, uint) (bool, error)  { return false, nil }
func (staticChecker) IsTeacherOf(context.Context, uint, uint) (bool, error) { return false, nil }
func (staticChecker) AccountStatus(context.Context, uint) (string, bool, error) {
	return "", false, nil
}

func registeredRoutes(t *testing.T) map[string]bool {
	t.Helper()

	mini := miniredis.RunT(t)
	tokens, err := token.NewManager(token.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}, redis.NewClient(&redis.Options{Addr: mini.Addr()}))
	require.NoError(t, err)

	app := fiber.New()
	Register(app, Dependencies{
		Tokens:   tokens,
		Checker:  staticChecker{},
		Auth:     handler.NewAuthHandler(nil),
		Tutor:    handler.NewTutorHandler(nil),
		Students: handler.NewStudentHandler(nil),
		Health:   handler.NewHealthHandler(nil, nil, "test"),
	})

	routes := map[string]bool{}
	for _, group := range app.Stack() {
		for _, route := range group {
			path := route.Path
			if len(path) > 1 {
				path = strings.TrimSuffix(path, "/")
			}
			routes[route.Method+" "+path] = true
		}
	}
	return routes
}

func TestRegisterExposesNamedSurface(t *testing.T) {
	routes := registeredRoutes(t)

	for _, want := range []string{
		"POST /api/auth/register",
		"POST /api/auth/login",
		"POST /api/auth/refresh",
		"POST /api/ai/chat",
		"GET /api/ai/history/:studentId",
		"GET /api/ai/suggestions/:studentId",
		"POST /api/ai/analyze-performance/:studentId",
		"GET /api/ai/stats/:studentId",
		"PUT /api/ai/preferences/:studentId",
		"GET /api/ai/health",
		"POST /api/ai/approvals",
		"DELETE /api/ai/approvals/:parentId/:studentId",
		"GET /api/students",
		"GET /api/students/:externalId",
		"PUT /api/students/:externalId",
		"DELETE /api/students/:externalId",
		"GET /health",
		"GET /metrics",
	} {
		require.True(t, routes[want], "route %s is not registered", want)
	}
}
