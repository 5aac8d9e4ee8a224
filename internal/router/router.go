package router

import (
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-core-api/internal/handler"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/token"
)

// Dependencies bundles everything route registration needs.
type Dependencies struct {
	Tokens   *token.Manager
	Checker  middleware.RelationshipChecker
	Auth     *handler.AuthHandler
	Tutor    *handler.TutorHandler
	Students *handler.StudentHandler
	Health   *handler.HealthHandler
}

// Register wires every route group onto the app.
func Register(app *fiber.App, deps Dependencies) {
	app.Get("/health", deps.Health.Live)
	app.Get("/health/ready", deps.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit("register", 5, time.Minute), deps.Auth.Register)
	auth.Post("/login", middleware.RateLimit("login", 10, time.Minute), deps.Auth.Login)
	auth.Post("/refresh", deps.Auth.Refresh)
	auth.Post("/logout", deps.Auth.Logout)

	authed := auth.Group("", middleware.Protected(deps.Tokens))
	authed.Post("/logout-all", deps.Auth.LogoutAll)
	authed.Get("/me", deps.Auth.Me)
	authed.Put("/profile", deps.Auth.UpdateProfile)
	authed.Post("/profile/photo", deps.Auth.UploadPhoto)

	ai := api.Group("/ai", middleware.Protected(deps.Tokens), middleware.RequireActive(deps.Checker))
	ai.Post("/chat", middleware.RateLimit("ai_chat", 20, time.Minute), deps.Tutor.Chat)
	ai.Get("/health", middleware.RequireRole(models.RoleAdmin), deps.Tutor.Health)

	approvals := ai.Group("/approvals", middleware.RequireRole(models.RoleAdmin))
	approvals.Post("/", deps.Tutor.GrantApproval)
	approvals.Delete("/:parentId/:studentId", deps.Tutor.RevokeApproval)

	studentScoped := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{middleware.RequireStudentAccess("studentId", deps.Checker), h}
	}
	ai.Get("/history/:studentId", studentScoped(deps.Tutor.History)...)
	ai.Get("/stats/:studentId", studentScoped(deps.Tutor.Stats)...)
	ai.Get("/suggestions/:studentId", studentScoped(deps.Tutor.Suggestions)...)
	ai.Post("/analyze-performance/:studentId", studentScoped(deps.Tutor.Performance)...)
	// Kept for clients that still poll the analysis as a read.
	ai.Get("/performance/:studentId", studentScoped(deps.Tutor.Performance)...)
	ai.Put("/preferences/:studentId", studentScoped(deps.Tutor.UpdatePreferences)...)

	students := api.Group("/students", middleware.Protected(deps.Tokens), middleware.RequireActive(deps.Checker))
	students.Get("/", middleware.RequireRole(models.RoleAdmin, models.RoleTeacher), deps.Students.List)
	students.Get("/:externalId", deps.Students.Get)
	students.Put("/:externalId", middleware.RequireRole(models.RoleAdmin), deps.Students.Update)
	students.Delete("/:externalId", middleware.RequireRole(models.RoleAdmin), deps.Students.Delete)
}
