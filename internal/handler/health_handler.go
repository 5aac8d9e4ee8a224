package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/utils"
)

// HealthHandler reports process liveness and dependency readiness.
type HealthHandler struct {
	db      *gorm.DB
	redis   *redis.Client
	env     string
	started time.Time
}

// NewHealthHandler constructs the health handler.
func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, env string) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, env: env, started: time.Now()}
}

// Live handles GET /health: liveness only, no dependency checks.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "alive", fiber.Map{
		"environment": h.env,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready handles GET /health/ready: checks the database and Redis.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Context())
	}
	if err != nil {
		checks["database"] = "down"
		healthy = false
	} else {
		checks["database"] = "up"
	}

	if err := h.redis.Ping(c.Context()).Err(); err != nil {
		checks["redis"] = "down"
		healthy = false
	} else {
		checks["redis"] = "up"
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
			Success: false,
			Message: "degraded",
			Data:    checks,
		})
	}
	return utils.SendSuccess(c, "ready", checks)
}
