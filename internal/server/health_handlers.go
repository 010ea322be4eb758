package server

import (
	"context"
	"time"

	"diary/internal/database"

	"github.com/gofiber/fiber/v2"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// LivenessCheck handles liveness probe requests
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} object{status=string,time=string}
// @Router /health/live [get]
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck handles readiness probe requests. Dependencies that are not
// configured (memory storage, no Redis) report "disabled" and do not fail the check.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} object{status=string,checks=object}
// @Failure 503 {object} object{status=string,checks=object}
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := statusDisabled
	if s.db != nil {
		dbStatus = statusHealthy
		if err := database.Ping(ctx, s.db); err != nil {
			dbStatus = statusUnhealthy
		}
	}

	redisStatus := statusDisabled
	if s.redis != nil {
		redisStatus = statusHealthy
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = statusUnhealthy
		}
	}

	status := fiber.StatusOK
	overall := statusHealthy
	if dbStatus == statusUnhealthy || redisStatus == statusUnhealthy {
		status = fiber.StatusServiceUnavailable
		overall = statusUnhealthy
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overall,
		"storage": s.config.StorageDriver,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}
