package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type databaseHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthReport struct {
	Status      string         `json:"status"`
	Uptime      float64        `json:"uptime"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    databaseHealth `json:"database"`
	Environment string         `json:"environment"`
}

// health always answers 200; a failed ping shows up in the report.
func (s *Server) health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	db := databaseHealth{Status: "ok", Message: "Connected to database"}
	if err := s.ping(ctx); err != nil {
		s.logger.Error(ctx, "health check failed", "error", err)
		db = databaseHealth{Status: "error", Message: "Database connection failed"}
	}

	return respond(c, fiber.StatusOK, "Health check successful", healthReport{
		Status:      db.Status,
		Uptime:      time.Since(s.started).Seconds(),
		Timestamp:   time.Now().UTC(),
		Database:    db,
		Environment: s.opts.Environment,
	})
}
