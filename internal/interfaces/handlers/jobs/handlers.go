package jobs

import (
	"crypto/subtle"

	sweepsvc "lapsly-backend/internal/application/sweep"
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers exposes scheduled maintenance jobs to an external cron caller.
type Handlers struct {
	Sweep       *sweepsvc.Service
	SweepSecret string
}

// RunSweep POST /api/v1/jobs/run-sweep — shared-secret header, no session.
func (h *Handlers) RunSweep(c *fiber.Ctx) error {
	secret := c.Get("X-Sweep-Secret")
	if h.SweepSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.SweepSecret)) != 1 {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}

	result, err := h.Sweep.Run(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Sweep completed", result, nil)
}
