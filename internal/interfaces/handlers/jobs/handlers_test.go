package jobs

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	sweepsvc "lapsly-backend/internal/application/sweep"
	"lapsly-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJobs(t *testing.T, secret string) (*fiber.App, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Purchase{}))

	h := &Handlers{Sweep: &sweepsvc.Service{DB: db}, SweepSecret: secret}
	app := fiber.New()
	app.Post("/api/v1/jobs/run-sweep", h.RunSweep)
	return app, db
}

func TestRunSweep_RequiresSecret(t *testing.T) {
	app, _ := setupJobs(t, "cron-secret")

	req := httptest.NewRequest("POST", "/api/v1/jobs/run-sweep", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("POST", "/api/v1/jobs/run-sweep", nil)
	req.Header.Set("X-Sweep-Secret", "wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRunSweep_EmptySecretAlwaysForbidden(t *testing.T) {
	app, _ := setupJobs(t, "")

	req := httptest.NewRequest("POST", "/api/v1/jobs/run-sweep", nil)
	req.Header.Set("X-Sweep-Secret", "")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRunSweep_ReportsCounts(t *testing.T) {
	app, db := setupJobs(t, "cron-secret")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&domain.Listing{
		DomainName:      "lapsed.com",
		SellerID:        uuid.New(),
		Status:          domain.ListingActive,
		DomainExpiresAt: &past,
	}).Error)

	req := httptest.NewRequest("POST", "/api/v1/jobs/run-sweep", nil)
	req.Header.Set("X-Sweep-Secret", "cron-secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	data, _ := result["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["expired_listings"])
	assert.Equal(t, float64(0), data["disputes_opened"])
}
