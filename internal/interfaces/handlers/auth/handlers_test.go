package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupAuthApp(t *testing.T) (*fiber.App, *redis.Client, *gorm.DB) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))

	cfg := middleware.SessionConfig{RedisURL: "redis://" + mr.Addr()}
	sessionMw, rdb, err := middleware.Session(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	h := &Handlers{DB: db, Rdb: rdb, Config: cfg}

	app := fiber.New()
	app.Use(sessionMw)
	app.Post("/api/v1/auth/login", h.Login)
	app.Get("/api/v1/auth/me", h.Me)
	app.Delete("/api/v1/auth/logout", h.Logout)
	return app, rdb, db
}

func seedUser(t *testing.T, db *gorm.DB, email, password string) *domain.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	require.NoError(t, err)
	u := &domain.User{
		Fullname:     "Test Seller",
		Email:        email,
		PasswordHash: string(hash),
		Role:         "seller",
		PayoutMethod: domain.PayoutMethodPaypal,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func loginRequest(email, password string) *http.Request {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == middleware.SessionCookieName {
			return ck
		}
	}
	return nil
}

func TestLogin_MissingCredentials(t *testing.T) {
	app, _, _ := setupAuthApp(t)

	resp, err := app.Test(loginRequest("a@b.com", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_UnknownEmail(t *testing.T) {
	app, _, _ := setupAuthApp(t)

	resp, err := app.Test(loginRequest("nobody@example.com", "whatever1!"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	app, _, db := setupAuthApp(t)
	seedUser(t, db, "seller@example.com", "correct-h0rse!")

	resp, err := app.Test(loginRequest("seller@example.com", "wrong-h0rse!"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_SetsCookieAndTracksSession(t *testing.T) {
	app, rdb, db := setupAuthApp(t)
	u := seedUser(t, db, "seller@example.com", "correct-h0rse!")

	resp, err := app.Test(loginRequest("seller@example.com", "correct-h0rse!"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	ck := sessionCookie(resp)
	require.NotNil(t, ck)
	require.NotEmpty(t, ck.Value)

	members, err := rdb.SMembers(context.Background(), "user_sessions:"+u.UserID.String()).Result()
	require.NoError(t, err)
	assert.Contains(t, members, ck.Value)

	exists, err := rdb.Exists(context.Background(), middleware.SessionRedisPrefix+ck.Value).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestMe_RoundTrip(t *testing.T) {
	app, _, db := setupAuthApp(t)
	u := seedUser(t, db, "seller@example.com", "correct-h0rse!")

	login, err := app.Test(loginRequest("seller@example.com", "correct-h0rse!"), -1)
	require.NoError(t, err)
	ck := sessionCookie(login)
	require.NotNil(t, ck)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.AddCookie(ck)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			User struct {
				UserID uuid.UUID `json:"user_id"`
				Email  string    `json:"email"`
				Role   string    `json:"role"`
			} `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, u.UserID, body.Data.User.UserID)
	assert.Equal(t, "seller@example.com", body.Data.User.Email)
	assert.Equal(t, "seller", body.Data.User.Role)
}

func TestMe_NoSession(t *testing.T) {
	app, _, _ := setupAuthApp(t)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogout_ClearsSession(t *testing.T) {
	app, rdb, db := setupAuthApp(t)
	u := seedUser(t, db, "seller@example.com", "correct-h0rse!")

	login, err := app.Test(loginRequest("seller@example.com", "correct-h0rse!"), -1)
	require.NoError(t, err)
	ck := sessionCookie(login)
	require.NotNil(t, ck)

	req := httptest.NewRequest("DELETE", "/api/v1/auth/logout", nil)
	req.AddCookie(ck)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	members, err := rdb.SMembers(context.Background(), "user_sessions:"+u.UserID.String()).Result()
	require.NoError(t, err)
	assert.NotContains(t, members, ck.Value)

	// The old cookie is no longer a valid session.
	again := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	again.AddCookie(ck)
	meResp, err := app.Test(again, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, meResp.StatusCode)
}
