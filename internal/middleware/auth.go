package middleware

import (
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", user)
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// Actor is the authenticated caller extracted from the session.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// GetActor parses the session user into an Actor (nil if absent/malformed).
func GetActor(c *fiber.Ctx) *Actor {
	u := GetUser(c)
	if u == nil {
		return nil
	}
	m, ok := u.(map[string]interface{})
	if !ok {
		return nil
	}
	idStr, _ := m["user_id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil
	}
	email, _ := m["email"].(string)
	role, _ := m["role"].(string)
	return &Actor{UserID: id, Email: email, Role: role}
}
