package sellers

import (
	sellersvc "lapsly-backend/internal/application/sellers"
	"lapsly-backend/internal/middleware"
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *sellersvc.Service
}

// CreateSeller POST /api/v1/users/create-user — public registration.
func (h *Handlers) CreateSeller(c *fiber.Ctx) error {
	var body sellersvc.CreateSellerInput
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}

	u, err := h.Service.CreateSeller(c.Context(), body)
	if err != nil {
		statusMap := map[string]int{
			"Invalid email format":     400,
			"Invalid password format":  400,
			"Email already registered": 409,
			"Full name is required and must be a non-empty string": 400,
			"Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)": 400,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Account created successfully", u, nil)
}

// UpdatePayoutSettings PATCH /api/v1/sellers/payout-settings
func (h *Handlers) UpdatePayoutSettings(c *fiber.Ctx) error {
	a := middleware.GetActor(c)
	if a == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body sellersvc.PayoutSettingsInput
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}

	u, err := h.Service.UpdatePayoutSettings(c.Context(), a.UserID, body)
	if err != nil {
		statusMap := map[string]int{
			"Payout method must be stripe or paypal": 400,
			"Invalid PayPal email":                   400,
			"No valid update fields provided":        400,
			"User not found":                         404,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Payout settings updated", u, nil)
}

// ConnectStripe POST /api/v1/sellers/connect-stripe
func (h *Handlers) ConnectStripe(c *fiber.Ctx) error {
	a := middleware.GetActor(c)
	if a == nil {
		return response.Unauthorized(c, "Unauthorized")
	}

	u, err := h.Service.ConnectStripe(c.Context(), a.UserID)
	if err != nil {
		statusMap := map[string]int{
			"User not found":          404,
			"Payments not configured": 500,
			"Could not create a Stripe payout account": 502,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Stripe payout account connected", u, nil)
}

// GetProfile GET /api/v1/sellers/view-profile
func (h *Handlers) GetProfile(c *fiber.Ctx) error {
	a := middleware.GetActor(c)
	if a == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	u, err := h.Service.GetSeller(c.Context(), a.UserID)
	if err != nil {
		if err.Error() == "User not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Profile retrieved", u, nil)
}
