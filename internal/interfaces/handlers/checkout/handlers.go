package checkout

import (
	escrowsvc "lapsly-backend/internal/application/escrow"
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers exposes the public buyer checkout. Buyers hold no account; the
// email in the body becomes the purchase identity.
type Handlers struct {
	Escrow *escrowsvc.Service
}

// CreateSession POST /api/v1/checkout/create-session
func (h *Handlers) CreateSession(c *fiber.Ctx) error {
	var body struct {
		ListingID  string `json:"listing_id"`
		BuyerEmail string `json:"buyer_email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.ListingID == "" || body.BuyerEmail == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing_id", 400, nil)
	}

	result, err := h.Escrow.CreateCheckoutSession(c.Context(), listingID, body.BuyerEmail)
	if err != nil {
		statusMap := map[string]int{
			"A valid buyer email is required":     400,
			"Listing not found":                   404,
			"Listing is already being purchased":  409,
			"Payments not configured":             500,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Checkout session created", result, nil)
}
