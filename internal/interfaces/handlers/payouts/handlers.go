package payouts

import (
	"strings"

	payoutsvc "lapsly-backend/internal/application/payouts"
	"lapsly-backend/internal/middleware"
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *payoutsvc.Service
}

// Dispatch POST /api/v1/payouts/dispatch — admin. Optional fee_cents
// overrides the recorded processing fee for this payout.
func (h *Handlers) Dispatch(c *fiber.Ctx) error {
	var body struct {
		PurchaseID string `json:"purchase_id"`
		FeeCents   *int64 `json:"fee_cents"`
	}
	if err := c.BodyParser(&body); err != nil || body.PurchaseID == "" {
		return response.Error(c, "purchase_id is required", 400, nil)
	}
	purchaseID, err := uuid.Parse(body.PurchaseID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase_id", 400, nil)
	}

	payout, err := h.Service.Dispatch(c.Context(), purchaseID, body.FeeCents)
	if err != nil {
		msg := err.Error()
		statusMap := map[string]int{
			"Purchase not found":       404,
			"Seller not found":         404,
			"Payout already processed": 409,
			"Processing fee must be between zero and the amount paid": 400,
			"Payout amount must be positive":                          400,
			"Connect a Stripe payout account first":                   409,
			"Stripe payout account check failed":                      502,
			"Stripe payout account is not ready to receive payouts":   409,
			"Add a valid PayPal email first":                          409,
			"Payout backend rejected the transfer":                    502,
		}
		if code, ok := statusMap[msg]; ok {
			return response.Error(c, msg, code, nil)
		}
		if strings.HasPrefix(msg, "Payout requires a completed transfer") {
			return response.Conflict(c, msg)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Payout dispatched", payout, nil)
}

// GetMyPayouts GET /api/v1/payouts/get-seller-payouts
func (h *Handlers) GetMyPayouts(c *fiber.Ctx) error {
	a := middleware.GetActor(c)
	if a == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	items, err := h.Service.GetSellerPayouts(c.Context(), a.UserID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Payouts retrieved", items, nil)
}
