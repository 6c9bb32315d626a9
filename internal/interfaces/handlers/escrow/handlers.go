package escrow

import (
	"errors"
	"strings"

	escrowsvc "lapsly-backend/internal/application/escrow"
	"lapsly-backend/internal/middleware"
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *escrowsvc.Service
}

// Error messages the service produces for state conflicts; everything in
// this map is a 409, ownership failures are 404.
var conflictMessages = map[string]bool{
	"Transfer has not been initiated":       true,
	"Transfer already completed":            true,
	"Cannot complete a disputed transfer":   true,
	"Cannot dispute a completed transfer":   true,
	"Transfer is already disputed":          true,
	"Purchase was refunded":                 true,
	"Purchase already refunded":             true,
	"Cannot refund a completed transfer":    true,
	"Purchase was modified concurrently, retry": true,
	"Confirmation window has elapsed; the dispute will be opened automatically": true,
}

func mapError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	switch {
	case msg == "Purchase not found":
		return response.Error(c, msg, 404, nil)
	case conflictMessages[msg] || strings.HasPrefix(msg, "Transfer cannot be initiated") || strings.HasPrefix(msg, "Purchase is not disputed"):
		return response.Conflict(c, msg)
	case strings.HasPrefix(msg, "Refund failed"):
		return response.Error(c, msg, 502, nil)
	case msg == "Transfer auth code is required" || msg == "Dispute reason is required" || msg == "Dispute outcome is required":
		return response.Error(c, msg, 400, nil)
	}
	return response.Error(c, "Internal Server Error", 500, nil)
}

func actorFrom(c *fiber.Ctx) (escrowsvc.Actor, error) {
	a := middleware.GetActor(c)
	if a == nil {
		return escrowsvc.Actor{}, errors.New("Unauthorized")
	}
	return escrowsvc.Actor{UserID: a.UserID, Role: a.Role}, nil
}

// InitiateTransfer POST /api/v1/escrow/initiate-transfer/:purchase_id — seller hands
// over the registrar auth code.
func (h *Handlers) InitiateTransfer(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	var body struct {
		AuthCode string `json:"auth_code"`
		Notes    string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Transfer auth code is required", 400, nil)
	}

	purchase, err := h.Service.InitiateTransfer(c.Context(), purchaseID, actor, body.AuthCode, body.Notes)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Transfer initiated", purchase, nil)
}

// ConfirmTransfer POST /api/v1/escrow/confirm-transfer/:purchase_id — public; the
// buyer proves identity with the email on the purchase.
func (h *Handlers) ConfirmTransfer(c *fiber.Ctx) error {
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	var body struct {
		BuyerEmail string `json:"buyer_email"`
	}
	if err := c.BodyParser(&body); err != nil || body.BuyerEmail == "" {
		return response.Error(c, "buyer_email is required", 400, nil)
	}

	purchase, err := h.Service.ConfirmTransfer(c.Context(), purchaseID, body.BuyerEmail)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Transfer confirmed", purchase, nil)
}

// OpenDispute POST /api/v1/escrow/open-dispute/:purchase_id — public buyer endpoint.
func (h *Handlers) OpenDispute(c *fiber.Ctx) error {
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	var body struct {
		BuyerEmail string `json:"buyer_email"`
		Reason     string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil || body.BuyerEmail == "" {
		return response.Error(c, "buyer_email and reason are required", 400, nil)
	}

	purchase, err := h.Service.OpenDispute(c.Context(), purchaseID, body.BuyerEmail, body.Reason)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Dispute opened", purchase, nil)
}

// AdminOpenDispute POST /api/v1/escrow/admin-open-dispute/:purchase_id
func (h *Handlers) AdminOpenDispute(c *fiber.Ctx) error {
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Dispute reason is required", 400, nil)
	}

	purchase, err := h.Service.AdminOpenDispute(c.Context(), purchaseID, body.Reason)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Dispute opened", purchase, nil)
}

// ResolveDispute POST /api/v1/escrow/resolve-dispute/:purchase_id — admin; refunds
// the buyer and fails the purchase.
func (h *Handlers) ResolveDispute(c *fiber.Ctx) error {
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	var body struct {
		Outcome string `json:"outcome"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Dispute outcome is required", 400, nil)
	}

	purchase, err := h.Service.ResolveDispute(c.Context(), purchaseID, body.Outcome)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Dispute resolved, buyer refunded", purchase, nil)
}

// AdminComplete POST /api/v1/escrow/admin-complete/:purchase_id — administrator
// override for stuck confirmations.
func (h *Handlers) AdminComplete(c *fiber.Ctx) error {
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	purchase, err := h.Service.AdminCompleteTransfer(c.Context(), purchaseID)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Transfer completed", purchase, nil)
}

// GetPurchase GET /api/v1/escrow/get-purchase/:purchase_id
func (h *Handlers) GetPurchase(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	purchaseID, err := uuid.Parse(c.Params("purchase_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for purchase id", 400, nil)
	}
	purchase, err := h.Service.GetPurchase(c.Context(), purchaseID, actor)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Purchase retrieved", purchase, nil)
}

// GetMyPurchases GET /api/v1/escrow/get-seller-purchases — purchases against the seller's
// listings.
func (h *Handlers) GetMyPurchases(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	items, err := h.Service.GetSellerPurchases(c.Context(), actor.UserID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Purchases retrieved", items, nil)
}
