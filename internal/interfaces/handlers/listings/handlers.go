package listings

import (
	"errors"

	listingsvc "lapsly-backend/internal/application/listings"
	"lapsly-backend/internal/middleware"
	"lapsly-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *listingsvc.Service
}

func actorFrom(c *fiber.Ctx) (listingsvc.Actor, error) {
	a := middleware.GetActor(c)
	if a == nil {
		return listingsvc.Actor{}, errors.New("Unauthorized")
	}
	return listingsvc.Actor{UserID: a.UserID, Role: a.Role}, nil
}

// CreateListing POST /api/v1/listings/create-listing
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body struct {
		DomainName string `json:"domain_name"`
	}
	if err := c.BodyParser(&body); err != nil || body.DomainName == "" {
		return response.Error(c, "domain_name is required", 400, nil)
	}

	listing, err := h.Service.CreateListing(c.Context(), actor.UserID, body.DomainName)
	if err != nil {
		var inel *listingsvc.IneligibleError
		if errors.As(err, &inel) {
			return response.Error(c, err.Error(), 422, nil)
		}
		statusMap := map[string]int{
			"Invalid domain name":      400,
			"Domain is already listed": 409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

// CreateFeeSession POST /api/v1/listings/create-fee-session/:listing_id
func (h *Handlers) CreateFeeSession(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}

	result, err := h.Service.CreateFeeSession(c.Context(), listingID, actor)
	if err != nil {
		statusMap := map[string]int{
			"Listing not found":        404,
			"Payments not configured":  500,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Checkout session created", result, nil)
}

// VerifyDomain POST /api/v1/listings/verify-domain/:listing_id
func (h *Handlers) VerifyDomain(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}

	listing, err := h.Service.VerifyDomain(c.Context(), listingID, actor)
	if err != nil {
		statusMap := map[string]int{
			"Listing not found":                     404,
			"TXT record lookup failed":              422,
			"Verification TXT record not found":     422,
			"Listing was modified concurrently, retry": 409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Domain verified, listing is live", listing, nil)
}

// RemoveListing DELETE /api/v1/listings/remove-listing/:listing_id
func (h *Handlers) RemoveListing(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}

	if err := h.Service.RemoveListing(c.Context(), listingID, actor); err != nil {
		statusMap := map[string]int{
			"Listing not found":            404,
			"A sold listing cannot be removed": 409,
		}
		if code, ok := statusMap[err.Error()]; ok {
			return response.Error(c, err.Error(), code, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Listing removed", nil, nil)
}

// RestoreListing POST /api/v1/listings/restore-listing/:listing_id
func (h *Handlers) RestoreListing(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}

	listing, err := h.Service.RestoreListing(c.Context(), listingID, actor)
	if err != nil {
		if err.Error() == "Listing not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Listing restored", listing, nil)
}

// PauseListing POST /api/v1/listings/pause-listing/:listing_id — admin only (router enforces).
func (h *Handlers) PauseListing(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}
	if err := h.Service.PauseListing(c.Context(), listingID); err != nil {
		if err.Error() == "Listing not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Listing paused", nil, nil)
}

// ResumeListing POST /api/v1/listings/resume-listing/:listing_id — admin only.
func (h *Handlers) ResumeListing(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}
	if err := h.Service.ResumeListing(c.Context(), listingID); err != nil {
		if err.Error() == "Listing not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, err.Error(), 409, nil)
	}
	return response.Success(c, "Listing resumed", nil, nil)
}

// Browse GET /api/v1/listings/browse — public storefront, no session needed.
func (h *Handlers) Browse(c *fiber.Ctx) error {
	items, err := h.Service.BrowseActive(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Active listings retrieved", items, nil)
}

// GetMyListings GET /api/v1/listings/get-seller-listings
func (h *Handlers) GetMyListings(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	items, err := h.Service.GetSellerListings(c.Context(), actor.UserID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Listings retrieved", items, nil)
}

// GetListingByID GET /api/v1/listings/get-listing/:listing_id
func (h *Handlers) GetListingByID(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for listing id", 400, nil)
	}
	listing, err := h.Service.GetListingByID(c.Context(), listingID, actor)
	if err != nil {
		if err.Error() == "Listing not found" {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Listing retrieved", listing, nil)
}
