package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lapsly-backend/internal/application/eligibility"
	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/pkg/constants"
	"lapsly-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TXT records are published under this label on the listed domain,
// e.g. _lapsly-challenge.example.com.
const verificationLabel = "_lapsly-challenge"

// TXTResolver abstracts DNS TXT lookup for ownership verification
// (net.Resolver in production).
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// FeeSessionCreator abstracts Stripe Checkout creation for the listing fee.
type FeeSessionCreator interface {
	CreateSession(ctx context.Context, amountCents int64, idempotencyKey string, metadata map[string]string) (id string, url string, err error)
}

// IneligibleError reports a failed eligibility check; Reason is safe to
// show the submitter.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "Domain is not eligible: " + e.Reason
}

// Config is the listing policy injected at construction.
type Config struct {
	ListingFeeCents int64 // 0 waives the fee
}

type Service struct {
	DB          *gorm.DB
	Eligibility *eligibility.Service
	Resolver    TXTResolver
	FeeSessions FeeSessionCreator
	Config      Config
}

type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) isAdmin() bool {
	return a.Role == constants.Admin
}

// CreateListing runs the eligibility gate and admits the domain. The new
// listing enters pending_payment, or pending_verification when the listing
// fee is waived by configuration.
func (s *Service) CreateListing(ctx context.Context, sellerID uuid.UUID, domainName string) (*domain.Listing, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if !validation.IsValidDomainName(domainName) {
		return nil, errors.New("Invalid domain name")
	}

	res := s.Eligibility.Check(ctx, domainName)
	if !res.Eligible {
		return nil, &IneligibleError{Reason: res.Reason}
	}

	status := domain.ListingPendingPayment
	if s.Config.ListingFeeCents == 0 {
		status = domain.ListingPendingVerification
	}

	meta, _ := json.Marshal(domain.EligibilityMeta{
		AgeInMonths:    res.Record.AgeInMonths,
		Registrar:      res.Record.Registrar,
		ExpirationDate: res.Record.ExpirationDate,
	})
	expiresAt := res.Record.ExpirationDate

	listing := &domain.Listing{
		DomainName:        domainName,
		SellerID:          sellerID,
		Status:            status,
		VerificationToken: "lapsly-verify-" + uuid.New().String(),
		DomainExpiresAt:   &expiresAt,
		Eligibility:       datatypes.JSON(meta),
	}
	if err := s.DB.WithContext(ctx).Create(listing).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, errors.New("Domain is already listed")
		}
		return nil, err
	}
	return listing, nil
}

// CreateFeeSession starts a Stripe Checkout session for the listing fee.
// The idempotency key is derived from the listing id so a double click
// cannot open two captures.
func (s *Service) CreateFeeSession(ctx context.Context, listingID uuid.UUID, actor Actor) (map[string]interface{}, error) {
	listing, err := s.getOwned(ctx, listingID, actor)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingPendingPayment {
		return nil, fmt.Errorf("Listing fee is not payable from status %s", listing.Status)
	}
	if s.FeeSessions == nil {
		return nil, errors.New("Payments not configured")
	}

	id, url, err := s.FeeSessions.CreateSession(ctx, s.Config.ListingFeeCents, "listing-fee-"+listingID.String(), map[string]string{
		"purpose":    "listing_fee",
		"listing_id": listingID.String(),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id":   id,
		"checkout_url": url,
	}, nil
}

// ConfirmListingFee moves pending_payment -> pending_verification. Called
// from the Stripe webhook on fee capture; idempotent because the update is
// conditioned on the source state.
func (s *Service) ConfirmListingFee(ctx context.Context, listingID uuid.UUID) error {
	res := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("listing_id = ? AND status = ?", listingID, domain.ListingPendingPayment).
		Update("status", domain.ListingPendingVerification)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		listing, err := s.getByID(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status == domain.ListingPendingVerification {
			return nil // already confirmed; webhook retry
		}
		return fmt.Errorf("Listing fee cannot be confirmed from status %s", listing.Status)
	}
	return nil
}

// VerifyDomain checks the ownership TXT record and activates the listing,
// stamping verified_at and listed_at.
func (s *Service) VerifyDomain(ctx context.Context, listingID uuid.UUID, actor Actor) (*domain.Listing, error) {
	listing, err := s.getOwned(ctx, listingID, actor)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingPendingVerification {
		return nil, fmt.Errorf("Listing cannot be verified from status %s", listing.Status)
	}

	records, err := s.Resolver.LookupTXT(ctx, verificationLabel+"."+listing.DomainName)
	if err != nil {
		return nil, errors.New("TXT record lookup failed")
	}
	found := false
	for _, r := range records {
		if strings.TrimSpace(r) == listing.VerificationToken {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.New("Verification TXT record not found")
	}

	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("listing_id = ? AND status = ?", listingID, domain.ListingPendingVerification).
		Updates(map[string]interface{}{
			"status":      domain.ListingActive,
			"verified_at": now,
			"listed_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.New("Listing was modified concurrently, retry")
	}
	return s.getByID(ctx, listingID)
}

// RemoveListing withdraws a non-sold listing. Only the owning seller or an
// administrator may remove; sold is immutable.
func (s *Service) RemoveListing(ctx context.Context, listingID uuid.UUID, actor Actor) error {
	listing, err := s.getOwned(ctx, listingID, actor)
	if err != nil {
		return err
	}
	if listing.Status == domain.ListingSold {
		return errors.New("A sold listing cannot be removed")
	}
	res := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("listing_id = ? AND status NOT IN ?", listingID, []domain.ListingStatus{domain.ListingSold, domain.ListingRemoved}).
		Update("status", domain.ListingRemoved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("Listing cannot be removed from status %s", listing.Status)
	}
	return nil
}

// RestoreListing reverses a removal: back to active when the domain was
// verified before removal, otherwise back to pending_verification.
func (s *Service) RestoreListing(ctx context.Context, listingID uuid.UUID, actor Actor) (*domain.Listing, error) {
	listing, err := s.getOwned(ctx, listingID, actor)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingRemoved {
		return nil, fmt.Errorf("Listing cannot be restored from status %s", listing.Status)
	}
	target := domain.ListingPendingVerification
	if listing.VerifiedAt != nil {
		target = domain.ListingActive
	}
	res := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("listing_id = ? AND status = ?", listingID, domain.ListingRemoved).
		Update("status", target)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.New("Listing was modified concurrently, retry")
	}
	return s.getByID(ctx, listingID)
}

// PauseListing is administrative: active -> paused.
func (s *Service) PauseListing(ctx context.Context, listingID uuid.UUID) error {
	return s.adminToggle(ctx, listingID, domain.ListingActive, domain.ListingPaused)
}

// ResumeListing is administrative: paused -> active.
func (s *Service) ResumeListing(ctx context.Context, listingID uuid.UUID) error {
	return s.adminToggle(ctx, listingID, domain.ListingPaused, domain.ListingActive)
}

func (s *Service) adminToggle(ctx context.Context, listingID uuid.UUID, from, to domain.ListingStatus) error {
	res := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("listing_id = ? AND status = ?", listingID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		listing, err := s.getByID(ctx, listingID)
		if err != nil {
			return err
		}
		return fmt.Errorf("Listing cannot move to %s from status %s", to, listing.Status)
	}
	return nil
}

// BrowseActive returns the public storefront: active listings, newest first.
func (s *Service) BrowseActive(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	if err := s.DB.WithContext(ctx).
		Where("status = ?", domain.ListingActive).
		Order(`"createdAt" DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetSellerListings returns all listings owned by the seller.
func (s *Service) GetSellerListings(ctx context.Context, sellerID uuid.UUID) ([]domain.Listing, error) {
	var out []domain.Listing
	if err := s.DB.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order(`"createdAt" DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetListingByID returns one listing, enforcing ownership for non-admins.
func (s *Service) GetListingByID(ctx context.Context, listingID uuid.UUID, actor Actor) (*domain.Listing, error) {
	return s.getOwned(ctx, listingID, actor)
}

func (s *Service) getByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("Listing not found")
		}
		return nil, err
	}
	return &listing, nil
}

func (s *Service) getOwned(ctx context.Context, listingID uuid.UUID, actor Actor) (*domain.Listing, error) {
	listing, err := s.getByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !actor.isAdmin() && listing.SellerID != actor.UserID {
		// Same message as not-found so existence is not leaked.
		return nil, errors.New("Listing not found")
	}
	return listing, nil
}
