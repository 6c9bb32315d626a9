package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/pkg/constants"
	"lapsly-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CheckoutCreator abstracts Stripe Checkout creation for purchase capture.
type CheckoutCreator interface {
	CreateSession(ctx context.Context, amountCents int64, idempotencyKey string, metadata map[string]string) (id string, url string, err error)
}

// Refunder abstracts the card processor's refund-by-payment-reference call.
type Refunder interface {
	Refund(ctx context.Context, paymentIntentID string) (refundID string, err error)
}

// Notifier is the slice of the email sender the escrow flow uses.
// Notification is fire-and-forget; a nil Notifier disables it.
type Notifier interface {
	SendTransferInitiated(ctx context.Context, toEmail, domainName, authCode, notes string, deadline time.Time) error
	SendDisputeOpened(ctx context.Context, toEmail, domainName, reason string) error
}

// Config is the escrow policy injected at construction. Tests shrink the
// window to exercise deadline breaches quickly.
type Config struct {
	SalePriceCents     int64
	ProcessingFeeCents int64
	ConfirmWindow      time.Duration
}

type Service struct {
	DB       *gorm.DB
	Checkout CheckoutCreator
	Refunder Refunder
	Emails   Notifier
	Config   Config
	// OnCompleted fires after a transfer completes (payout dispatch hook).
	// Invoked on a separate goroutine; failures must be retryable by hand.
	OnCompleted func(purchaseID uuid.UUID)
}

type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) isAdmin() bool {
	return a.Role == constants.Admin
}

// AutoDisputeReason is recorded when the sweep opens a dispute because the
// confirmation window lapsed without a buyer response.
const AutoDisputeReason = "Buyer confirmation window elapsed without a response"

// CreateCheckoutSession opens a Stripe Checkout for an active, unencumbered
// listing. The idempotency key is derived from the listing id (plus the
// count of prior refunded purchases) so two concurrent checkouts for one
// listing cannot both capture.
func (s *Service) CreateCheckoutSession(ctx context.Context, listingID uuid.UUID, buyerEmail string) (map[string]interface{}, error) {
	buyerEmail = strings.ToLower(strings.TrimSpace(buyerEmail))
	if !validation.IsValidEmail(buyerEmail) {
		return nil, errors.New("A valid buyer email is required")
	}

	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("Listing not found")
		}
		return nil, err
	}
	if listing.Status != domain.ListingActive {
		return nil, fmt.Errorf("Listing is not available for purchase (status %s)", listing.Status)
	}

	var live, failed int64
	if err := s.DB.WithContext(ctx).Model(&domain.Purchase{}).
		Where("listing_id = ? AND transfer_status <> ?", listingID, domain.TransferFailed).
		Count(&live).Error; err != nil {
		return nil, err
	}
	if live > 0 {
		return nil, errors.New("Listing is already being purchased")
	}
	if err := s.DB.WithContext(ctx).Model(&domain.Purchase{}).
		Where("listing_id = ? AND transfer_status = ?", listingID, domain.TransferFailed).
		Count(&failed).Error; err != nil {
		return nil, err
	}

	if s.Checkout == nil {
		return nil, errors.New("Payments not configured")
	}
	key := fmt.Sprintf("purchase-%s-%d", listingID, failed)
	id, url, err := s.Checkout.CreateSession(ctx, s.Config.SalePriceCents, key, map[string]string{
		"purpose":     "purchase",
		"listing_id":  listingID.String(),
		"buyer_email": buyerEmail,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id":   id,
		"checkout_url": url,
	}, nil
}

// RecordCapture creates the Purchase for a successful payment capture.
// Idempotent on payment intent id; the partial unique index rejects a
// concurrent second live purchase for the same listing.
func (s *Service) RecordCapture(ctx context.Context, paymentIntentID string, listingID uuid.UUID, buyerEmail string, amountCents int64) error {
	if paymentIntentID == "" {
		return errors.New("Missing payment reference")
	}
	fee := s.Config.ProcessingFeeCents
	if fee > amountCents {
		fee = amountCents
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Purchase
		if err := tx.Where("payment_intent_id = ?", paymentIntentID).First(&existing).Error; err == nil {
			return nil // already processed; webhook retry
		}

		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("Listing not found")
			}
			return err
		}

		purchase := domain.Purchase{
			ListingID:          listingID,
			BuyerEmail:         strings.ToLower(buyerEmail),
			AmountPaidCents:    amountCents,
			ProcessingFeeCents: fee,
			SellerPayoutCents:  amountCents - fee,
			PaymentIntentID:    paymentIntentID,
			TransferStatus:     domain.TransferNone,
		}
		return tx.Create(&purchase).Error
	})
}

// InitiateTransfer records the seller's registrar hand-off. The deadline is
// set by the same conditional update that flips the status, so a retried
// call can never recompute it.
func (s *Service) InitiateTransfer(ctx context.Context, purchaseID uuid.UUID, actor Actor, authCode, notes string) (*domain.Purchase, error) {
	if strings.TrimSpace(authCode) == "" {
		return nil, errors.New("Transfer auth code is required")
	}

	purchase, listing, err := s.getOwned(ctx, purchaseID, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	deadline := now.Add(s.Config.ConfirmWindow)
	updates := map[string]interface{}{
		"transfer_status":             domain.TransferInitiated,
		"auth_code":                   authCode,
		"transfer_initiated_at":       now,
		"buyer_confirmation_deadline": deadline,
	}
	if strings.TrimSpace(notes) != "" {
		updates["transfer_notes"] = notes
	}
	res := s.DB.WithContext(ctx).Model(&domain.Purchase{}).
		Where("purchase_id = ? AND transfer_status = ?", purchaseID, domain.TransferNone).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.getPurchase(ctx, purchaseID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("Transfer cannot be initiated from status %s", current.TransferStatus)
	}

	// Best-effort notification; failure never rolls back the transition.
	if s.Emails != nil {
		buyerEmail, domainName := purchase.BuyerEmail, listing.DomainName
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := s.Emails.SendTransferInitiated(ctx, buyerEmail, domainName, authCode, notes, deadline); err != nil {
				log.Warn().Err(err).Str("purchase_id", purchaseID.String()).Msg("Transfer-initiated email failed")
			}
		}()
	}

	return s.getPurchase(ctx, purchaseID)
}

// ConfirmTransfer is the buyer's confirmation: the purchase must carry the
// caller's email. Completion is the sole trigger for listing -> sold and
// for payout eligibility.
func (s *Service) ConfirmTransfer(ctx context.Context, purchaseID uuid.UUID, buyerEmail string) (*domain.Purchase, error) {
	purchase, err := s.getPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(purchase.BuyerEmail, strings.TrimSpace(buyerEmail)) {
		// Same message as not-found so existence is not leaked.
		return nil, errors.New("Purchase not found")
	}
	return s.complete(ctx, purchase)
}

// AdminCompleteTransfer is the administrator override for completion.
func (s *Service) AdminCompleteTransfer(ctx context.Context, purchaseID uuid.UUID) (*domain.Purchase, error) {
	purchase, err := s.getPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, purchase)
}

func (s *Service) complete(ctx context.Context, purchase *domain.Purchase) (*domain.Purchase, error) {
	switch purchase.TransferStatus {
	case domain.TransferNone:
		return nil, errors.New("Transfer has not been initiated")
	case domain.TransferCompleted:
		return nil, errors.New("Transfer already completed")
	case domain.TransferDisputed:
		return nil, errors.New("Cannot complete a disputed transfer")
	case domain.TransferFailed:
		return nil, errors.New("Purchase was refunded")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Purchase{}).
			Where("purchase_id = ? AND transfer_status = ?", purchase.PurchaseID, domain.TransferInitiated).
			Updates(map[string]interface{}{
				"transfer_status": domain.TransferCompleted,
				"completed_at":    time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("Purchase was modified concurrently, retry")
		}
		// Sold is reachable only here. Expired is included for a transfer
		// that outlived the domain-expiry sweep.
		lres := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND status IN ?", purchase.ListingID,
				[]domain.ListingStatus{domain.ListingActive, domain.ListingExpired}).
			Update("status", domain.ListingSold)
		if lres.Error != nil {
			return lres.Error
		}
		if lres.RowsAffected == 0 {
			// A removed or paused listing keeps its status; the completed
			// purchase is still the source of truth for the payout.
			log.Warn().
				Str("purchase_id", purchase.PurchaseID.String()).
				Str("listing_id", purchase.ListingID.String()).
				Msg("Listing not marked sold on transfer completion")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.OnCompleted != nil {
		go s.OnCompleted(purchase.PurchaseID)
	}
	return s.getPurchase(ctx, purchase.PurchaseID)
}

// OpenDispute lets the buyer contest an initiated transfer while the
// confirmation window is open. Past the deadline the sweep takes over.
func (s *Service) OpenDispute(ctx context.Context, purchaseID uuid.UUID, buyerEmail, reason string) (*domain.Purchase, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errors.New("Dispute reason is required")
	}
	purchase, err := s.getPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(purchase.BuyerEmail, strings.TrimSpace(buyerEmail)) {
		return nil, errors.New("Purchase not found")
	}
	if purchase.BuyerConfirmationDeadline != nil && time.Now().After(*purchase.BuyerConfirmationDeadline) {
		return nil, errors.New("Confirmation window has elapsed; the dispute will be opened automatically")
	}
	return s.dispute(ctx, purchase, reason)
}

// AdminOpenDispute opens a dispute on behalf of support staff.
func (s *Service) AdminOpenDispute(ctx context.Context, purchaseID uuid.UUID, reason string) (*domain.Purchase, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errors.New("Dispute reason is required")
	}
	purchase, err := s.getPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	return s.dispute(ctx, purchase, reason)
}

func (s *Service) dispute(ctx context.Context, purchase *domain.Purchase, reason string) (*domain.Purchase, error) {
	switch purchase.TransferStatus {
	case domain.TransferNone:
		return nil, errors.New("Transfer has not been initiated")
	case domain.TransferCompleted:
		return nil, errors.New("Cannot dispute a completed transfer")
	case domain.TransferDisputed:
		return nil, errors.New("Transfer is already disputed")
	case domain.TransferFailed:
		return nil, errors.New("Purchase was refunded")
	}

	res := s.DB.WithContext(ctx).Model(&domain.Purchase{}).
		Where("purchase_id = ? AND transfer_status = ?", purchase.PurchaseID, domain.TransferInitiated).
		Updates(map[string]interface{}{
			"transfer_status": domain.TransferDisputed,
			"dispute_reason":  reason,
			"disputed_at":     time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.New("Purchase was modified concurrently, retry")
	}

	if s.Emails != nil {
		go s.notifySellerDisputed(purchase.PurchaseID, reason)
	}
	return s.getPurchase(ctx, purchase.PurchaseID)
}

func (s *Service) notifySellerDisputed(purchaseID uuid.UUID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var row struct {
		DomainName string
		Email      string
	}
	err := s.DB.WithContext(ctx).Model(&domain.Purchase{}).
		Select(`"Listings".domain_name, "Users".email`).
		Joins(`JOIN "Listings" ON "Listings".listing_id = "Purchases".listing_id`).
		Joins(`JOIN "Users" ON "Users".user_id = "Listings".seller_id`).
		Where(`"Purchases".purchase_id = ?`, purchaseID).
		Scan(&row).Error
	if err != nil || row.Email == "" {
		return
	}
	if err := s.Emails.SendDisputeOpened(ctx, row.Email, row.DomainName, reason); err != nil {
		log.Warn().Err(err).Str("purchase_id", purchaseID.String()).Msg("Dispute-opened email failed")
	}
}

// ResolveDispute refunds the buyer and closes the purchase as failed.
// The refund is issued first; if the processor rejects it, no local state
// changes. On success the listing is re-listable again.
func (s *Service) ResolveDispute(ctx context.Context, purchaseID uuid.UUID, outcome string) (*domain.Purchase, error) {
	if strings.TrimSpace(outcome) == "" {
		return nil, errors.New("Dispute outcome is required")
	}
	purchase, err := s.getPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	switch purchase.TransferStatus {
	case domain.TransferCompleted:
		return nil, errors.New("Cannot refund a completed transfer")
	case domain.TransferFailed:
		return nil, errors.New("Purchase already refunded")
	case domain.TransferNone, domain.TransferInitiated:
		return nil, fmt.Errorf("Purchase is not disputed (status %s)", purchase.TransferStatus)
	}
	if purchase.PaymentIntentID == "" {
		return nil, errors.New("No captured payment to refund")
	}
	if s.Refunder == nil {
		return nil, errors.New("Payments not configured")
	}

	refundID, err := s.Refunder.Refund(ctx, purchase.PaymentIntentID)
	if err != nil {
		log.Error().Err(err).Str("purchase_id", purchaseID.String()).Msg("Refund failed")
		return nil, errors.New("Refund failed, no changes were made")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Purchase{}).
			Where("purchase_id = ? AND transfer_status = ?", purchaseID, domain.TransferDisputed).
			Updates(map[string]interface{}{
				"transfer_status":     domain.TransferFailed,
				"dispute_outcome":     outcome,
				"dispute_resolved_at": time.Now(),
				"refund_id":           refundID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("Purchase already refunded")
		}
		return tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND status = ?", purchase.ListingID, domain.ListingSold).
			Update("status", domain.ListingActive).Error
	})
	if err != nil {
		return nil, err
	}
	return s.getPurchase(ctx, purchaseID)
}

// GetPurchase returns one purchase for the owning seller or an admin.
func (s *Service) GetPurchase(ctx context.Context, purchaseID uuid.UUID, actor Actor) (*domain.Purchase, error) {
	purchase, _, err := s.getOwned(ctx, purchaseID, actor)
	return purchase, err
}

// GetSellerPurchases lists purchases against the seller's listings.
func (s *Service) GetSellerPurchases(ctx context.Context, sellerID uuid.UUID) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := s.DB.WithContext(ctx).
		Joins(`JOIN "Listings" ON "Listings".listing_id = "Purchases".listing_id`).
		Where(`"Listings".seller_id = ?`, sellerID).
		Order(`"Purchases"."createdAt" DESC`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) getPurchase(ctx context.Context, purchaseID uuid.UUID) (*domain.Purchase, error) {
	var purchase domain.Purchase
	if err := s.DB.WithContext(ctx).Where("purchase_id = ?", purchaseID).First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("Purchase not found")
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *Service) getOwned(ctx context.Context, purchaseID uuid.UUID, actor Actor) (*domain.Purchase, *domain.Listing, error) {
	purchase, err := s.getPurchase(ctx, purchaseID)
	if err != nil {
		return nil, nil, err
	}
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", purchase.ListingID).First(&listing).Error; err != nil {
		return nil, nil, err
	}
	if !actor.isAdmin() && listing.SellerID != actor.UserID {
		return nil, nil, errors.New("Purchase not found")
	}
	return purchase, &listing, nil
}
