package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// StripeTransferrer abstracts the card processor's payout surface:
// sub-account status query plus transfer-to-sub-account.
type StripeTransferrer interface {
	AccountPayoutsEnabled(ctx context.Context, accountID string) (bool, error)
	Transfer(ctx context.Context, amountCents int64, accountID, idempotencyKey string) (transferID string, err error)
}

// PaypalPayer abstracts the peer-to-peer payout backend.
type PaypalPayer interface {
	Payout(ctx context.Context, amountCents int64, receiverEmail, senderItemID string) (batchID string, err error)
}

// Notifier is optional; payout emails are best-effort.
type Notifier interface {
	SendPayoutSent(ctx context.Context, toEmail, domainName, method string, amountCents int64) error
}

type Service struct {
	DB     *gorm.DB
	Stripe StripeTransferrer
	Paypal PaypalPayer
	Emails Notifier
}

// Dispatch computes the seller's net amount for a completed purchase and
// sends it through exactly one backend. The payout row is written only
// after the backend confirms acceptance; the unique index on purchase_id
// is what makes concurrent dispatches safe.
func (s *Service) Dispatch(ctx context.Context, purchaseID uuid.UUID, feeOverrideCents *int64) (*domain.Payout, error) {
	var purchase domain.Purchase
	if err := s.DB.WithContext(ctx).Where("purchase_id = ?", purchaseID).First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("Purchase not found")
		}
		return nil, err
	}
	if purchase.TransferStatus != domain.TransferCompleted {
		return nil, fmt.Errorf("Payout requires a completed transfer (status %s)", purchase.TransferStatus)
	}

	var existing domain.Payout
	if err := s.DB.WithContext(ctx).Where("purchase_id = ?", purchaseID).First(&existing).Error; err == nil {
		return nil, errors.New("Payout already processed")
	}

	fee := purchase.ProcessingFeeCents
	if feeOverrideCents != nil {
		fee = *feeOverrideCents
	}
	if fee < 0 || fee > purchase.AmountPaidCents {
		return nil, errors.New("Processing fee must be between zero and the amount paid")
	}
	amount := purchase.AmountPaidCents - fee
	if amount <= 0 {
		return nil, errors.New("Payout amount must be positive")
	}

	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", purchase.ListingID).First(&listing).Error; err != nil {
		return nil, err
	}
	var seller domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", listing.SellerID).First(&seller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("Seller not found")
		}
		return nil, err
	}

	backendRef, err := s.route(ctx, &seller, amount, purchaseID)
	if err != nil {
		return nil, err
	}

	payout := &domain.Payout{
		PurchaseID:  purchaseID,
		SellerID:    seller.UserID,
		AmountCents: amount,
		Method:      seller.PayoutMethod,
		BackendRef:  backendRef,
		Status:      "completed",
		ProcessedAt: time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(payout).Error; err != nil {
		// A concurrent dispatch won the unique index; the backend calls are
		// idempotent on the purchase id, so no funds moved twice.
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, errors.New("Payout already processed")
		}
		return nil, err
	}

	if s.Emails != nil {
		sellerEmail, domainName, method := seller.Email, listing.DomainName, string(seller.PayoutMethod)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := s.Emails.SendPayoutSent(ctx, sellerEmail, domainName, method, amount); err != nil {
				log.Warn().Err(err).Str("purchase_id", purchaseID.String()).Msg("Payout email failed")
			}
		}()
	}
	return payout, nil
}

// route dispatches through the seller's preferred backend. It fails closed
// on a missing or unpayable account rather than attempting the transfer.
func (s *Service) route(ctx context.Context, seller *domain.User, amountCents int64, purchaseID uuid.UUID) (string, error) {
	switch seller.PayoutMethod {
	case domain.PayoutMethodStripe:
		if seller.StripeAccountID == nil || *seller.StripeAccountID == "" {
			return "", errors.New("Connect a Stripe payout account first")
		}
		if s.Stripe == nil {
			return "", errors.New("Stripe payouts not configured")
		}
		enabled, err := s.Stripe.AccountPayoutsEnabled(ctx, *seller.StripeAccountID)
		if err != nil {
			return "", errors.New("Stripe payout account check failed")
		}
		if !enabled {
			return "", errors.New("Stripe payout account is not ready to receive payouts")
		}
		ref, err := s.Stripe.Transfer(ctx, amountCents, *seller.StripeAccountID, "payout-"+purchaseID.String())
		if err != nil {
			log.Error().Err(err).Str("purchase_id", purchaseID.String()).Msg("Stripe transfer failed")
			return "", errors.New("Payout backend rejected the transfer")
		}
		return ref, nil
	case domain.PayoutMethodPaypal:
		if seller.PaypalEmail == nil || !validation.IsValidEmail(*seller.PaypalEmail) {
			return "", errors.New("Add a valid PayPal email first")
		}
		if s.Paypal == nil {
			return "", errors.New("PayPal payouts not configured")
		}
		ref, err := s.Paypal.Payout(ctx, amountCents, *seller.PaypalEmail, purchaseID.String())
		if err != nil {
			log.Error().Err(err).Str("purchase_id", purchaseID.String()).Msg("PayPal payout failed")
			return "", errors.New("Payout backend rejected the transfer")
		}
		return ref, nil
	default:
		return "", fmt.Errorf("Unknown payout method %q", seller.PayoutMethod)
	}
}

// GetSellerPayouts returns the seller's payout history, newest first.
func (s *Service) GetSellerPayouts(ctx context.Context, sellerID uuid.UUID) ([]domain.Payout, error) {
	var out []domain.Payout
	if err := s.DB.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order(`"createdAt" DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
