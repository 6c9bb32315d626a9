package sweep

import (
	"context"
	"time"

	"lapsly-backend/internal/application/escrow"
	"lapsly-backend/internal/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs the periodic maintenance pass: expire listings whose domain
// lapsed, and auto-dispute transfers whose confirmation window ran out.
// Both passes are single conditional bulk updates, so overlapping runs
// cannot double-apply a transition.
type Service struct {
	DB *gorm.DB
}

// Result reports how many rows each pass touched.
type Result struct {
	ExpiredListings int64 `json:"expired_listings"`
	DisputesOpened  int64 `json:"disputes_opened"`
}

// Run executes both passes against the clock value captured at entry.
// Comparisons are strict: a deadline equal to now has not elapsed yet.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	now := time.Now()
	out := &Result{}

	res := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("status = ? AND domain_expires_at IS NOT NULL AND domain_expires_at < ?", domain.ListingActive, now).
		Update("status", domain.ListingExpired)
	if res.Error != nil {
		return nil, res.Error
	}
	out.ExpiredListings = res.RowsAffected

	res = s.DB.WithContext(ctx).Model(&domain.Purchase{}).
		Where("transfer_status = ? AND buyer_confirmation_deadline IS NOT NULL AND buyer_confirmation_deadline < ?", domain.TransferInitiated, now).
		Updates(map[string]interface{}{
			"transfer_status": domain.TransferDisputed,
			"dispute_reason":  escrow.AutoDisputeReason,
			"disputed_at":     now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	out.DisputesOpened = res.RowsAffected

	if out.ExpiredListings > 0 || out.DisputesOpened > 0 {
		log.Info().
			Int64("expired_listings", out.ExpiredListings).
			Int64("disputes_opened", out.DisputesOpened).
			Msg("Sweep applied transitions")
	}
	return out, nil
}
