package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransferStatus is the closed set of escrow states for a purchase.
// none -> initiated -> {completed | disputed}; disputed -> failed.
// completed and failed are terminal.
type TransferStatus string

const (
	TransferNone      TransferStatus = "none"
	TransferInitiated TransferStatus = "initiated"
	TransferCompleted TransferStatus = "completed"
	TransferDisputed  TransferStatus = "disputed"
	TransferFailed    TransferStatus = "failed"
)

// Purchase is one committed sale, created atomically with a successful
// payment capture. The partial unique index keeps at most one live
// purchase per listing while letting a refunded listing sell again.
type Purchase struct {
	PurchaseID         uuid.UUID      `gorm:"column:purchase_id;type:uuid;primaryKey" json:"purchase_id"`
	ListingID          uuid.UUID      `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:uniq_live_purchase_per_listing,where:transfer_status <> 'failed'" json:"listing_id"`
	BuyerEmail         string         `gorm:"column:buyer_email;not null" json:"buyer_email"`
	AmountPaidCents    int64          `gorm:"column:amount_paid_cents;not null" json:"amount_paid_cents"`
	ProcessingFeeCents int64          `gorm:"column:processing_fee_cents;not null" json:"processing_fee_cents"`
	SellerPayoutCents  int64          `gorm:"column:seller_payout_cents;not null" json:"seller_payout_cents"`
	PaymentIntentID    string         `gorm:"column:payment_intent_id;not null;uniqueIndex" json:"payment_intent_id"`
	TransferStatus     TransferStatus `gorm:"column:transfer_status;type:varchar(16);not null;default:'none'" json:"transfer_status"`
	AuthCode           *string        `gorm:"column:auth_code" json:"-"`
	TransferNotes      *string        `gorm:"column:transfer_notes" json:"transfer_notes"`
	TransferInitiatedAt *time.Time    `gorm:"column:transfer_initiated_at" json:"transfer_initiated_at"`
	// Set exactly once, at initiation; never recomputed on retries.
	BuyerConfirmationDeadline *time.Time `gorm:"column:buyer_confirmation_deadline;index" json:"buyer_confirmation_deadline"`
	DisputeReason             *string    `gorm:"column:dispute_reason" json:"dispute_reason"`
	DisputeOutcome            *string    `gorm:"column:dispute_outcome" json:"dispute_outcome"`
	DisputedAt                *time.Time `gorm:"column:disputed_at" json:"disputed_at"`
	DisputeResolvedAt         *time.Time `gorm:"column:dispute_resolved_at" json:"dispute_resolved_at"`
	RefundID                  *string    `gorm:"column:refund_id" json:"refund_id"`
	CompletedAt               *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt                 time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt                 time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Purchase) TableName() string {
	return "Purchases"
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.PurchaseID == uuid.Nil {
		p.PurchaseID = uuid.New()
	}
	return nil
}
