package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutMethod selects which payout backend carries the funds.
type PayoutMethod string

const (
	PayoutMethodStripe PayoutMethod = "stripe"
	PayoutMethodPaypal PayoutMethod = "paypal"
)

// Payout records funds sent to a seller for one completed purchase.
// The unique index on purchase_id is the storage-level guarantee that a
// purchase is paid out at most once, even under concurrent dispatches.
type Payout struct {
	PayoutID    uuid.UUID    `gorm:"column:payout_id;type:uuid;primaryKey" json:"payout_id"`
	PurchaseID  uuid.UUID    `gorm:"column:purchase_id;type:uuid;not null;uniqueIndex" json:"purchase_id"`
	SellerID    uuid.UUID    `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	AmountCents int64        `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Method      PayoutMethod `gorm:"column:method;type:varchar(16);not null" json:"method"`
	BackendRef  string       `gorm:"column:backend_ref;not null" json:"backend_ref"`
	Status      string       `gorm:"column:status;not null" json:"status"`
	ProcessedAt time.Time    `gorm:"column:processed_at;not null" json:"processed_at"`
	CreatedAt   time.Time    `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Payout) TableName() string {
	return "Payouts"
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.PayoutID == uuid.Nil {
		p.PayoutID = uuid.New()
	}
	return nil
}
