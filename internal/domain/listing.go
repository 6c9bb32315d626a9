package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ListingStatus is the closed set of listing lifecycle states.
type ListingStatus string

const (
	ListingPendingPayment      ListingStatus = "pending_payment"
	ListingPendingVerification ListingStatus = "pending_verification"
	ListingActive              ListingStatus = "active"
	ListingSold                ListingStatus = "sold"
	ListingExpired             ListingStatus = "expired"
	ListingPaused              ListingStatus = "paused"
	ListingRemoved             ListingStatus = "removed"
)

// Listing is one domain offered for sale at the platform's fixed price.
// Status transitions happen only through conditional updates keyed on the
// current status, never through blind saves.
type Listing struct {
	ListingID         uuid.UUID      `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	DomainName        string         `gorm:"column:domain_name;not null;uniqueIndex" json:"domain_name"`
	SellerID          uuid.UUID      `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Status            ListingStatus  `gorm:"column:status;type:varchar(24);not null;default:'pending_payment'" json:"status"`
	VerificationToken string         `gorm:"column:verification_token;not null" json:"-"`
	VerifiedAt        *time.Time     `gorm:"column:verified_at" json:"verified_at"`
	ListedAt          *time.Time     `gorm:"column:listed_at" json:"listed_at"`
	DomainExpiresAt   *time.Time     `gorm:"column:domain_expires_at;index" json:"domain_expires_at"`
	Eligibility       datatypes.JSON `gorm:"column:eligibility;type:jsonb" json:"eligibility"`
	CreatedAt         time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "Listings"
}

// BeforeCreate sets listing_id if not already set (DBs without default uuid).
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	return nil
}

// EligibilityMeta is the lookup snapshot stored on the listing at creation.
type EligibilityMeta struct {
	AgeInMonths    int       `json:"age_in_months"`
	Registrar      string    `json:"registrar"`
	ExpirationDate time.Time `json:"expiration_date"`
}
