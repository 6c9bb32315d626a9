package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a seller or administrator account. Buyers do not hold accounts;
// a purchase only carries the buyer's email.
type User struct {
	UserID       uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Fullname     string         `gorm:"column:fullname;not null" json:"fullname"`
	Email        string         `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	Role         string         `gorm:"column:role;not null;default:seller" json:"role"`
	// Payout routing. Method picks the backend; the matching account field
	// must be present before a payout can be dispatched.
	PayoutMethod    PayoutMethod `gorm:"column:payout_method;type:varchar(16);not null;default:'paypal'" json:"payout_method"`
	StripeAccountID *string      `gorm:"column:stripe_account_id" json:"stripe_account_id"`
	PaypalEmail     *string      `gorm:"column:paypal_email" json:"paypal_email"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "Users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}
