package sellers

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/pkg/constants"
	"lapsly-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountCreator creates a payment-processor sub-account for a seller.
type AccountCreator interface {
	CreateAccount(ctx context.Context, email string) (accountID string, err error)
}

// Notifier is the slice of the email sender registration uses. Nil = no-op.
type Notifier interface {
	SendWelcome(ctx context.Context, toEmail, fullname string) error
}

// Service holds seller account operations.
type Service struct {
	DB     *gorm.DB
	Stripe AccountCreator
	Emails Notifier
}

// CreateSellerInput matches the registration request body.
type CreateSellerInput struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateSeller registers a seller account. The caller sanitizes
// password_hash before returning the model.
func (s *Service) CreateSeller(ctx context.Context, in CreateSellerInput) (*domain.User, error) {
	if in.Email == "" || !validation.IsValidEmail(in.Email) {
		return nil, errors.New("Invalid email format")
	}
	if in.Password == "" || !validation.IsValidPassword(in.Password) {
		return nil, errors.New("Invalid password format")
	}
	trimmed := strings.TrimSpace(in.Fullname)
	if trimmed == "" {
		return nil, errors.New("Full name is required and must be a non-empty string")
	}
	if !validation.IsValidFullname(trimmed) {
		return nil, errors.New("Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)")
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	fullname := titleCaseAndNormalize(trimmed)

	var existing domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, errors.New("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Fullname:     fullname,
		Email:        email,
		PasswordHash: string(hash),
		Role:         constants.Seller,
		PayoutMethod: domain.PayoutMethodPaypal,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}

	if s.Emails != nil {
		toEmail, name := u.Email, u.Fullname
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := s.Emails.SendWelcome(ctx, toEmail, name); err != nil {
				log.Warn().Err(err).Str("email", toEmail).Msg("Welcome email failed")
			}
		}()
	}
	return u, nil
}

// PayoutSettingsInput matches the payout-settings request body. A nil
// field is left unchanged.
type PayoutSettingsInput struct {
	PayoutMethod *string `json:"payout_method"`
	PaypalEmail  *string `json:"paypal_email"`
}

// UpdatePayoutSettings changes how the seller gets paid. Switching to a
// backend with no linked account is allowed; dispatch fails closed on it.
func (s *Service) UpdatePayoutSettings(ctx context.Context, userID uuid.UUID, in PayoutSettingsInput) (*domain.User, error) {
	upd := make(map[string]interface{})
	if in.PayoutMethod != nil {
		m := domain.PayoutMethod(strings.ToLower(strings.TrimSpace(*in.PayoutMethod)))
		if m != domain.PayoutMethodStripe && m != domain.PayoutMethodPaypal {
			return nil, errors.New("Payout method must be stripe or paypal")
		}
		upd["payout_method"] = m
	}
	if in.PaypalEmail != nil {
		e := strings.TrimSpace(strings.ToLower(*in.PaypalEmail))
		if e != "" && !validation.IsValidEmail(e) {
			return nil, errors.New("Invalid PayPal email")
		}
		if e == "" {
			upd["paypal_email"] = nil
		} else {
			upd["paypal_email"] = e
		}
	}
	if len(upd) == 0 {
		return nil, errors.New("No valid update fields provided")
	}

	res := s.DB.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).Updates(upd)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.New("User not found")
	}
	return s.getUser(ctx, userID)
}

// ConnectStripe creates (or returns) the seller's Stripe sub-account and
// stores its id. Idempotent: a second call returns the existing account.
func (s *Service) ConnectStripe(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.StripeAccountID != nil && *u.StripeAccountID != "" {
		return u, nil
	}
	if s.Stripe == nil {
		return nil, errors.New("Payments not configured")
	}
	accountID, err := s.Stripe.CreateAccount(ctx, u.Email)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Stripe account creation failed")
		return nil, errors.New("Could not create a Stripe payout account")
	}
	if err := s.DB.WithContext(ctx).Model(&domain.User{}).
		Where("user_id = ?", userID).
		Update("stripe_account_id", accountID).Error; err != nil {
		return nil, err
	}
	return s.getUser(ctx, userID)
}

// GetSeller returns the seller profile by id.
func (s *Service) GetSeller(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.getUser(ctx, userID)
}

func (s *Service) getUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("User not found")
		}
		return nil, err
	}
	return &u, nil
}

func titleCaseAndNormalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	capitalize := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !capitalize {
				b.WriteRune(' ')
				capitalize = true
			}
			continue
		}
		if capitalize {
			b.WriteRune(unicode.ToUpper(r))
			capitalize = false
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
