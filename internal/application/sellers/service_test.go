package sellers

import (
	"context"
	"errors"
	"testing"

	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeAccounts struct {
	err   error
	calls int
}

func (f *fakeAccounts) CreateAccount(ctx context.Context, email string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "acct_new_123", nil
}

func setupSellers(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	return &Service{DB: db, Stripe: &fakeAccounts{}}, db
}

func validInput() CreateSellerInput {
	return CreateSellerInput{
		Fullname: "  pat   o'neill ",
		Email:    "Pat@Example.com",
		Password: "s3cret-pass!",
	}
}

func TestCreateSeller_NormalizesAndDefaults(t *testing.T) {
	svc, _ := setupSellers(t)

	u, err := svc.CreateSeller(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "Pat O'neill", u.Fullname)
	assert.Equal(t, "pat@example.com", u.Email)
	assert.Equal(t, constants.Seller, u.Role)
	assert.Equal(t, domain.PayoutMethodPaypal, u.PayoutMethod)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-pass!")))
}

func TestCreateSeller_DuplicateEmail(t *testing.T) {
	svc, _ := setupSellers(t)
	_, err := svc.CreateSeller(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Email = "PAT@example.COM"
	_, err = svc.CreateSeller(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, "Email already registered", err.Error())
}

func TestCreateSeller_Validation(t *testing.T) {
	svc, _ := setupSellers(t)

	in := validInput()
	in.Email = "not-an-email"
	_, err := svc.CreateSeller(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, "Invalid email format", err.Error())

	in = validInput()
	in.Password = "short"
	_, err = svc.CreateSeller(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, "Invalid password format", err.Error())

	in = validInput()
	in.Fullname = "   "
	_, err = svc.CreateSeller(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, "Full name is required and must be a non-empty string", err.Error())

	in = validInput()
	in.Fullname = "Pat <script>"
	_, err = svc.CreateSeller(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid characters")
}

func TestUpdatePayoutSettings(t *testing.T) {
	svc, _ := setupSellers(t)
	u, err := svc.CreateSeller(context.Background(), validInput())
	require.NoError(t, err)

	method := "stripe"
	updated, err := svc.UpdatePayoutSettings(context.Background(), u.UserID, PayoutSettingsInput{PayoutMethod: &method})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutMethodStripe, updated.PayoutMethod)

	email := "Payee@Example.com"
	updated, err = svc.UpdatePayoutSettings(context.Background(), u.UserID, PayoutSettingsInput{PaypalEmail: &email})
	require.NoError(t, err)
	require.NotNil(t, updated.PaypalEmail)
	assert.Equal(t, "payee@example.com", *updated.PaypalEmail)

	// An empty string clears the linked address.
	empty := ""
	updated, err = svc.UpdatePayoutSettings(context.Background(), u.UserID, PayoutSettingsInput{PaypalEmail: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.PaypalEmail)
}

func TestUpdatePayoutSettings_Rejections(t *testing.T) {
	svc, _ := setupSellers(t)
	u, err := svc.CreateSeller(context.Background(), validInput())
	require.NoError(t, err)

	bad := "venmo"
	_, err = svc.UpdatePayoutSettings(context.Background(), u.UserID, PayoutSettingsInput{PayoutMethod: &bad})
	require.Error(t, err)
	assert.Equal(t, "Payout method must be stripe or paypal", err.Error())

	badEmail := "not-an-email"
	_, err = svc.UpdatePayoutSettings(context.Background(), u.UserID, PayoutSettingsInput{PaypalEmail: &badEmail})
	require.Error(t, err)
	assert.Equal(t, "Invalid PayPal email", err.Error())

	_, err = svc.UpdatePayoutSettings(context.Background(), u.UserID, PayoutSettingsInput{})
	require.Error(t, err)
	assert.Equal(t, "No valid update fields provided", err.Error())

	method := "stripe"
	_, err = svc.UpdatePayoutSettings(context.Background(), uuid.New(), PayoutSettingsInput{PayoutMethod: &method})
	require.Error(t, err)
	assert.Equal(t, "User not found", err.Error())
}

func TestConnectStripe_Idempotent(t *testing.T) {
	svc, _ := setupSellers(t)
	fa := svc.Stripe.(*fakeAccounts)
	u, err := svc.CreateSeller(context.Background(), validInput())
	require.NoError(t, err)

	connected, err := svc.ConnectStripe(context.Background(), u.UserID)
	require.NoError(t, err)
	require.NotNil(t, connected.StripeAccountID)
	assert.Equal(t, "acct_new_123", *connected.StripeAccountID)

	again, err := svc.ConnectStripe(context.Background(), u.UserID)
	require.NoError(t, err)
	assert.Equal(t, "acct_new_123", *again.StripeAccountID)
	assert.Equal(t, 1, fa.calls)
}

func TestConnectStripe_BackendFailure(t *testing.T) {
	svc, _ := setupSellers(t)
	svc.Stripe = &fakeAccounts{err: errors.New("stripe rejected the request")}
	u, err := svc.CreateSeller(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.ConnectStripe(context.Background(), u.UserID)
	require.Error(t, err)
	assert.Equal(t, "Could not create a Stripe payout account", err.Error())

	fresh, err := svc.GetSeller(context.Background(), u.UserID)
	require.NoError(t, err)
	assert.Nil(t, fresh.StripeAccountID)
}
