package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"lapsly-backend/internal/domain"
	"lapsly-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCheckout struct {
	lastKey string
	calls   int
}

func (f *fakeCheckout) CreateSession(ctx context.Context, amountCents int64, idempotencyKey string, metadata map[string]string) (string, string, error) {
	f.calls++
	f.lastKey = idempotencyKey
	return "cs_test_456", "https://checkout.test/cs_test_456", nil
}

type fakeRefunder struct {
	err   error
	calls int
}

func (f *fakeRefunder) Refund(ctx context.Context, paymentIntentID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "re_test_789", nil
}

func setupEscrow(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Listing{}, &domain.Purchase{}))

	svc := &Service{
		DB:       db,
		Checkout: &fakeCheckout{},
		Refunder: &fakeRefunder{},
		Config: Config{
			SalePriceCents:     9900,
			ProcessingFeeCents: 1900,
			ConfirmWindow:      7 * 24 * time.Hour,
		},
	}
	return svc, db
}

func seedListing(t *testing.T, db *gorm.DB, status domain.ListingStatus) (*domain.Listing, uuid.UUID) {
	sellerID := uuid.New()
	listing := &domain.Listing{
		DomainName: "escrow-" + uuid.New().String()[:8] + ".com",
		SellerID:   sellerID,
		Status:     status,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing, sellerID
}

func seedPurchase(t *testing.T, svc *Service, db *gorm.DB) (*domain.Purchase, *domain.Listing, Actor) {
	listing, sellerID := seedListing(t, db, domain.ListingActive)
	pi := "pi_" + uuid.New().String()[:8]
	require.NoError(t, svc.RecordCapture(context.Background(), pi, listing.ListingID, "Buyer@Example.com", 9900))

	var purchase domain.Purchase
	require.NoError(t, db.Where("payment_intent_id = ?", pi).First(&purchase).Error)
	return &purchase, listing, Actor{UserID: sellerID, Role: constants.Seller}
}

func TestCreateCheckoutSession_ActiveListingOnly(t *testing.T) {
	svc, db := setupEscrow(t)
	listing, _ := seedListing(t, db, domain.ListingPaused)

	_, err := svc.CreateCheckoutSession(context.Background(), listing.ListingID, "buyer@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available for purchase")
}

func TestCreateCheckoutSession_BlockedByLivePurchase(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, _ := seedPurchase(t, svc, db)

	_, err := svc.CreateCheckoutSession(context.Background(), purchase.ListingID, "second@example.com")
	require.Error(t, err)
	assert.Equal(t, "Listing is already being purchased", err.Error())
}

func TestCreateCheckoutSession_KeyCountsFailedPurchases(t *testing.T) {
	svc, db := setupEscrow(t)
	listing, _ := seedListing(t, db, domain.ListingActive)
	fc := svc.Checkout.(*fakeCheckout)

	_, err := svc.CreateCheckoutSession(context.Background(), listing.ListingID, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "purchase-"+listing.ListingID.String()+"-0", fc.lastKey)

	// A refunded purchase frees the listing and bumps the key.
	require.NoError(t, db.Create(&domain.Purchase{
		ListingID:       listing.ListingID,
		BuyerEmail:      "buyer@example.com",
		PaymentIntentID: "pi_failed_1",
		TransferStatus:  domain.TransferFailed,
	}).Error)

	_, err = svc.CreateCheckoutSession(context.Background(), listing.ListingID, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "purchase-"+listing.ListingID.String()+"-1", fc.lastKey)
}

func TestRecordCapture_IdempotentAndFeeCapped(t *testing.T) {
	svc, db := setupEscrow(t)
	listing, _ := seedListing(t, db, domain.ListingActive)

	require.NoError(t, svc.RecordCapture(context.Background(), "pi_small", listing.ListingID, "buyer@example.com", 1000))
	require.NoError(t, svc.RecordCapture(context.Background(), "pi_small", listing.ListingID, "buyer@example.com", 1000))

	var purchases []domain.Purchase
	require.NoError(t, db.Where("payment_intent_id = ?", "pi_small").Find(&purchases).Error)
	require.Len(t, purchases, 1)
	// The fee never exceeds the captured amount.
	assert.Equal(t, int64(1000), purchases[0].ProcessingFeeCents)
	assert.Equal(t, int64(0), purchases[0].SellerPayoutCents)
	assert.Equal(t, "buyer@example.com", purchases[0].BuyerEmail)
}

func TestInitiateTransfer_DeadlineSetOnce(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, actor := seedPurchase(t, svc, db)

	initiated, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "transfer notes")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferInitiated, initiated.TransferStatus)
	require.NotNil(t, initiated.BuyerConfirmationDeadline)
	firstDeadline := *initiated.BuyerConfirmationDeadline

	_, err = svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-2", "")
	require.Error(t, err)
	assert.Equal(t, "Transfer cannot be initiated from status initiated", err.Error())

	var current domain.Purchase
	require.NoError(t, db.Where("purchase_id = ?", purchase.PurchaseID).First(&current).Error)
	assert.True(t, current.BuyerConfirmationDeadline.Equal(firstDeadline))
	require.NotNil(t, current.AuthCode)
	assert.Equal(t, "EPP-AUTH-1", *current.AuthCode)
}

func TestInitiateTransfer_RequiresAuthCode(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, actor := seedPurchase(t, svc, db)

	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "  ", "")
	require.Error(t, err)
	assert.Equal(t, "Transfer auth code is required", err.Error())
}

func TestInitiateTransfer_WrongSellerSeesNotFound(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, _ := seedPurchase(t, svc, db)

	other := Actor{UserID: uuid.New(), Role: constants.Seller}
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, other, "EPP-AUTH-1", "")
	require.Error(t, err)
	assert.Equal(t, "Purchase not found", err.Error())
}

func TestConfirmTransfer_CompletesAndMarksSold(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, listing, actor := seedPurchase(t, svc, db)

	completed := make(chan uuid.UUID, 1)
	svc.OnCompleted = func(id uuid.UUID) { completed <- id }

	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)

	// Email comparison is case-insensitive.
	done, err := svc.ConfirmTransfer(context.Background(), purchase.PurchaseID, "BUYER@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCompleted, done.TransferStatus)
	assert.NotNil(t, done.CompletedAt)

	var currentListing domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&currentListing).Error)
	assert.Equal(t, domain.ListingSold, currentListing.Status)

	select {
	case id := <-completed:
		assert.Equal(t, purchase.PurchaseID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("completion hook did not fire")
	}
}

func TestConfirmTransfer_WrongEmailDoesNotLeak(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, actor := seedPurchase(t, svc, db)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)

	_, err = svc.ConfirmTransfer(context.Background(), purchase.PurchaseID, "stranger@example.com")
	require.Error(t, err)
	assert.Equal(t, "Purchase not found", err.Error())
}

func TestConfirmTransfer_RequiresInitiated(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, _ := seedPurchase(t, svc, db)

	_, err := svc.ConfirmTransfer(context.Background(), purchase.PurchaseID, "buyer@example.com")
	require.Error(t, err)
	assert.Equal(t, "Transfer has not been initiated", err.Error())
}

func TestAdminComplete_RemovedListingKeepsItsStatus(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, listing, actor := seedPurchase(t, svc, db)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)

	// The seller pulled the listing while the transfer was in flight. The
	// purchase still completes; the listing does not flip to sold.
	require.NoError(t, db.Model(&domain.Listing{}).
		Where("listing_id = ?", listing.ListingID).
		Update("status", domain.ListingRemoved).Error)

	completed, err := svc.AdminCompleteTransfer(context.Background(), purchase.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCompleted, completed.TransferStatus)

	var after domain.Listing
	require.NoError(t, db.First(&after, "listing_id = ?", listing.ListingID).Error)
	assert.Equal(t, domain.ListingRemoved, after.Status)
}

func TestOpenDispute_WithinWindow(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, actor := seedPurchase(t, svc, db)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)

	disputed, err := svc.OpenDispute(context.Background(), purchase.PurchaseID, "buyer@example.com", "Auth code rejected by registrar")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferDisputed, disputed.TransferStatus)
	require.NotNil(t, disputed.DisputeReason)
	assert.Equal(t, "Auth code rejected by registrar", *disputed.DisputeReason)
	assert.NotNil(t, disputed.DisputedAt)
}

func TestOpenDispute_AfterDeadlineRefused(t *testing.T) {
	svc, db := setupEscrow(t)
	svc.Config.ConfirmWindow = -time.Hour // deadline already in the past
	purchase, _, actor := seedPurchase(t, svc, db)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)

	_, err = svc.OpenDispute(context.Background(), purchase.PurchaseID, "buyer@example.com", "too late")
	require.Error(t, err)
	assert.Equal(t, "Confirmation window has elapsed; the dispute will be opened automatically", err.Error())
}

func TestDispute_CompletedTransferRejected(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, actor := seedPurchase(t, svc, db)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)
	_, err = svc.ConfirmTransfer(context.Background(), purchase.PurchaseID, "buyer@example.com")
	require.NoError(t, err)

	_, err = svc.AdminOpenDispute(context.Background(), purchase.PurchaseID, "post-hoc complaint")
	require.Error(t, err)
	assert.Equal(t, "Cannot dispute a completed transfer", err.Error())
}

func TestResolveDispute_RefundsThenFails(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, listing, actor := seedPurchase(t, svc, db)
	fr := svc.Refunder.(*fakeRefunder)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)
	_, err = svc.OpenDispute(context.Background(), purchase.PurchaseID, "buyer@example.com", "never received")
	require.NoError(t, err)

	resolved, err := svc.ResolveDispute(context.Background(), purchase.PurchaseID, "Refunded: transfer never arrived")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferFailed, resolved.TransferStatus)
	require.NotNil(t, resolved.RefundID)
	assert.Equal(t, "re_test_789", *resolved.RefundID)
	assert.Equal(t, 1, fr.calls)

	// The listing stays purchasable; the failed purchase no longer blocks it.
	var currentListing domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&currentListing).Error)
	assert.Equal(t, domain.ListingActive, currentListing.Status)

	_, err = svc.ResolveDispute(context.Background(), purchase.PurchaseID, "again")
	require.Error(t, err)
	assert.Equal(t, "Purchase already refunded", err.Error())
}

func TestResolveDispute_RefundFailureLeavesStateUntouched(t *testing.T) {
	svc, db := setupEscrow(t)
	svc.Refunder = &fakeRefunder{err: errors.New("stripe is down")}
	purchase, _, actor := seedPurchase(t, svc, db)
	_, err := svc.InitiateTransfer(context.Background(), purchase.PurchaseID, actor, "EPP-AUTH-1", "")
	require.NoError(t, err)
	_, err = svc.OpenDispute(context.Background(), purchase.PurchaseID, "buyer@example.com", "never received")
	require.NoError(t, err)

	_, err = svc.ResolveDispute(context.Background(), purchase.PurchaseID, "refund")
	require.Error(t, err)
	assert.Equal(t, "Refund failed, no changes were made", err.Error())

	var current domain.Purchase
	require.NoError(t, db.Where("purchase_id = ?", purchase.PurchaseID).First(&current).Error)
	assert.Equal(t, domain.TransferDisputed, current.TransferStatus)
	assert.Nil(t, current.RefundID)
}

func TestResolveDispute_RequiresDisputed(t *testing.T) {
	svc, db := setupEscrow(t)
	purchase, _, _ := seedPurchase(t, svc, db)

	_, err := svc.ResolveDispute(context.Background(), purchase.PurchaseID, "refund")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Purchase is not disputed")
}
