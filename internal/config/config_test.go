package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(900), cfg.ListingFeeCents)
	assert.Equal(t, int64(9900), cfg.SalePriceCents)
	assert.Equal(t, int64(1900), cfg.ProcessingFeeCents)
	assert.Equal(t, 7*24*time.Hour, cfg.ConfirmWindow)
	assert.Equal(t, []string{"com", "net", "org", "io", "co"}, cfg.SupportedTLDs)
	assert.Equal(t, "https://rdap.org", cfg.RDAPBaseURL)
	assert.Equal(t, "https://api-m.paypal.com", cfg.PaypalBaseURL)
}

func TestLoad_ExplicitZeroWaivesListingFee(t *testing.T) {
	t.Setenv("LISTING_FEE_CENTS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.ListingFeeCents)
}

func TestLoad_ExplicitZeroFees(t *testing.T) {
	t.Setenv("PROCESSING_FEE_CENTS", "0")
	t.Setenv("SALE_PRICE_CENTS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.ProcessingFeeCents)
	assert.Equal(t, int64(0), cfg.SalePriceCents)
}

func TestLoad_ExplicitAmounts(t *testing.T) {
	t.Setenv("LISTING_FEE_CENTS", "1500")
	t.Setenv("SALE_PRICE_CENTS", "12900")
	t.Setenv("CONFIRM_WINDOW_DAYS", "3")
	t.Setenv("SUPPORTED_TLDS", ".com, DEV,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1500), cfg.ListingFeeCents)
	assert.Equal(t, int64(12900), cfg.SalePriceCents)
	assert.Equal(t, 3*24*time.Hour, cfg.ConfirmWindow)
	assert.Equal(t, []string{"com", "dev"}, cfg.SupportedTLDs)
}
