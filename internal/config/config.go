package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	StripeSecretKey     string
	StripeWebhookSecret string
	SweepSecret         string // shared secret for the scheduled sweep endpoint
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	PaypalClientID      string
	PaypalClientSecret  string
	PaypalBaseURL       string // live API by default; point at sandbox in dev
	SendinblueAPIKey    string // SENDINBLUE_API_KEY for transactional emails (Brevo)
	MailFrom            string // MAIL_FROM sender email (default noreply@lapsly.io)
	RDAPBaseURL         string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// Marketplace policy. Amounts are cents; the sale price is fixed
	// platform-wide, not set per listing.
	ListingFeeCents    int64 // 0 waives the fee (new listings skip pending_payment)
	SalePriceCents     int64
	ProcessingFeeCents int64
	ConfirmWindow      time.Duration // buyer confirmation window after transfer initiation
	SupportedTLDs      []string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		SweepSecret:         viper.GetString("SWEEP_SECRET"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		PaypalClientID:      viper.GetString("PAYPAL_CLIENT_ID"),
		PaypalClientSecret:  viper.GetString("PAYPAL_CLIENT_SECRET"),
		PaypalBaseURL:       defaultStr(viper.GetString("PAYPAL_BASE_URL"), "https://api-m.paypal.com"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
		RDAPBaseURL:         defaultStr(viper.GetString("RDAP_BASE_URL"), "https://rdap.org"),
		CheckoutSuccessURL:  viper.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   viper.GetString("CHECKOUT_CANCEL_URL"),
		ListingFeeCents:     int64Or("LISTING_FEE_CENTS", 900),
		SalePriceCents:      int64Or("SALE_PRICE_CENTS", 9900),
		ProcessingFeeCents:  int64Or("PROCESSING_FEE_CENTS", 1900),
		ConfirmWindow:       confirmWindow(viper.GetInt("CONFIRM_WINDOW_DAYS")),
		SupportedTLDs:       supportedTLDs(viper.GetString("SUPPORTED_TLDS")),
	}, nil
}

func defaultStr(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// int64Or falls back only when the key is absent. An explicit 0 is a real
// value: LISTING_FEE_CENTS=0 waives the listing fee.
func int64Or(key string, def int64) int64 {
	if viper.IsSet(key) {
		return viper.GetInt64(key)
	}
	return def
}

func confirmWindow(days int) time.Duration {
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func supportedTLDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{"com", "net", "org", "io", "co"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, strings.TrimPrefix(p, "."))
		}
	}
	return out
}
