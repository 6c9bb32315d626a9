package router

import (
	"context"
	"net"
	"net/http"

	eligsvc "lapsly-backend/internal/application/eligibility"
	emailsvc "lapsly-backend/internal/application/emails"
	escrowsvc "lapsly-backend/internal/application/escrow"
	listsvc "lapsly-backend/internal/application/listings"
	payoutsvc "lapsly-backend/internal/application/payouts"
	sellersvc "lapsly-backend/internal/application/sellers"
	sweepsvc "lapsly-backend/internal/application/sweep"
	"lapsly-backend/internal/config"
	"lapsly-backend/internal/infrastructure/database"
	"lapsly-backend/internal/infrastructure/stripegw"
	authhandler "lapsly-backend/internal/interfaces/handlers/auth"
	checkouthandler "lapsly-backend/internal/interfaces/handlers/checkout"
	escrowhandler "lapsly-backend/internal/interfaces/handlers/escrow"
	healthhandler "lapsly-backend/internal/interfaces/handlers/health"
	jobshandler "lapsly-backend/internal/interfaces/handlers/jobs"
	listhandler "lapsly-backend/internal/interfaces/handlers/listings"
	payhandler "lapsly-backend/internal/interfaces/handlers/payments"
	payouthandler "lapsly-backend/internal/interfaces/handlers/payouts"
	sellerhandler "lapsly-backend/internal/interfaces/handlers/sellers"
	"lapsly-backend/internal/middleware"
	"lapsly-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// The webhook is registered before the session middleware so nothing
	// consumes the raw body Stripe signed.
	stripeWebhook := &payhandler.WebhookHandler{WebhookSecret: cfg.StripeWebhookSecret}
	app.Post("/api/v1/stripe/webhook", func(c *fiber.Ctx) error {
		return stripeWebhook.HandleWebhook(c)
	})

	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		hh.DB = &gormDBPinger{db: db}
		hh.Gorm = db
	}

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}

	if db != nil {
		ah := &authhandler.Handlers{DB: db, Rdb: rdb, Config: sessionCfg}
		authGroup := app.Group("/api/v1/auth")
		authGroup.Post("/login", ah.Login)
		authGroup.Get("/me", ah.Me)
		authGroup.Delete("/logout", ah.Logout)

		var emailSender emailsvc.Sender
		if cfg.SendinblueAPIKey != "" {
			emailSender = &emailsvc.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
		}

		var gateway *stripegw.Gateway
		if cfg.StripeSecretKey != "" {
			gateway = stripegw.New(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
		}

		// Eligibility gate backed by public RDAP.
		es := &eligsvc.Service{
			Lookup: &eligsvc.RDAPClient{BaseURL: cfg.RDAPBaseURL},
			Policy: eligsvc.DefaultPolicy(cfg.SupportedTLDs),
		}

		ls := &listsvc.Service{
			DB:          db,
			Eligibility: es,
			Resolver:    net.DefaultResolver,
			Config:      listsvc.Config{ListingFeeCents: cfg.ListingFeeCents},
		}
		if gateway != nil {
			ls.FeeSessions = gateway
		}

		escrow := &escrowsvc.Service{
			DB: db,
			Config: escrowsvc.Config{
				SalePriceCents:     cfg.SalePriceCents,
				ProcessingFeeCents: cfg.ProcessingFeeCents,
				ConfirmWindow:      cfg.ConfirmWindow,
			},
		}
		if gateway != nil {
			escrow.Checkout = gateway
			escrow.Refunder = gateway
		}
		if emailSender != nil {
			escrow.Emails = emailSender
		}

		payouts := &payoutsvc.Service{DB: db}
		if gateway != nil {
			payouts.Stripe = gateway
		}
		if cfg.PaypalClientID != "" && cfg.PaypalClientSecret != "" {
			payouts.Paypal = &payoutsvc.PaypalClient{
				BaseURL:      cfg.PaypalBaseURL,
				ClientID:     cfg.PaypalClientID,
				ClientSecret: cfg.PaypalClientSecret,
			}
		}
		if emailSender != nil {
			payouts.Emails = emailSender
		}

		// Completed transfers trigger an automatic payout attempt; failures
		// stay retryable through the admin dispatch endpoint.
		escrow.OnCompleted = func(purchaseID uuid.UUID) {
			if _, err := payouts.Dispatch(context.Background(), purchaseID, nil); err != nil {
				log.Warn().Err(err).Str("purchase_id", purchaseID.String()).Msg("Automatic payout dispatch failed")
			}
		}

		stripeWebhook.Listings = ls
		stripeWebhook.Escrow = escrow

		ss := &sellersvc.Service{DB: db}
		if gateway != nil {
			ss.Stripe = gateway
		}
		if emailSender != nil {
			ss.Emails = emailSender
		}

		// Sellers: registration is public, the rest needs a session.
		sh := &sellerhandler.Handlers{Service: ss}
		app.Post("/api/v1/users/create-user", sh.CreateSeller)
		sg := app.Group("/api/v1/sellers", middleware.RequireAuth())
		sg.Get("/view-profile", sh.GetProfile)
		sg.Patch("/payout-settings", sh.UpdatePayoutSettings)
		sg.Post("/connect-stripe", sh.ConnectStripe)

		// Listings: browse is the public storefront.
		lh := &listhandler.Handlers{Service: ls}
		app.Get("/api/v1/listings/browse", lh.Browse)
		lg := app.Group("/api/v1/listings", middleware.RequireAuth())
		lg.Post("/create-listing", middleware.AuthorizePermission(constants.CreateListing), lh.CreateListing)
		lg.Get("/get-seller-listings", lh.GetMyListings)
		lg.Get("/get-listing/:listing_id", lh.GetListingByID)
		lg.Post("/create-fee-session/:listing_id", middleware.AuthorizePermission(constants.ManageOwnListings), lh.CreateFeeSession)
		lg.Post("/verify-domain/:listing_id", middleware.AuthorizePermission(constants.ManageOwnListings), lh.VerifyDomain)
		lg.Post("/restore-listing/:listing_id", middleware.AuthorizePermission(constants.ManageOwnListings), lh.RestoreListing)
		lg.Delete("/remove-listing/:listing_id", middleware.AuthorizePermission(constants.ManageOwnListings), lh.RemoveListing)
		lg.Post("/pause-listing/:listing_id", middleware.AuthorizePermission(constants.ModerateListings), lh.PauseListing)
		lg.Post("/resume-listing/:listing_id", middleware.AuthorizePermission(constants.ModerateListings), lh.ResumeListing)

		// Checkout: buyers have no account, the endpoint is public.
		ch := &checkouthandler.Handlers{Escrow: escrow}
		app.Post("/api/v1/checkout/create-session", ch.CreateSession)

		// Escrow: confirm and open-dispute are buyer-facing and public; the
		// purchase id plus the stored email is the buyer's identity.
		eh := &escrowhandler.Handlers{Service: escrow}
		app.Post("/api/v1/escrow/confirm-transfer/:purchase_id", eh.ConfirmTransfer)
		app.Post("/api/v1/escrow/open-dispute/:purchase_id", eh.OpenDispute)
		eg := app.Group("/api/v1/escrow", middleware.RequireAuth())
		eg.Get("/get-seller-purchases", eh.GetMyPurchases)
		eg.Get("/get-purchase/:purchase_id", eh.GetPurchase)
		eg.Post("/initiate-transfer/:purchase_id", middleware.AuthorizePermission(constants.InitiateTransfer), eh.InitiateTransfer)
		eg.Post("/admin-open-dispute/:purchase_id", middleware.AuthorizePermission(constants.ResolveDisputes), eh.AdminOpenDispute)
		eg.Post("/resolve-dispute/:purchase_id", middleware.AuthorizePermission(constants.ResolveDisputes), eh.ResolveDispute)
		eg.Post("/admin-complete/:purchase_id", middleware.AuthorizePermission(constants.OverrideTransfers), eh.AdminComplete)

		// Payouts
		ph := &payouthandler.Handlers{Service: payouts}
		pg := app.Group("/api/v1/payouts", middleware.RequireAuth())
		pg.Post("/dispatch", middleware.AuthorizePermission(constants.DispatchPayouts), ph.Dispatch)
		pg.Get("/get-seller-payouts", middleware.AuthorizePermission(constants.ViewPayouts), ph.GetMyPayouts)

		// Jobs: run by an external cron with the shared sweep secret.
		jh := &jobshandler.Handlers{
			Sweep:       &sweepsvc.Service{DB: db},
			SweepSecret: cfg.SweepSecret,
		}
		app.Post("/api/v1/jobs/run-sweep", jh.RunSweep)
	}

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
