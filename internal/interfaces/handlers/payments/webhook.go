package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lapsly-backend/internal/application/escrow"
	"lapsly-backend/internal/application/listings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebhookHandler processes Stripe events. Fee captures advance listings;
// purchase captures create escrow records.
type WebhookHandler struct {
	Listings      *listings.Service
	Escrow        *escrow.Service
	WebhookSecret string
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type paymentIntentObject struct {
	ID             string            `json:"id"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

// HandleWebhook POST /api/v1/stripe/webhook — raw body, signature
// verification, then process. Domain errors still return 200 so Stripe
// does not retry forever.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(400).SendString("Webhook Error: empty body")
	}

	if err := verifyStripeSignature(rawBody, sig, wh.WebhookSecret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.WebhookSecret != "").Msg("Stripe webhook signature verification failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Stripe webhook JSON parse failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess checkoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &sess); err != nil {
			return c.Status(200).SendString("ok")
		}
		if err := wh.handleSessionCompleted(c, sess); err != nil {
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Listing fee confirmation failed")
		}
	case "payment_intent.succeeded":
		var pi paymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return c.Status(200).SendString("ok")
		}
		if err := wh.handlePaymentIntentSucceeded(c, pi); err != nil {
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Purchase capture failed")
		}
	}

	return c.Status(200).SendString("ok")
}

func (wh *WebhookHandler) handleSessionCompleted(c *fiber.Ctx, sess checkoutSessionObject) error {
	if sess.Metadata["purpose"] != "listing_fee" {
		return nil
	}
	listingID, err := uuid.Parse(sess.Metadata["listing_id"])
	if err != nil {
		return nil // skip silently, malformed metadata
	}
	return wh.Listings.ConfirmListingFee(c.Context(), listingID)
}

func (wh *WebhookHandler) handlePaymentIntentSucceeded(c *fiber.Ctx, pi paymentIntentObject) error {
	if pi.Metadata["purpose"] != "purchase" {
		return nil
	}
	listingID, err := uuid.Parse(pi.Metadata["listing_id"])
	if err != nil {
		return nil
	}
	buyerEmail := pi.Metadata["buyer_email"]
	if buyerEmail == "" || pi.AmountReceived <= 0 {
		return nil
	}
	return wh.Escrow.RecordCapture(c.Context(), pi.ID, listingID, buyerEmail, pi.AmountReceived)
}

// verifyStripeSignature verifies the Stripe-Signature header using the
// webhook secret.
func verifyStripeSignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(sigHeader, ",")
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			// 5 minute tolerance
			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				return errors.New("invalid timestamp")
			}
			diff := time.Now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > 300 {
				return errors.New("timestamp too old")
			}
			return nil
		}
	}

	return errors.New("signature mismatch")
}
