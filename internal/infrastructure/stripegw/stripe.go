package stripegw

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Gateway wraps the Stripe SDK behind the small interfaces the services
// declare: checkout sessions (capture), refunds, sub-accounts and
// transfers (payouts).
type Gateway struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// New builds a Gateway from the secret key. Redirect URLs land the buyer
// back on the storefront after Stripe Checkout.
func New(secretKey, successURL, cancelURL string) *Gateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	if successURL == "" {
		successURL = "https://lapsly.io/checkout/success"
	}
	if cancelURL == "" {
		cancelURL = "https://lapsly.io/checkout/cancel"
	}
	return &Gateway{api: api, successURL: successURL, cancelURL: cancelURL}
}

// CreateSession opens a Checkout Session. Metadata is attached to both the
// session and the payment intent so either webhook event can be matched
// back; the idempotency key stops concurrent duplicate captures.
func (g *Gateway) CreateSession(ctx context.Context, amountCents int64, idempotencyKey string, metadata map[string]string) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(amountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Lapsly"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)
	params.Metadata = metadata

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", "", err
	}
	return sess.ID, sess.URL, nil
}

// Refund refunds the full captured amount by payment intent reference.
func (g *Gateway) Refund(ctx context.Context, paymentIntentID string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// CreateAccount creates an Express sub-account for seller payouts.
func (g *Gateway) CreateAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
	}
	params.Context = ctx
	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

// AccountPayoutsEnabled reports whether the sub-account can receive funds.
func (g *Gateway) AccountPayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := g.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return false, err
	}
	return acct.PayoutsEnabled, nil
}

// Transfer moves funds to a seller sub-account; the idempotency key makes
// a retried dispatch a no-op on Stripe's side.
func (g *Gateway) Transfer(ctx context.Context, amountCents int64, accountID, idempotencyKey string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(accountID),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)
	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}
