package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// PaypalClient dispatches payouts via the PayPal Payouts API: OAuth
// client-credentials token exchange, then a single-item payout batch keyed
// by sender_item_id. Non-2xx responses are failures with the
// backend-supplied message.
type PaypalClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Client       *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type paypalPayoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
	Message string `json:"message"`
}

var defaultPaypalHTTP = &http.Client{Timeout: 30 * time.Second}

// httpClient never writes p.Client: concurrent Payout calls read the field
// without holding p.mu.
func (p *PaypalClient) httpClient() *http.Client {
	if p.Client == nil {
		return defaultPaypalHTTP
	}
	return p.Client
}

func (p *PaypalClient) base() string {
	if p.BaseURL == "" {
		return "https://api-m.paypal.com"
	}
	return strings.TrimSuffix(p.BaseURL, "/")
}

// token returns a cached OAuth token, refreshing when within a minute of expiry.
func (p *PaypalClient) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Add(time.Minute).Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base()+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token exchange failed: status %d", resp.StatusCode)
	}

	var tok paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("paypal token exchange returned empty token")
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

// Payout sends one payout item. sender_item_id makes a retried batch a
// duplicate on PayPal's side rather than a second payment.
func (p *PaypalClient) Payout(ctx context.Context, amountCents int64, receiverEmail, senderItemID string) (string, error) {
	accessToken, err := p.token(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"sender_batch_header": map[string]interface{}{
			"sender_batch_id": "lapsly-" + senderItemID,
			"email_subject":   "You have a payout from Lapsly",
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"receiver":       receiverEmail,
				"sender_item_id": senderItemID,
				"note":           "Lapsly domain sale payout",
				"amount": map[string]string{
					"value":    fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100),
					"currency": "USD",
				},
			},
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base()+"/v1/payments/payouts", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var out paypalPayoutResponse
	_ = json.Unmarshal(respBody, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("paypal payout failed: %s", msg)
	}
	if out.BatchHeader.PayoutBatchID == "" {
		return "", fmt.Errorf("paypal payout accepted without a batch id")
	}
	return out.BatchHeader.PayoutBatchID, nil
}
