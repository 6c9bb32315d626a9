package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Sender sends the transactional emails the marketplace produces.
// Nil = no-op; a missing API key also disables sending.
type Sender interface {
	SendWelcome(ctx context.Context, toEmail, fullname string) error
	SendTransferInitiated(ctx context.Context, toEmail, domainName, authCode, notes string, deadline time.Time) error
	SendDisputeOpened(ctx context.Context, toEmail, domainName, reason string) error
	SendPayoutSent(ctx context.Context, toEmail, domainName, method string, amountCents int64) error
}

// BrevoClient sends emails via the Brevo (Sendinblue) API. Configured
// through SENDINBLUE_API_KEY and MAIL_FROM.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@lapsly.io"
}

// send sends one email via the Brevo API.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "Lapsly"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoReplyTo{Email: "support@lapsly.io", Name: "Lapsly Support"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPI, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendWelcome greets a newly registered seller.
func (c *BrevoClient) SendWelcome(ctx context.Context, toEmail, fullname string) error {
	if c.APIKey == "" {
		return nil
	}
	if fullname == "" {
		fullname = "there"
	}
	content := fmt.Sprintf(`
    <h1>Welcome to Lapsly, %s!</h1>
    <p>Your seller account is ready. List a lapsing domain, verify ownership with a DNS record, and it goes live on the marketplace.</p>
    <center>
      <a href="https://lapsly.io/dashboard" class="lapsly-button">Open Your Dashboard</a>
    </center>
    <p style="margin-top: 20px; font-size: 14px; color: #666;">
      If you did not sign up for this account, please contact support immediately.
    </p>
    <p>— The Lapsly Team</p>
`, EscapeHTML(fullname))
	return c.send(ctx, toEmail, "Welcome to Lapsly!", EmailLayout(content))
}

// SendTransferInitiated hands the buyer the registrar auth code and the
// confirmation deadline.
func (c *BrevoClient) SendTransferInitiated(ctx context.Context, toEmail, domainName, authCode, notes string, deadline time.Time) error {
	if c.APIKey == "" {
		return nil
	}
	notesHTML := ""
	if notes != "" {
		notesHTML = fmt.Sprintf(`<p><strong>Seller notes:</strong> %s</p>`, EscapeHTML(notes))
	}
	content := fmt.Sprintf(`
    <h1>Your Domain Transfer Has Started</h1>
    <p>The seller has unlocked <strong>%s</strong> at their registrar. Use the authorization code below to pull the domain into your own registrar account.</p>
    <div class="code-box">%s</div>
    %s
    <p>Please confirm receipt once the transfer lands. If you take no action by <strong>%s</strong>, a dispute will be opened on your behalf and our team will review the transfer.</p>
    <center>
      <a href="https://lapsly.io/transfer" class="lapsly-button">Confirm Receipt</a>
    </center>
    <p>— The Lapsly Team</p>
`, EscapeHTML(domainName), EscapeHTML(authCode), notesHTML, deadline.UTC().Format("January 2, 2006 15:04 MST"))
	return c.send(ctx, toEmail, fmt.Sprintf("Transfer started for %s", domainName), EmailLayout(content))
}

// SendDisputeOpened tells the seller their transfer is under review.
func (c *BrevoClient) SendDisputeOpened(ctx context.Context, toEmail, domainName, reason string) error {
	if c.APIKey == "" {
		return nil
	}
	content := fmt.Sprintf(`
    <h1>A Dispute Was Opened</h1>
    <p>The transfer of <strong>%s</strong> has been disputed and the sale is on hold while our team reviews it.</p>
    <p><strong>Reason:</strong> %s</p>
    <p>We may reach out for registrar records or the transfer history. No payout will be sent until the dispute is resolved.</p>
    <p>— The Lapsly Team</p>
`, EscapeHTML(domainName), EscapeHTML(reason))
	return c.send(ctx, toEmail, fmt.Sprintf("Dispute opened for %s", domainName), EmailLayout(content))
}

// SendPayoutSent confirms the seller's proceeds are on the way.
func (c *BrevoClient) SendPayoutSent(ctx context.Context, toEmail, domainName, method string, amountCents int64) error {
	if c.APIKey == "" {
		return nil
	}
	content := fmt.Sprintf(`
    <h1>Your Payout Is on the Way</h1>
    <p>The sale of <strong>%s</strong> is settled. We have sent <strong>$%d.%02d</strong> to your %s account.</p>
    <p>Depending on the payout provider it can take a few business days to arrive.</p>
    <p>— The Lapsly Team</p>
`, EscapeHTML(domainName), amountCents/100, amountCents%100, EscapeHTML(method))
	return c.send(ctx, toEmail, fmt.Sprintf("Payout sent for %s", domainName), EmailLayout(content))
}
