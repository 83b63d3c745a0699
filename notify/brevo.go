package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoSender sends transactional email through the Brevo (Sendinblue)
// HTTP API, the Go translation of original_source/Email Node
// Status/watcher.py's sib_api_v3_sdk call. There is no Go Brevo SDK in
// the retrieved example pack, so this talks to the plain HTTP API
// directly via go-resty/resty, the pack's general-purpose HTTP client
// (sourced from gravitational-teleport's go.mod).
type BrevoSender struct {
	APIKey      string
	SenderEmail string
	Recipients  []string
	client      *resty.Client
}

// NewBrevoSender builds a sender. apiKey/senderEmail normally come from
// the BREVO_API_KEY/SENDER_EMAIL environment variables (spec.md §6); an
// empty apiKey or senderEmail or empty recipients makes Send always fail,
// so callers should pair this with a StdoutSender in a notify.Chain
// rather than rely on BrevoSender itself to fall back.
func NewBrevoSender(apiKey, senderEmail string, recipients []string) *BrevoSender {
	return &BrevoSender{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		Recipients:  recipients,
		client:      resty.New(),
	}
}

type brevoRecipient struct {
	Email string `json:"email"`
}

type brevoSender struct {
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoSender      `json:"sender"`
	To          []brevoRecipient `json:"to"`
	Subject     string           `json:"subject"`
	HTMLContent string           `json:"htmlContent"`
}

// Send posts the email to the Brevo API. It returns an error (never a
// silent success) when the API key, sender, or recipient list is empty,
// so a notify.Chain correctly falls through to its stdout fallback.
func (b *BrevoSender) Send(ctx context.Context, subject, html string) error {
	if b.APIKey == "" || b.SenderEmail == "" || len(b.Recipients) == 0 {
		return fmt.Errorf("brevo sender not configured: missing api key, sender, or recipients")
	}

	recipients := make([]brevoRecipient, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		recipients = append(recipients, brevoRecipient{Email: r})
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("api-key", b.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(brevoRequest{
			Sender:      brevoSender{Email: b.SenderEmail},
			To:          recipients,
			Subject:     subject,
			HTMLContent: html,
		}).
		Post(brevoEndpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("brevo API error: %s", resp.Status())
	}
	return nil
}
