package pulse

import (
	"context"
	"fmt"
	"html"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// Compile-time interface guard.
var _ Notifier = (*BrevoNotifier)(nil)

// BrevoNotifier sends alert email through the Brevo transactional API, for
// hosts where outbound SMTP is blocked.
type BrevoNotifier struct {
	client *brevo.APIClient
	cfg    EmailConfig
}

// NewBrevoNotifier creates a Brevo-backed email notifier.
func NewBrevoNotifier(cfg EmailConfig) *BrevoNotifier {
	bc := brevo.NewConfiguration()
	bc.AddDefaultHeader("api-key", cfg.BrevoAPIKey)
	if cfg.BrevoBaseURL != "" {
		bc.BasePath = cfg.BrevoBaseURL
	}
	return &BrevoNotifier{
		client: brevo.NewAPIClient(bc),
		cfg:    cfg,
	}
}

func (b *BrevoNotifier) Type() string { return "email" }

func (b *BrevoNotifier) Notify(ctx context.Context, alert Alert) error {
	to := make([]brevo.SendSmtpEmailTo, 0, len(b.cfg.To))
	for _, addr := range b.cfg.To {
		to = append(to, brevo.SendSmtpEmailTo{Email: addr})
	}

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  "Login Monitor",
			Email: b.cfg.From,
		},
		To:          to,
		Subject:     alert.Subject,
		HtmlContent: "<pre>" + html.EscapeString(alert.Body) + "</pre>",
		TextContent: alert.Body,
	}

	if _, _, err := b.client.TransactionalEmailsApi.SendTransacEmail(ctx, email); err != nil {
		return fmt.Errorf("brevo: send transactional email: %w", err)
	}
	return nil
}
