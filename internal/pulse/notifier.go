package pulse

import (
	"context"
	"fmt"

	"github.com/HerbHall/loginwatch/pkg/models"
)

// Alert is a rendered notification ready for delivery.
type Alert struct {
	Subject  string
	Body     string
	Status   models.Status // empty for critical-failure alerts
	Endpoint string
	Critical bool
}

// Notifier delivers alerts through a specific channel type.
type Notifier interface {
	// Notify sends the alert once. Retrying is the dispatcher's job.
	Notify(ctx context.Context, alert Alert) error
	// Type returns the channel type identifier (e.g., "email", "webhook").
	Type() string
}

// Email providers.
const (
	EmailProviderSMTP  = "smtp"
	EmailProviderBrevo = "brevo"
)

// EmailConfig holds configuration for email notification delivery.
type EmailConfig struct {
	Provider     string   `mapstructure:"provider"`
	From         string   `mapstructure:"from"`
	To           []string `mapstructure:"to"`
	SMTPHost     string   `mapstructure:"smtp_host"`
	SMTPPort     int      `mapstructure:"smtp_port"`
	SMTPUsername string   `mapstructure:"smtp_username"`
	SMTPPassword string   `mapstructure:"smtp_password"` //nolint:gosec // G101: config field name, not a credential
	// RequireTLS refuses to authenticate when the server does not offer STARTTLS.
	RequireTLS  bool   `mapstructure:"require_tls"`
	BrevoAPIKey string `mapstructure:"brevo_api_key"` //nolint:gosec // G101: config field name, not a credential
	// BrevoBaseURL overrides the Brevo API location (tests, regional endpoints).
	BrevoBaseURL string `mapstructure:"brevo_base_url"`
}

// WebhookConfig holds configuration for chat webhook delivery.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Secret  string            `mapstructure:"secret"` //nolint:gosec // G101: config field name, not a credential
	Headers map[string]string `mapstructure:"headers"`
}

// Compile-time interface guard.
var _ Notifier = NopNotifier{}

// NopNotifier stands in for a channel with no configured destination.
// Delivering to it always succeeds.
type NopNotifier struct {
	Kind string
}

func (NopNotifier) Notify(context.Context, Alert) error { return nil }

func (n NopNotifier) Type() string { return n.Kind }

// BuildNotifiers constructs the channel list from config, once per run.
// Order is fixed: email, then webhook. Channels without a destination
// become NopNotifiers.
func BuildNotifiers(cfg Config) ([]Notifier, error) {
	var email Notifier = NopNotifier{Kind: "email"}
	if len(cfg.Email.To) > 0 {
		switch cfg.Email.Provider {
		case EmailProviderSMTP, "":
			email = NewEmailNotifier(cfg.Email, cfg.RequestTimeout)
		case EmailProviderBrevo:
			email = NewBrevoNotifier(cfg.Email)
		default:
			return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
		}
	}

	var webhook Notifier = NopNotifier{Kind: "webhook"}
	if cfg.Webhook.URL != "" {
		webhook = NewWebhookNotifier(cfg.Webhook, cfg.RequestTimeout)
	}

	return []Notifier{email, webhook}, nil
}
