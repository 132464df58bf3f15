package pulse

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds everything the probe-and-notify run needs. It is decoded from
// viper with mapstructure tags; see internal/config for the key list.
type Config struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	UsernameField  string        `mapstructure:"username_field"`
	PasswordField  string        `mapstructure:"password_field"`
	FailureKeyword string        `mapstructure:"failure_keyword"`
	VerifySSL      bool          `mapstructure:"verify_ssl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SuccessCodes   []int         `mapstructure:"success_codes"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RecoveryAlerts bool          `mapstructure:"recovery_alerts"`

	// Environment and Host tag rendered alerts and event records.
	Environment string `mapstructure:"environment"`
	Host        string `mapstructure:"host"`

	Alert        AlertConfig        `mapstructure:"alert"`
	Email        EmailConfig        `mapstructure:"email"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Reachability ReachabilityConfig `mapstructure:"reachability"`
	CSRF         CSRFConfig         `mapstructure:"csrf"`
	Diagnostics  DiagnosticsConfig  `mapstructure:"diagnostics"`
}

// AlertConfig controls throttling and per-channel delivery retries.
type AlertConfig struct {
	ThrottlePeriod time.Duration `mapstructure:"throttle_period"`
	// ThrottleMinutes overrides ThrottlePeriod when set; it carries the
	// legacy ALERT_THROTTLE_PERIOD value, which was a minute count.
	ThrottleMinutes int `mapstructure:"throttle_minutes"`
	MaxAttempts     int `mapstructure:"max_attempts"`
}

// Window returns the effective throttle window.
func (c AlertConfig) Window() time.Duration {
	if c.ThrottleMinutes > 0 {
		return time.Duration(c.ThrottleMinutes) * time.Minute
	}
	return c.ThrottlePeriod
}

// ReachabilityConfig controls the advisory pre-probe.
type ReachabilityConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// ICMP additionally pings the endpoint host and logs the round trip.
	ICMP        bool          `mapstructure:"icmp"`
	ICMPTimeout time.Duration `mapstructure:"icmp_timeout"`
}

// CSRFConfig names where anti-forgery tokens are looked for and how they are echoed.
type CSRFConfig struct {
	CookieNames []string `mapstructure:"cookie_names"`
	FieldNames  []string `mapstructure:"field_names"`
	HTMLEnabled bool     `mapstructure:"html_enabled"`
	HeaderName  string   `mapstructure:"header_name"`
	JSONField   string   `mapstructure:"json_field"`
}

// DiagnosticsConfig controls what is captured when a login is rejected.
type DiagnosticsConfig struct {
	BodyLimit int  `mapstructure:"body_limit"`
	Replay    bool `mapstructure:"replay"`
}

// DefaultConfig returns the configuration used when a key is not set.
func DefaultConfig() Config {
	return Config{
		UsernameField:  "username",
		PasswordField:  "password",
		FailureKeyword: "Invalid credentials",
		VerifySSL:      true,
		RequestTimeout: 10 * time.Second,
		SuccessCodes:   []int{200, 201, 202, 204},
		MaxRetries:     3,
		Environment:    "production",
		Alert: AlertConfig{
			ThrottlePeriod: 10 * time.Minute,
			MaxAttempts:    3,
		},
		Email: EmailConfig{
			Provider:   EmailProviderSMTP,
			SMTPPort:   587,
			RequireTLS: true,
		},
		Reachability: ReachabilityConfig{
			Timeout:     5 * time.Second,
			ICMPTimeout: 3 * time.Second,
		},
		CSRF: CSRFConfig{
			CookieNames: []string{"csrftoken", "XSRF-TOKEN", "_csrf"},
			FieldNames:  []string{"csrf_token", "csrfmiddlewaretoken", "_csrf", "authenticity_token", "_token"},
			HTMLEnabled: true,
			HeaderName:  "X-CSRFToken",
			JSONField:   "csrf_token",
		},
		Diagnostics: DiagnosticsConfig{
			BodyLimit: 500,
		},
	}
}

// Normalize trims endpoint and recipient entries and drops empty ones, so
// that a comma-separated value with stray spaces behaves like a clean list.
func (c *Config) Normalize() {
	c.Endpoints = splitList(c.Endpoints)
	c.Email.To = splitList(c.Email.To)
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.Endpoints) == 0 {
		errs = append(errs, errors.New("at least one endpoint must be configured"))
	}
	for _, e := range c.Endpoints {
		u, err := url.Parse(e)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("endpoint %q must be an absolute http(s) URL", e))
		}
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be greater than 0"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be at least 1"))
	}
	if len(c.SuccessCodes) == 0 {
		errs = append(errs, errors.New("success_codes cannot be empty"))
	}
	for _, code := range c.SuccessCodes {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Errorf("success_codes: %d is not an HTTP status code", code))
		}
	}
	if c.Alert.MaxAttempts < 1 {
		errs = append(errs, errors.New("alert.max_attempts must be at least 1"))
	}
	if c.Alert.Window() < 0 {
		errs = append(errs, errors.New("alert.throttle_period cannot be negative"))
	}
	switch c.Email.Provider {
	case EmailProviderSMTP, EmailProviderBrevo:
	default:
		errs = append(errs, fmt.Errorf("email.provider %q must be %q or %q", c.Email.Provider, EmailProviderSMTP, EmailProviderBrevo))
	}
	if c.Webhook.URL != "" {
		if u, err := url.Parse(c.Webhook.URL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("webhook.url %q is not a valid URL", c.Webhook.URL))
		}
	}

	return errors.Join(errs...)
}
