// Package config loads loginwatch settings from defaults, a YAML file, a
// legacy .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/HerbHall/loginwatch/internal/pulse"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment:
// LOGINWATCH_EMAIL_SMTP_HOST sets email.smtp_host.
const EnvPrefix = "LOGINWATCH"

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

// legacyEnv maps keys to the unprefixed variable names older deployments
// export. The prefixed name always wins over the legacy one.
var legacyEnv = map[string]string{
	"endpoints":              "LOGIN_URL",
	"username":               "USERNAME",
	"password":               "PASSWORD",
	"failure_keyword":        "FAILED_KEYWORD",
	"max_retries":            "MAX_RETRIES",
	"recovery_alerts":        "SEND_RECOVERY_ALERTS",
	"alert.throttle_minutes": "ALERT_THROTTLE_PERIOD",
	"email.from":             "EMAIL_FROM",
	"email.to":               "EMAIL_TO",
	"email.smtp_host":        "SMTP_SERVER",
	"email.smtp_port":        "SMTP_PORT",
	"email.smtp_username":    "SMTP_USERNAME",
	"email.smtp_password":    "SMTP_PASSWORD",
	"webhook.url":            "WEBEX_WEBHOOK",
}

// Load reads configuration. configPath may be empty, in which case
// loginwatch.yaml is searched for in the usual places; a missing file is
// not an error.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("loginwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/loginwatch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := applyDotEnv(v, DotEnvFile); err != nil {
		return nil, err
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := pulse.DefaultConfig()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	v.SetDefault("endpoints", []string{})
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("username_field", d.UsernameField)
	v.SetDefault("password_field", d.PasswordField)
	v.SetDefault("failure_keyword", d.FailureKeyword)
	v.SetDefault("verify_ssl", d.VerifySSL)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("success_codes", d.SuccessCodes)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("recovery_alerts", d.RecoveryAlerts)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("host", hostname)

	v.SetDefault("alert.throttle_period", d.Alert.ThrottlePeriod)
	v.SetDefault("alert.throttle_minutes", 0)
	v.SetDefault("alert.max_attempts", d.Alert.MaxAttempts)

	v.SetDefault("email.provider", d.Email.Provider)
	v.SetDefault("email.from", "")
	v.SetDefault("email.to", []string{})
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", d.Email.SMTPPort)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.require_tls", d.Email.RequireTLS)
	v.SetDefault("email.brevo_api_key", "")
	v.SetDefault("email.brevo_base_url", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")

	v.SetDefault("reachability.timeout", d.Reachability.Timeout)
	v.SetDefault("reachability.icmp", d.Reachability.ICMP)
	v.SetDefault("reachability.icmp_timeout", d.Reachability.ICMPTimeout)

	v.SetDefault("csrf.cookie_names", d.CSRF.CookieNames)
	v.SetDefault("csrf.field_names", d.CSRF.FieldNames)
	v.SetDefault("csrf.html_enabled", d.CSRF.HTMLEnabled)
	v.SetDefault("csrf.header_name", d.CSRF.HeaderName)
	v.SetDefault("csrf.json_field", d.CSRF.JSONField)

	v.SetDefault("diagnostics.body_limit", d.Diagnostics.BodyLimit)
	v.SetDefault("diagnostics.replay", d.Diagnostics.Replay)

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.path", "last_status.txt")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "login_monitor.log")
	v.SetDefault("logging.max_size_mb", 5)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.events_file", "login_monitor.events.jsonl")
	v.SetDefault("logging.status_file", "login_monitor.status.log")

	v.SetDefault("metrics.textfile", "")
}

// applyDotEnv reads KEY=value pairs from path. A value is used only when
// neither of its key's variable names is set in the real environment, so
// the process environment keeps the last word.
func applyDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// The env codec lower-cases names.
	values := make(map[string]string, len(dv.AllKeys()))
	for _, name := range dv.AllKeys() {
		values[strings.ToUpper(name)] = dv.GetString(name)
	}

	for _, key := range v.AllKeys() {
		names := []string{envName(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if inEnvironment(names) {
			continue
		}
		for _, name := range names {
			if val, ok := values[name]; ok {
				v.Set(key, val)
				break
			}
		}
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func inEnvironment(names []string) bool {
	for _, name := range names {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}
	return false
}

// Decode unmarshals the run configuration and normalizes the endpoint list.
func Decode(v *viper.Viper) (pulse.Config, error) {
	cfg := pulse.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return pulse.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	// login_url is accepted as an alias of endpoints in YAML.
	if len(cfg.Endpoints) == 0 {
		if alias := v.GetString("login_url"); alias != "" {
			cfg.Endpoints = []string{alias}
		}
	}
	cfg.Normalize()
	return cfg, nil
}

// ConfigError lists every missing required key and every invalid value.
type ConfigError struct {
	Missing  []string
	Problems error
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if e.Problems != nil {
		parts = append(parts, e.Problems.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *ConfigError) Unwrap() error { return e.Problems }

// Validate checks cfg for missing required keys and invalid values. It
// returns a *ConfigError or nil.
func Validate(cfg pulse.Config) error {
	var missing []string
	need := func(key string, present bool) {
		if !present {
			missing = append(missing, key)
		}
	}

	need("endpoints", len(cfg.Endpoints) > 0)
	need("username", cfg.Username != "")
	need("password", cfg.Password != "")
	need("email.from", cfg.Email.From != "")
	need("email.to", len(cfg.Email.To) > 0)
	switch cfg.Email.Provider {
	case pulse.EmailProviderBrevo:
		need("email.brevo_api_key", cfg.Email.BrevoAPIKey != "")
	default:
		need("email.smtp_host", cfg.Email.SMTPHost != "")
		need("email.smtp_username", cfg.Email.SMTPUsername != "")
		need("email.smtp_password", cfg.Email.SMTPPassword != "")
	}

	// Missing endpoints are already reported above.
	var problems error
	if len(cfg.Endpoints) > 0 {
		problems = cfg.Validate()
	} else {
		probe := cfg
		probe.Endpoints = []string{"http://placeholder.invalid"}
		problems = probe.Validate()
	}

	if len(missing) == 0 && problems == nil {
		return nil
	}
	return &ConfigError{Missing: missing, Problems: problems}
}
