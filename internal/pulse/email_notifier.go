package pulse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Compile-time interface guard.
var _ Notifier = (*EmailNotifier)(nil)

// EmailNotifier sends alerts over SMTP, upgrading the connection with
// STARTTLS before authenticating.
type EmailNotifier struct {
	cfg     EmailConfig
	timeout time.Duration
}

// NewEmailNotifier creates an SMTP notifier. timeout bounds the whole
// conversation with the server.
func NewEmailNotifier(cfg EmailConfig, timeout time.Duration) *EmailNotifier {
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmailNotifier{cfg: cfg, timeout: timeout}
}

func (e *EmailNotifier) Type() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	addr := net.JoinHostPort(e.cfg.SMTPHost, strconv.Itoa(e.cfg.SMTPPort))

	dialer := net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(e.timeout))

	client, err := smtp.NewClient(conn, e.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: e.cfg.SMTPHost, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	} else if e.cfg.RequireTLS {
		return errors.New("email: server does not support STARTTLS")
	}

	if e.cfg.SMTPUsername != "" {
		auth := smtp.PlainAuth("", e.cfg.SMTPUsername, e.cfg.SMTPPassword, e.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}

	if err := client.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("email: MAIL FROM: %w", err)
	}
	for _, rcpt := range e.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: RCPT TO %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if _, err := wc.Write(e.message(alert)); err != nil {
		wc.Close()
		return fmt.Errorf("email: write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("email: end DATA: %w", err)
	}

	return client.Quit()
}

// message renders RFC 5322 headers and a CRLF-terminated plain text body.
func (e *EmailNotifier) message(alert Alert) []byte {
	var b strings.Builder
	b.WriteString("From: " + e.cfg.From + "\r\n")
	b.WriteString("To: " + strings.Join(e.cfg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", alert.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(alert.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
