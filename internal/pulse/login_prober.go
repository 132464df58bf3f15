package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httputil"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/loginwatch/internal/version"
	"github.com/HerbHall/loginwatch/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// maxBodyBytes bounds how much of any response is read into memory.
const maxBodyBytes = 1 << 20

// Prober runs one end-to-end login probe.
type Prober interface {
	Probe(ctx context.Context, endpoint string) models.ProbeOutcome
}

// Compile-time interface guard.
var _ Prober = (*LoginProber)(nil)

// LoginProber fetches the login page, echoes back any anti-forgery token and
// submits the configured credentials, then classifies the response.
type LoginProber struct {
	cfg       Config
	transport http.RoundTripper
	extractor TokenExtractor
	logger    *zap.Logger
}

// NewLoginProber creates a prober. A nil extractor disables token handling.
func NewLoginProber(cfg Config, extractor TokenExtractor, logger *zap.Logger) *LoginProber {
	if extractor == nil {
		extractor = NewChainExtractor(logger)
	}
	return &LoginProber{
		cfg:       cfg,
		transport: newTransport(cfg.VerifySSL),
		extractor: extractor,
		logger:    logger,
	}
}

// Probe never returns an error: transport failures become unreachable
// outcomes, rejected logins become login_failed outcomes. Latency covers
// the page fetch and the submission.
func (p *LoginProber) Probe(ctx context.Context, endpoint string) models.ProbeOutcome {
	start := time.Now()
	outcome, err := p.login(ctx, endpoint)
	latency := time.Since(start)

	if err != nil {
		detail := describeTransportError(err)
		p.logger.Warn("login probe transport error",
			zap.String("endpoint", endpoint),
			zap.String("detail", detail),
			zap.Error(err),
		)
		return models.ProbeOutcome{Status: models.StatusUnreachable, Detail: detail, Latency: latency}
	}

	outcome.Latency = latency
	return outcome
}

func (p *LoginProber) login(ctx context.Context, endpoint string) (models.ProbeOutcome, error) {
	session, err := p.newSession()
	if err != nil {
		return models.ProbeOutcome{}, err
	}

	page, pageBody, err := p.fetchPage(ctx, session, endpoint)
	if err != nil {
		return models.ProbeOutcome{}, fmt.Errorf("fetch login page: %w", err)
	}

	token := p.extractor.Extract(withSessionCookies(page, session.Jar), pageBody)
	asJSON := isJSON(page.Header.Get("Content-Type"))

	body, contentType, err := p.payload(token, asJSON)
	if err != nil {
		return models.ProbeOutcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ProbeOutcome{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", version.UserAgent())
	// Django and similar frameworks reject HTTPS form posts without a Referer.
	req.Header.Set("Referer", endpoint)
	if token != nil && p.cfg.CSRF.HeaderName != "" {
		req.Header.Set(p.cfg.CSRF.HeaderName, token.Value)
	}

	var replay []byte
	if p.cfg.Diagnostics.Replay {
		replay, _ = httputil.DumpRequestOut(req, true)
	}

	resp, err := session.Do(req)
	if err != nil {
		return models.ProbeOutcome{}, fmt.Errorf("submit credentials: %w", err)
	}
	respBody, err := readBody(resp)
	if err != nil {
		return models.ProbeOutcome{}, fmt.Errorf("read login response: %w", err)
	}

	code := resp.StatusCode
	status, detail := Classify(code, respBody, p.cfg.FailureKeyword, p.cfg.SuccessCodes)
	if status != models.StatusSuccess {
		p.captureDiagnostics(endpoint, resp, respBody, replay)
	}

	return models.ProbeOutcome{Status: status, Detail: detail, HTTPStatus: &code}, nil
}

// newSession returns a client with a fresh cookie jar, so cookies never
// leak between probes.
func (p *LoginProber) newSession() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{
		Jar:       jar,
		Timeout:   p.cfg.RequestTimeout,
		Transport: p.transport,
	}, nil
}

func (p *LoginProber) fetchPage(ctx context.Context, session *http.Client, endpoint string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := session.Do(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// withSessionCookies returns page with the session's cookies for the final
// URL added as Set-Cookie headers. Cookies set on an intermediate redirect
// only live in the jar, and the cookie strategy must still see them.
func withSessionCookies(page *http.Response, jar http.CookieJar) *http.Response {
	if jar == nil || page.Request == nil || page.Request.URL == nil {
		return page
	}
	stored := jar.Cookies(page.Request.URL)
	if len(stored) == 0 {
		return page
	}

	seen := make(map[string]bool)
	for _, c := range page.Cookies() {
		seen[c.Name] = true
	}
	view := *page
	view.Header = page.Header.Clone()
	for _, c := range stored {
		if !seen[c.Name] {
			view.Header.Add("Set-Cookie", c.String())
		}
	}
	return &view
}

// payload encodes the credentials as JSON or as a form. The token is only
// embedded in JSON bodies; forms carry it in the header alone.
func (p *LoginProber) payload(token *models.CSRFToken, asJSON bool) ([]byte, string, error) {
	if asJSON {
		fields := map[string]string{
			p.cfg.UsernameField: p.cfg.Username,
			p.cfg.PasswordField: p.cfg.Password,
		}
		if token != nil && p.cfg.CSRF.JSONField != "" {
			fields[p.cfg.CSRF.JSONField] = token.Value
		}
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, "", fmt.Errorf("marshal login payload: %w", err)
		}
		return body, "application/json", nil
	}

	form := url.Values{}
	form.Set(p.cfg.UsernameField, p.cfg.Username)
	form.Set(p.cfg.PasswordField, p.cfg.Password)
	return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
}

// captureDiagnostics logs what the server answered. It never affects the outcome.
func (p *LoginProber) captureDiagnostics(endpoint string, resp *http.Response, body, replay []byte) {
	limit := p.cfg.Diagnostics.BodyLimit
	if limit <= 0 || limit > len(body) {
		limit = len(body)
	}
	p.logger.Warn("login rejected",
		zap.String("endpoint", endpoint),
		zap.Int("http_status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.ByteString("body", body[:limit]),
	)

	if replay == nil {
		return
	}
	respDump, _ := httputil.DumpResponse(resp, false)
	p.logger.Debug("login request replay",
		zap.String("endpoint", endpoint),
		zap.String("request", p.redact(string(replay))),
		zap.String("response_headers", string(respDump)),
	)
}

// redact masks the password in a request dump.
func (p *LoginProber) redact(dump string) string {
	if p.cfg.Password == "" {
		return dump
	}
	for _, form := range []string{url.QueryEscape(p.cfg.Password), p.cfg.Password} {
		dump = strings.ReplaceAll(dump, form, "REDACTED")
	}
	return dump
}

// Classify maps a login response to a status. The login failed when the
// failure keyword appears in the body or the status code is outside
// allowed; otherwise it succeeded. An empty keyword is never matched.
func Classify(code int, body []byte, keyword string, allowed []int) (models.Status, string) {
	keywordHit := keyword != "" && bytes.Contains(body, []byte(keyword))
	codeOK := slices.Contains(allowed, code)

	switch {
	case keywordHit:
		return models.StatusLoginFailed, "Status " + strconv.Itoa(code) + ", failure keyword found"
	case !codeOK:
		return models.StatusLoginFailed, "Status " + strconv.Itoa(code)
	default:
		return models.StatusSuccess, "Login OK"
	}
}

// describeTransportError distinguishes timeouts from connection errors in
// the outcome detail. Both map to the unreachable status.
func describeTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Request timed out"
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return "Connection error"
	}
	return err.Error()
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	// Drain the rest so the connection closes cleanly.
	_, _ = io.Copy(io.Discard, resp.Body)
	return body, nil
}
