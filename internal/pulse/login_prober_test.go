package pulse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/loginwatch/pkg/models"
	"go.uber.org/zap"
)

func testConfig(endpoints ...string) Config {
	cfg := DefaultConfig()
	cfg.Endpoints = endpoints
	cfg.Username = "alice"
	cfg.Password = "s3cret&more"
	cfg.RequestTimeout = 2 * time.Second
	cfg.Host = "probe-01"
	cfg.Environment = "staging"
	return cfg
}

func newTestProber(cfg Config) *LoginProber {
	return NewLoginProber(cfg, NewExtractor(cfg.CSRF, zap.NewNop()), zap.NewNop())
}

func TestLoginProber_FormLoginWithHTMLToken(t *testing.T) {
	var gotForm map[string]string
	var gotHeader, gotContentType string
	var gotSession bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "abc", Path: "/"})
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, loginPage)
		case http.MethodPost:
			gotContentType = r.Header.Get("Content-Type")
			gotHeader = r.Header.Get("X-CSRFToken")
			_, err := r.Cookie("sessionid")
			gotSession = err == nil
			_ = r.ParseForm()
			gotForm = map[string]string{
				"username": r.PostForm.Get("username"),
				"password": r.PostForm.Get("password"),
			}
			io.WriteString(w, "Welcome back")
		}
	}))
	defer srv.Close()

	outcome := newTestProber(testConfig(srv.URL)).Probe(context.Background(), srv.URL)

	if outcome.Status != models.StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", outcome.Status, outcome.Detail)
	}
	if outcome.Detail != "Login OK" {
		t.Errorf("Detail = %q, want %q", outcome.Detail, "Login OK")
	}
	if outcome.Code() != http.StatusOK {
		t.Errorf("HTTPStatus = %d, want 200", outcome.Code())
	}
	if outcome.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", outcome.Latency)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q, want form encoding", gotContentType)
	}
	if gotHeader != "html-token-1" {
		t.Errorf("X-CSRFToken = %q, want html-token-1", gotHeader)
	}
	if !gotSession {
		t.Error("session cookie from the login page was not sent back")
	}
	if gotForm["username"] != "alice" || gotForm["password"] != "s3cret&more" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestLoginProber_JSONLoginEmbedsToken(t *testing.T) {
	var body map[string]string
	var gotHeader, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "cookie-tok", Path: "/"})
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"detail":"POST credentials here"}`)
		case http.MethodPost:
			gotContentType = r.Header.Get("Content-Type")
			gotHeader = r.Header.Get("X-CSRFToken")
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	outcome := newTestProber(testConfig(srv.URL)).Probe(context.Background(), srv.URL)

	if outcome.Status != models.StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", outcome.Status, outcome.Detail)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotHeader != "cookie-tok" {
		t.Errorf("X-CSRFToken = %q, want cookie-tok", gotHeader)
	}
	if body["csrf_token"] != "cookie-tok" {
		t.Errorf("body csrf_token = %q, want cookie-tok", body["csrf_token"])
	}
	if body["username"] != "alice" || body["password"] != "s3cret&more" {
		t.Errorf("body = %v", body)
	}
}

func TestLogin_TokenCookieSetDuringRedirect(t *testing.T) {
	var gotHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			gotHeader = r.Header.Get("X-CSRFToken")
			io.WriteString(w, "Welcome back")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "redirect-tok", Path: "/"})
		http.Redirect(w, r, "/login/", http.StatusFound)
	})
	mux.HandleFunc("/login/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<form method=\"post\"></form>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	endpoint := srv.URL + "/login"
	outcome := newTestProber(testConfig(endpoint)).Probe(context.Background(), endpoint)

	if outcome.Status != models.StatusSuccess {
		t.Fatalf("Status = %q (%s), want success", outcome.Status, outcome.Detail)
	}
	if gotHeader != "redirect-tok" {
		t.Errorf("X-CSRFToken = %q, want redirect-tok", gotHeader)
	}
}

func TestWithSessionCookies_FinalResponseCookieWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/login/", nil)
	jar := &staticJar{cookies: []*http.Cookie{
		{Name: "csrftoken", Value: "stale"},
		{Name: "XSRF-TOKEN", Value: "from-jar"},
	}}
	page := response("text/html", &http.Cookie{Name: "csrftoken", Value: "fresh"})
	page.Request = req

	view := withSessionCookies(page, jar)

	got := map[string]string{}
	for _, c := range view.Cookies() {
		if _, dup := got[c.Name]; !dup {
			got[c.Name] = c.Value
		}
	}
	if got["csrftoken"] != "fresh" || got["XSRF-TOKEN"] != "from-jar" {
		t.Errorf("cookies = %v", got)
	}
	if len(page.Header.Values("Set-Cookie")) != 1 {
		t.Error("original response headers were modified")
	}
}

type staticJar struct {
	cookies []*http.Cookie
}

func (j *staticJar) SetCookies(*url.URL, []*http.Cookie) {}

func (j *staticJar) Cookies(*url.URL) []*http.Cookie { return j.cookies }

func TestLoginProber_NoTokenNoHeader(t *testing.T) {
	var header []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			header = r.Header.Values("X-CSRFToken")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outcome := newTestProber(testConfig(srv.URL)).Probe(context.Background(), srv.URL)
	if outcome.Status != models.StatusSuccess {
		t.Fatalf("Status = %q, want success", outcome.Status)
	}
	if len(header) != 0 {
		t.Errorf("X-CSRFToken sent without a token: %v", header)
	}
}

func TestLoginProber_FailureKeywordWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			io.WriteString(w, "<p>Invalid credentials</p>")
		}
	}))
	defer srv.Close()

	outcome := newTestProber(testConfig(srv.URL)).Probe(context.Background(), srv.URL)
	if outcome.Status != models.StatusLoginFailed {
		t.Fatalf("Status = %q, want login_failed", outcome.Status)
	}
	if outcome.Code() != http.StatusOK {
		t.Errorf("HTTPStatus = %d, want 200", outcome.Code())
	}
	if !strings.Contains(outcome.Detail, "failure keyword") {
		t.Errorf("Detail = %q, want keyword mention", outcome.Detail)
	}
}

func TestLoginProber_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Diagnostics.Replay = true
	outcome := newTestProber(cfg).Probe(context.Background(), srv.URL)

	if outcome.Status != models.StatusLoginFailed {
		t.Fatalf("Status = %q, want login_failed", outcome.Status)
	}
	if outcome.Detail != "Status 403" {
		t.Errorf("Detail = %q, want %q", outcome.Detail, "Status 403")
	}
	if outcome.Code() != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want 403", outcome.Code())
	}
}

func TestLoginProber_ConnectionRefused(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	outcome := newTestProber(cfg).Probe(context.Background(), "http://127.0.0.1:1")

	if outcome.Status != models.StatusUnreachable {
		t.Fatalf("Status = %q, want unreachable", outcome.Status)
	}
	if outcome.Detail != "Connection error" {
		t.Errorf("Detail = %q, want %q", outcome.Detail, "Connection error")
	}
	if outcome.HTTPStatus != nil {
		t.Errorf("HTTPStatus = %d, want nil", *outcome.HTTPStatus)
	}
}

func TestLoginProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.RequestTimeout = 50 * time.Millisecond
	outcome := newTestProber(cfg).Probe(context.Background(), srv.URL)

	if outcome.Status != models.StatusUnreachable {
		t.Fatalf("Status = %q, want unreachable", outcome.Status)
	}
	if outcome.Detail != "Request timed out" {
		t.Errorf("Detail = %q, want %q", outcome.Detail, "Request timed out")
	}
}

func TestLoginProber_InvalidURL(t *testing.T) {
	outcome := newTestProber(testConfig()).Probe(context.Background(), "://bad")
	if outcome.Status != models.StatusUnreachable {
		t.Errorf("Status = %q, want unreachable", outcome.Status)
	}
	if outcome.Detail == "" {
		t.Error("Detail is empty")
	}
}

func TestClassify(t *testing.T) {
	allowed := []int{200, 201, 202, 204}
	tests := []struct {
		name    string
		code    int
		body    string
		keyword string
		want    models.Status
	}{
		{"ok", 200, "welcome", "Invalid credentials", models.StatusSuccess},
		{"no content", 204, "", "Invalid credentials", models.StatusSuccess},
		{"keyword with 200", 200, "Invalid credentials", "Invalid credentials", models.StatusLoginFailed},
		{"forbidden", 403, "nope", "Invalid credentials", models.StatusLoginFailed},
		{"redirect not allowed", 302, "", "Invalid credentials", models.StatusLoginFailed},
		{"server error", 500, "", "Invalid credentials", models.StatusLoginFailed},
		{"empty keyword never matches", 200, "anything", "", models.StatusSuccess},
		{"keyword is case sensitive", 200, "invalid CREDENTIALS", "Invalid credentials", models.StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detail := Classify(tt.code, []byte(tt.body), tt.keyword, allowed)
			if got != tt.want {
				t.Errorf("Classify() = %q (%s), want %q", got, detail, tt.want)
			}
		})
	}
}

func TestLoginProber_Redact(t *testing.T) {
	p := newTestProber(testConfig())
	dump := "POST / HTTP/1.1\r\n\r\npassword=s3cret%26more&username=alice"
	got := p.redact(dump)
	if strings.Contains(got, "s3cret") {
		t.Errorf("redact() left the password in %q", got)
	}
	if !strings.Contains(got, "username=alice") {
		t.Errorf("redact() removed too much: %q", got)
	}
}
