package pulse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReachabilityProber_ReturnsStatusCode(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewReachabilityProber(ReachabilityConfig{Timeout: time.Second}, true, zap.NewNop())
	code := p.Probe(context.Background(), srv.URL)

	if code == nil {
		t.Fatal("Probe() = nil, want status code")
	}
	if *code != http.StatusServiceUnavailable {
		t.Errorf("Probe() = %d, want 503", *code)
	}
	if method != http.MethodHead {
		t.Errorf("method = %q, want HEAD", method)
	}
}

func TestReachabilityProber_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.Redirect(w, r, "/sso", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewReachabilityProber(ReachabilityConfig{Timeout: time.Second}, true, zap.NewNop())
	code := p.Probe(context.Background(), srv.URL+"/login")

	if code == nil || *code != http.StatusFound {
		t.Errorf("Probe() = %v, want 302", code)
	}
}

func TestReachabilityProber_TransportErrorIsNil(t *testing.T) {
	p := NewReachabilityProber(ReachabilityConfig{Timeout: time.Second}, true, zap.NewNop())
	if code := p.Probe(context.Background(), "http://127.0.0.1:1"); code != nil {
		t.Errorf("Probe() = %d, want nil", *code)
	}
}

func TestReachabilityProber_InvalidEndpointIsNil(t *testing.T) {
	p := NewReachabilityProber(ReachabilityConfig{}, true, zap.NewNop())
	if code := p.Probe(context.Background(), "://bad"); code != nil {
		t.Errorf("Probe() = %d, want nil", *code)
	}
}

func TestNewReachabilityProber_Defaults(t *testing.T) {
	p := NewReachabilityProber(ReachabilityConfig{}, false, zap.NewNop())
	if p.cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", p.cfg.Timeout)
	}
	if p.cfg.ICMPTimeout != 3*time.Second {
		t.Errorf("ICMPTimeout = %v, want 3s", p.cfg.ICMPTimeout)
	}
	tr, ok := p.client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", p.client.Transport)
	}
	if !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("InsecureSkipVerify = false with verifySSL disabled")
	}
}
