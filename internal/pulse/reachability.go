package pulse

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/HerbHall/loginwatch/internal/version"
	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// newTransport builds the HTTP transport shared by the probers.
func newTransport(verifySSL bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !verifySSL, //nolint:gosec // G402: operators may disable verification for internal login pages
		},
		DisableKeepAlives: true,
	}
}

// ReachabilityProber checks that an endpoint answers at all, independent of
// the login flow. Its result is logged for diagnosis and never feeds into
// classification.
type ReachabilityProber struct {
	client *http.Client
	cfg    ReachabilityConfig
	logger *zap.Logger
}

// NewReachabilityProber creates a prober issuing HEAD requests bounded by cfg.Timeout.
func NewReachabilityProber(cfg ReachabilityConfig, verifySSL bool, logger *zap.Logger) *ReachabilityProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ICMPTimeout <= 0 {
		cfg.ICMPTimeout = 3 * time.Second
	}
	return &ReachabilityProber{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(verifySSL),
			// Report the endpoint's own answer, not wherever it redirects.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Probe sends a HEAD request and returns the status code, or nil on any
// transport error.
func (r *ReachabilityProber) Probe(ctx context.Context, endpoint string) *int {
	if r.cfg.ICMP {
		r.ping(ctx, endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, http.NoBody)
	if err != nil {
		r.logger.Warn("reachability probe: invalid endpoint", zap.String("endpoint", endpoint), zap.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := r.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("reachability probe failed",
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil
	}
	resp.Body.Close()

	code := resp.StatusCode
	r.logger.Info("reachability probe",
		zap.String("endpoint", endpoint),
		zap.Int("http_status", code),
		zap.Duration("elapsed", elapsed),
	)
	return &code
}

// ping sends a few ICMP echoes to the endpoint host and logs the result.
func (r *ReachabilityProber) ping(ctx context.Context, endpoint string) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return
	}
	host := u.Hostname()

	pinger, err := probing.NewPinger(host)
	if err != nil {
		r.logger.Debug("failed to create pinger", zap.String("host", host), zap.Error(err))
		return
	}
	pinger.Count = 3
	pinger.Timeout = r.cfg.ICMPTimeout
	// Unprivileged UDP pings work without CAP_NET_RAW on Linux and macOS.
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			r.logger.Debug("ping failed", zap.String("host", host), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return
	}

	stats := pinger.Statistics()
	r.logger.Info("icmp diagnostic",
		zap.String("host", host),
		zap.Int("sent", stats.PacketsSent),
		zap.Int("received", stats.PacketsRecv),
		zap.Duration("avg_rtt", stats.AvgRtt),
	)
}
