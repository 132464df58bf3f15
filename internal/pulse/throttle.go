package pulse

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out alerts: after one is allowed, every further request
// is denied until strictly more than the window has elapsed.
//
// A single Throttle is shared by every endpoint in a run, so an alert for
// one endpoint suppresses alerts for the others within the window. The
// state lives in memory only and resets with each process.
type Throttle struct {
	limiter *rate.Limiter // nil when the window is zero
	window  time.Duration
	now     func() time.Time
	last    time.Time
}

// NewThrottle creates a throttle with the given window. A zero window
// allows every call.
func NewThrottle(window time.Duration) *Throttle {
	t := &Throttle{now: time.Now, window: window}
	if window > 0 {
		// One token, refilled once per window.
		t.limiter = rate.NewLimiter(rate.Every(window), 1)
	}
	return t
}

// Allow reports whether an alert may be sent now. Only a true result
// advances the gate.
func (t *Throttle) Allow() bool {
	now := t.now()
	if t.limiter != nil {
		// The limiter refills its token at exactly one window; an alert at
		// that instant is still inside the window.
		if !t.last.IsZero() && now.Sub(t.last) <= t.window {
			return false
		}
		if !t.limiter.AllowN(now, 1) {
			return false
		}
	}
	t.last = now
	return true
}

// LastAllowed returns when Allow last returned true, or the zero time.
func (t *Throttle) LastAllowed() time.Time {
	return t.last
}
