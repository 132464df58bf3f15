package pulse

import "time"

// MaxBackoff caps the delay between retries.
const MaxBackoff = 60 * time.Second

// Backoff returns the delay before retry number attempt (zero-based):
// 2^attempt seconds, capped at MaxBackoff. Probe retries and alert-channel
// retries share it, each with its own attempt counter.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^6 s already exceeds the cap; stop before the shift overflows.
	if attempt >= 6 {
		return MaxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, MaxBackoff)
}
