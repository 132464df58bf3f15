package pulse

import (
	"context"
	"time"
)

// SleepFunc blocks for d. Tests substitute a recorder.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
