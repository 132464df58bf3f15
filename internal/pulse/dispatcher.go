package pulse

import (
	"context"
	"fmt"

	"github.com/HerbHall/loginwatch/internal/event"
	"go.uber.org/zap"
)

// DeliveryError records a channel that exhausted its attempts.
type DeliveryError struct {
	Channel  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// AlertSender is what the runner needs from the dispatcher.
type AlertSender interface {
	Send(ctx context.Context, alert Alert) int
}

// Compile-time interface guard.
var _ AlertSender = (*Dispatcher)(nil)

// Dispatcher delivers alerts to every channel in order, retrying each one
// independently with Backoff between attempts.
type Dispatcher struct {
	channels    []Notifier
	maxAttempts int
	sleep       SleepFunc
	bus         event.Publisher
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(channels []Notifier, maxAttempts int, bus event.Publisher, logger *zap.Logger) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		channels:    channels,
		maxAttempts: maxAttempts,
		sleep:       Sleep,
		bus:         bus,
		logger:      logger,
	}
}

// Send attempts delivery on every channel and returns how many succeeded.
// Failures are logged and published, never returned: one channel running
// out of attempts does not stop the next from being tried.
func (d *Dispatcher) Send(ctx context.Context, alert Alert) int {
	delivered := 0
	for _, ch := range d.channels {
		attempts, err := d.deliver(ctx, ch, alert)
		if err != nil {
			d.logger.Error("alert delivery failed",
				zap.String("channel", ch.Type()),
				zap.String("endpoint", alert.Endpoint),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			d.publish(ctx, TopicAlertDeliveryFailed, event.Fields{
				"channel":  ch.Type(),
				"endpoint": alert.Endpoint,
				"status":   string(alert.Status),
				"critical": alert.Critical,
				"attempts": attempts,
				"error":    err.Error(),
			})
			continue
		}

		delivered++
		if _, nop := ch.(NopNotifier); nop {
			d.logger.Debug("channel not configured, skipped", zap.String("channel", ch.Type()))
			continue
		}
		d.logger.Info("alert sent",
			zap.String("channel", ch.Type()),
			zap.String("endpoint", alert.Endpoint),
			zap.String("subject", alert.Subject),
			zap.Int("attempts", attempts),
		)
		d.publish(ctx, TopicAlertDispatched, event.Fields{
			"channel":  ch.Type(),
			"endpoint": alert.Endpoint,
			"status":   string(alert.Status),
			"critical": alert.Critical,
			"attempts": attempts,
		})
	}
	return delivered
}

// deliver retries one channel up to maxAttempts, sleeping Backoff(i) after
// failed attempt i. There is no sleep after the final attempt.
func (d *Dispatcher) deliver(ctx context.Context, ch Notifier, alert Alert) (int, error) {
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		err := ch.Notify(ctx, alert)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if attempt == d.maxAttempts-1 {
			break
		}
		delay := Backoff(attempt)
		d.logger.Warn("alert delivery attempt failed, retrying",
			zap.String("channel", ch.Type()),
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			return attempt + 1, &DeliveryError{Channel: ch.Type(), Attempts: attempt + 1, Err: sleepErr}
		}
	}
	return d.maxAttempts, &DeliveryError{Channel: ch.Type(), Attempts: d.maxAttempts, Err: lastErr}
}

func (d *Dispatcher) publish(ctx context.Context, topic string, fields event.Fields) {
	if d.bus == nil {
		return
	}
	_ = d.bus.Publish(ctx, event.Event{Topic: topic, Source: "dispatcher", Payload: fields})
}
