package pulse

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/loginwatch/internal/event"
	"github.com/HerbHall/loginwatch/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reacher runs the advisory reachability check.
type Reacher interface {
	Probe(ctx context.Context, endpoint string) *int
}

// StatusStore is the persisted last-reported status.
type StatusStore interface {
	Read(ctx context.Context) (models.Status, error)
	Write(ctx context.Context, status models.Status) error
}

// RunnerDeps are the collaborators of a Runner. Reacher, Throttle and Bus
// are optional.
type RunnerDeps struct {
	Prober     Prober
	Reacher    Reacher
	Store      StatusStore
	Throttle   *Throttle
	Dispatcher AlertSender
	Bus        event.Publisher
	Logger     *zap.Logger
}

// Runner drives one invocation: every configured endpoint is probed,
// compared with the persisted status and alerted on, strictly in order.
type Runner struct {
	cfg        Config
	prober     Prober
	reacher    Reacher
	store      StatusStore
	throttle   *Throttle
	dispatcher AlertSender
	bus        event.Publisher
	logger     *zap.Logger

	runID string
	sleep SleepFunc
	now   func() time.Time
}

// NewRunner creates a runner. When deps.Throttle is nil a throttle with the
// configured window is created; it lives as long as the Runner.
func NewRunner(cfg Config, deps RunnerDeps) *Runner {
	throttle := deps.Throttle
	if throttle == nil {
		throttle = NewThrottle(cfg.Alert.Window())
	}
	return &Runner{
		cfg:        cfg,
		prober:     deps.Prober,
		reacher:    deps.Reacher,
		store:      deps.Store,
		throttle:   throttle,
		dispatcher: deps.Dispatcher,
		bus:        deps.Bus,
		logger:     deps.Logger,
		runID:      uuid.NewString(),
		sleep:      Sleep,
		now:        time.Now,
	}
}

// RunID identifies this invocation in logs and events.
func (r *Runner) RunID() string {
	return r.runID
}

// Run processes every endpoint. Only unexpected faults (state store I/O,
// cancellation) are returned; probe failures are outcomes.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("run started",
		zap.String("run_id", r.runID),
		zap.Int("endpoints", len(r.cfg.Endpoints)),
	)

	for _, endpoint := range r.cfg.Endpoints {
		if err := r.ProcessEndpoint(ctx, endpoint); err != nil {
			return fmt.Errorf("endpoint %s: %w", endpoint, err)
		}
	}

	r.publish(ctx, TopicRunCompleted, event.Fields{"endpoints": len(r.cfg.Endpoints)})
	r.logger.Info("run completed", zap.String("run_id", r.runID))
	return nil
}

// ProcessEndpoint takes one endpoint from reachability check to persisted status.
func (r *Runner) ProcessEndpoint(ctx context.Context, endpoint string) error {
	if r.reacher != nil {
		fields := event.Fields{"endpoint": endpoint}
		if code := r.reacher.Probe(ctx, endpoint); code != nil {
			fields["http_status"] = *code
		}
		r.publish(ctx, TopicReachability, fields)
	}

	outcome, err := r.probeWithRetry(ctx, endpoint)
	if err != nil {
		return err
	}

	previous, err := r.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read last status: %w", err)
	}

	fields := outcomeFields(endpoint, outcome)
	fields["previous_status"] = string(previous)
	r.publish(ctx, TopicProbeCompleted, fields)
	r.logger.Info("login check completed",
		zap.String("endpoint", endpoint),
		zap.String("status", string(outcome.Status)),
		zap.String("previous_status", string(previous)),
		zap.String("detail", outcome.Detail),
		zap.Duration("latency", outcome.Latency),
	)

	r.evaluate(ctx, endpoint, previous, outcome)

	if err := r.store.Write(ctx, outcome.Status); err != nil {
		return fmt.Errorf("write last status: %w", err)
	}
	return nil
}

// probeWithRetry probes up to MaxRetries times, stopping at the first
// success and sleeping Backoff(attempt) between attempts.
func (r *Runner) probeWithRetry(ctx context.Context, endpoint string) (models.ProbeOutcome, error) {
	attempts := max(r.cfg.MaxRetries, 1)

	var outcome models.ProbeOutcome
	for attempt := 0; attempt < attempts; attempt++ {
		outcome = r.prober.Probe(ctx, endpoint)

		fields := outcomeFields(endpoint, outcome)
		fields["attempt"] = attempt + 1
		r.publish(ctx, TopicProbeAttempt, fields)

		if outcome.Status == models.StatusSuccess || attempt == attempts-1 {
			break
		}

		delay := Backoff(attempt)
		r.logger.Warn("probe attempt failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.String("status", string(outcome.Status)),
			zap.Duration("retry_in", delay),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return outcome, fmt.Errorf("waiting to retry: %w", err)
		}
	}
	return outcome, nil
}

// evaluate decides whether the outcome warrants an alert. Any status
// change consults the throttle, recoveries included, so a recovery also
// opens a new throttle window.
func (r *Runner) evaluate(ctx context.Context, endpoint string, previous models.Status, outcome models.ProbeOutcome) {
	current := outcome.Status
	if current == previous {
		r.logger.Info("no status change", zap.String("endpoint", endpoint), zap.String("status", string(current)))
		return
	}

	r.publish(ctx, TopicStatusChanged, event.Fields{
		"endpoint": endpoint,
		"from":     string(previous),
		"to":       string(current),
	})
	if current == models.StatusSuccess {
		r.logger.Info("login restored", zap.String("endpoint", endpoint), zap.String("previous_status", string(previous)))
	}

	if !r.throttle.Allow() {
		r.logger.Info("alert throttled",
			zap.String("endpoint", endpoint),
			zap.String("status", string(current)),
			zap.Time("last_alert", r.throttle.LastAllowed()),
		)
		r.publish(ctx, TopicAlertThrottled, event.Fields{"endpoint": endpoint, "status": string(current)})
		return
	}

	if !current.Failing() && !r.cfg.RecoveryAlerts {
		return
	}

	alert := RenderAlert(outcome, endpoint, r.tags(), r.now())
	r.dispatcher.Send(ctx, alert)
}

func (r *Runner) tags() AlertTags {
	return AlertTags{Environment: r.cfg.Environment, Host: r.cfg.Host}
}

func (r *Runner) publish(ctx context.Context, topic string, fields event.Fields) {
	if r.bus == nil {
		return
	}
	fields["run_id"] = r.runID
	_ = r.bus.Publish(ctx, event.Event{Topic: topic, Source: "runner", Timestamp: r.now(), Payload: fields})
}

func outcomeFields(endpoint string, o models.ProbeOutcome) event.Fields {
	fields := event.Fields{
		"endpoint": endpoint,
		"status":   string(o.Status),
		"detail":   o.Detail,
		"latency":  o.Latency,
	}
	if o.HTTPStatus != nil {
		fields["http_status"] = *o.HTTPStatus
	}
	return fields
}
