// Package metrics turns run events into Prometheus series. Runs are
// short-lived, so the registry is exported through node_exporter's
// textfile collector instead of an HTTP endpoint.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/loginwatch/internal/event"
	"github.com/HerbHall/loginwatch/internal/pulse"
	"github.com/HerbHall/loginwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry so repeated construction (tests, several
// runs in one process) never collides with the default one.
type Recorder struct {
	registry *prometheus.Registry

	probeTotal   *prometheus.CounterVec
	probeLatency *prometheus.HistogramVec
	alertsTotal  *prometheus.CounterVec
	lastStatus   *prometheus.GaugeVec
}

// New creates a Recorder with all series registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginwatch_probe_total",
				Help: "Completed login probes by final status.",
			},
			[]string{"endpoint", "status"},
		),
		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loginwatch_probe_latency_seconds",
				Help:    "Login probe latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginwatch_alerts_total",
				Help: "Alert deliveries by channel and result.",
			},
			[]string{"channel", "result"},
		),
		lastStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loginwatch_last_status",
				Help: "1 for the endpoint's current status, 0 otherwise.",
			},
			[]string{"endpoint", "status"},
		),
	}
	r.registry.MustRegister(r.probeTotal, r.probeLatency, r.alertsTotal, r.lastStatus)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handle updates series from a bus event. Subscribe it with Bus.SubscribeAll.
func (r *Recorder) Handle(_ context.Context, ev event.Event) {
	fields, ok := ev.Payload.(event.Fields)
	if !ok {
		return
	}

	switch ev.Topic {
	case pulse.TopicProbeCompleted:
		endpoint, status := fields.String("endpoint"), fields.String("status")
		r.probeTotal.WithLabelValues(endpoint, status).Inc()
		if latency, ok := fields["latency"].(time.Duration); ok {
			r.probeLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
		}
		for _, s := range models.Statuses {
			v := 0.0
			if string(s) == status {
				v = 1
			}
			r.lastStatus.WithLabelValues(endpoint, string(s)).Set(v)
		}
	case pulse.TopicAlertDispatched:
		r.alertsTotal.WithLabelValues(fields.String("channel"), "sent").Inc()
	case pulse.TopicAlertDeliveryFailed:
		r.alertsTotal.WithLabelValues(fields.String("channel"), "failed").Inc()
	case pulse.TopicAlertThrottled:
		r.alertsTotal.WithLabelValues("all", "throttled").Inc()
	}
}

// WriteTextfile writes the registry atomically in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
