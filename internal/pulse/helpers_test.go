package pulse

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HerbHall/loginwatch/internal/event"
	"github.com/HerbHall/loginwatch/pkg/models"
)

// scriptedProber returns outcomes in order, repeating the last one.
type scriptedProber struct {
	outcomes []models.ProbeOutcome
	calls    int
}

func (p *scriptedProber) Probe(context.Context, string) models.ProbeOutcome {
	i := min(p.calls, len(p.outcomes)-1)
	p.calls++
	return p.outcomes[i]
}

// sleepRecorder records requested delays without blocking.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Total() time.Duration {
	var total time.Duration
	for _, d := range s.delays {
		total += d
	}
	return total
}

// recordingNotifier fails the first failN calls, then succeeds.
type recordingNotifier struct {
	kind   string
	failN  int
	calls  int
	alerts []Alert
}

func (n *recordingNotifier) Notify(_ context.Context, alert Alert) error {
	n.calls++
	if n.calls <= n.failN {
		return errors.New(n.kind + " unavailable")
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) Type() string { return n.kind }

// captureSender records alerts handed to the dispatcher.
type captureSender struct {
	alerts []Alert
}

func (c *captureSender) Send(_ context.Context, alert Alert) int {
	c.alerts = append(c.alerts, alert)
	return 1
}

// memStore is an in-memory StatusStore.
type memStore struct {
	status   models.Status
	writes   int
	readErr  error
	writeErr error
}

func (m *memStore) Read(context.Context) (models.Status, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	if m.status == "" {
		return models.StatusSuccess, nil
	}
	return m.status, nil
}

func (m *memStore) Write(_ context.Context, s models.Status) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.status = s
	m.writes++
	return nil
}

// eventRecorder is an event.Publisher that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, len(r.events))
	for i, e := range r.events {
		topics[i] = e.Topic
	}
	return topics
}

// fakeClock is a settable clock for the throttle.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
