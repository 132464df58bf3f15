// Package eventlog persists run events: a JSON line per bus event and the
// human-readable status line written after every completed probe.
package eventlog

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/HerbHall/loginwatch/internal/event"
	"github.com/HerbHall/loginwatch/internal/pulse"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StatusTimeLayout is the timestamp format of status lines.
const StatusTimeLayout = "2006-01-02 15:04:05"

// StatusTopic is the topic whose events produce a status line.
const StatusTopic = pulse.TopicProbeCompleted

// Writer is a bus handler. Either destination may be nil.
type Writer struct {
	events *zap.Logger

	mu     sync.Mutex
	status io.Writer
}

// New creates a Writer. Every JSON record carries host and environment.
func New(events, status io.Writer, host, environment string) *Writer {
	w := &Writer{status: status, events: zap.NewNop()}
	if events != nil {
		encCfg := zapcore.EncoderConfig{
			TimeKey:        "ts",
			MessageKey:     "event",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(events), zapcore.DebugLevel)
		w.events = zap.New(core).With(
			zap.String("host", host),
			zap.String("environment", environment),
		)
	}
	return w
}

// Handle records ev. Subscribe it with Bus.SubscribeAll.
func (w *Writer) Handle(_ context.Context, ev event.Event) {
	if ce := w.events.Check(zapcore.InfoLevel, ev.Topic); ce != nil {
		ce.Time = ev.Timestamp
		ce.Write(payloadFields(ev)...)
	}

	if ev.Topic != StatusTopic || w.status == nil {
		return
	}
	fields, _ := ev.Payload.(event.Fields)
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintf(w.status, "%s - %s - %s\n",
		ev.Timestamp.Local().Format(StatusTimeLayout),
		fields.String("status"),
		fields.String("detail"),
	)
}

// Sync flushes the JSON stream.
func (w *Writer) Sync() error {
	return w.events.Sync()
}

func payloadFields(ev event.Event) []zap.Field {
	out := []zap.Field{zap.String("source", ev.Source)}
	switch p := ev.Payload.(type) {
	case nil:
	case event.Fields:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			out = append(out, zap.Any(k, p[k]))
		}
	default:
		out = append(out, zap.Any("payload", p))
	}
	return out
}
