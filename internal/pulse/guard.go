package pulse

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/loginwatch/internal/event"
	"go.uber.org/zap"
)

// CrashHandler is the top-level failure handler for a run. Anything that
// escapes the wrapped function, error or panic, is logged once at critical
// severity and reported on every alert channel.
type CrashHandler struct {
	dispatcher AlertSender
	tags       AlertTags
	bus        event.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewCrashHandler creates a handler. bus may be nil.
func NewCrashHandler(dispatcher AlertSender, tags AlertTags, bus event.Publisher, logger *zap.Logger) *CrashHandler {
	return &CrashHandler{
		dispatcher: dispatcher,
		tags:       tags,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
	}
}

// Run calls fn and returns its error, converting a panic into an error.
// The critical alert is sent even when ctx has been cancelled.
func (h *CrashHandler) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			h.logger.Error("run panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
		if err == nil {
			return
		}

		h.logger.Error("critical failure, run aborted",
			zap.String("severity", "critical"),
			zap.Error(err),
		)

		alertCtx := context.WithoutCancel(ctx)
		if h.bus != nil {
			_ = h.bus.Publish(alertCtx, event.Event{
				Topic:     TopicRunCrashed,
				Source:    "guard",
				Timestamp: h.now(),
				Payload:   event.Fields{"error": err.Error()},
			})
		}
		h.dispatcher.Send(alertCtx, RenderCritical(err, h.tags, h.now()))
	}()

	return fn(ctx)
}
