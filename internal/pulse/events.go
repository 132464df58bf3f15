package pulse

// Event topics published during a run.
const (
	TopicProbeAttempt        = "probe.attempt"
	TopicProbeCompleted      = "probe.completed"
	TopicReachability        = "probe.reachability"
	TopicStatusChanged       = "status.changed"
	TopicAlertThrottled      = "alert.throttled"
	TopicAlertDispatched     = "alert.dispatched"
	TopicAlertDeliveryFailed = "alert.delivery_failed"
	TopicRunCompleted        = "run.completed"
	TopicRunCrashed          = "run.crashed"
)
