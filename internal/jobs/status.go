package jobs

// Status represents the lifecycle state of a job in the scheduler's
// job table.
//
// Centralizing these here avoids scattering string literals like
// "pending" or "completed" across packages.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusPaused       Status = "paused"
	StatusRetryPending Status = "retry_pending"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether a job in this status will never run again.
// A failed job with retries remaining moves to retry_pending before
// any caller can observe it, so failed counts as terminal here.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority orders jobs within the run queue. Within one priority band
// jobs dispatch in submission order.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes a caller-supplied priority string. Unknown
// values map to normal; the second return reports whether the input
// was recognized so callers can log a warning without failing.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), true
	case "":
		return PriorityNormal, true
	}
	return PriorityNormal, false
}

// rank maps a priority to its queue band. Lower is dispatched first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	}
	return 1
}
