package jobs

// EventKind enumerates job lifecycle notifications. Typed variants
// rather than event-name strings so consumers can switch exhaustively.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventRetrying  EventKind = "retrying"
	EventCancelled EventKind = "cancelled"
	EventPaused    EventKind = "paused"
	EventResumed   EventKind = "resumed"
)

// Event describes one lifecycle transition of one job.
type Event struct {
	Kind   EventKind
	Job    Snapshot
	Detail string
}

// Observer receives every lifecycle event. Callbacks run
// synchronously on scheduler goroutines while the scheduler lock is
// held, so they must not block or call back into the scheduler.
type Observer interface {
	OnJobEvent(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnJobEvent(ev Event) { f(ev) }

// TasksUpdate is the aggregate pushed to UI listeners on every state
// change: the full task list plus the number of jobs currently
// executing.
type TasksUpdate struct {
	Tasks       []Snapshot `json:"tasks"`
	ActiveCount int        `json:"activeCount"`
}
