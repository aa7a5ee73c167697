package jobs

import (
	"encoding/json"
	"time"
)

// Job is one schedulable unit of work. All fields are owned by the
// scheduler and mutated only under its lock; external callers see
// Snapshot copies.
type Job struct {
	ID           string
	Kind         Kind
	Status       Status
	Progress     int
	Detail       string
	Priority     Priority
	RetryCount   int
	MaxRetries   int
	Dependencies []string
	MediaPath    string
	Metadata     map[string]string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	Result       json.RawMessage
	Error        string

	task        Task
	cancellable bool
}

// Snapshot is an immutable copy of a job's observable state, safe to
// hand to HTTP handlers, event subscribers, and the persistence store.
type Snapshot struct {
	ID           string            `json:"id"`
	Type         Kind              `json:"type"`
	Status       Status            `json:"status"`
	Progress     int               `json:"progress"`
	Detail       string            `json:"detail,omitempty"`
	Priority     Priority          `json:"priority"`
	RetryCount   int               `json:"retryCount"`
	MaxRetries   int               `json:"maxRetries"`
	Dependencies []string          `json:"dependencies,omitempty"`
	MediaPath    string            `json:"mediaPath,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	EndedAt      *time.Time        `json:"endedAt,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func (j *Job) snapshot() Snapshot {
	s := Snapshot{
		ID:         j.ID,
		Type:       j.Kind,
		Status:     j.Status,
		Progress:   j.Progress,
		Detail:     j.Detail,
		Priority:   j.Priority,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		MediaPath:  j.MediaPath,
		CreatedAt:  j.CreatedAt,
		Result:     j.Result,
		Error:      j.Error,
	}
	if len(j.Dependencies) > 0 {
		s.Dependencies = append([]string(nil), j.Dependencies...)
	}
	if len(j.Metadata) > 0 {
		s.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			s.Metadata[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		s.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		s.EndedAt = &t
	}
	return s
}

// start moves a pending or retry_pending job into processing and
// records the start time.
func (j *Job) start(now time.Time) error {
	if j.Status != StatusPending && j.Status != StatusRetryPending {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusProcessing}
	}
	j.Status = StatusProcessing
	j.StartedAt = &now
	return nil
}

// updateProgress records a new progress percentage. Progress is
// monotone while processing: stale or lower values are dropped.
// Returns whether anything changed.
func (j *Job) updateProgress(pct int, detail string) bool {
	if j.Status != StatusProcessing {
		return false
	}
	if pct > 99 {
		pct = 99
	}
	if pct < j.Progress {
		return false
	}
	changed := pct != j.Progress || detail != j.Detail
	j.Progress = pct
	j.Detail = detail
	return changed
}

// complete moves a processing job to completed. Progress is forced to
// 100 so the progress==100 <=> completed invariant holds.
func (j *Job) complete(result json.RawMessage, now time.Time) error {
	if j.Status != StatusProcessing {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusCompleted}
	}
	j.Status = StatusCompleted
	j.Progress = 100
	j.Detail = ""
	j.Result = result
	j.Error = ""
	j.EndedAt = &now
	return nil
}

// fail moves a processing job to failed with the given error message.
func (j *Job) fail(msg string, now time.Time) error {
	if j.Status != StatusProcessing && j.Status != StatusPaused {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusFailed}
	}
	j.Status = StatusFailed
	j.Error = msg
	j.EndedAt = &now
	return nil
}

// markRetryPending parks a failed job until its backoff timer fires.
func (j *Job) markRetryPending() error {
	if j.Status != StatusFailed {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusRetryPending}
	}
	j.Status = StatusRetryPending
	// Only failed jobs carry an error; the previous attempt's message
	// does not survive the transition out of failed.
	j.Error = ""
	return nil
}

// requeue returns a retry_pending job to pending for another attempt,
// clearing the previous attempt's residue.
func (j *Job) requeue() error {
	if j.Status != StatusRetryPending {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusPending}
	}
	j.Status = StatusPending
	j.Progress = 0
	j.Detail = ""
	j.Error = ""
	j.StartedAt = nil
	j.EndedAt = nil
	return nil
}

// cancel moves the job to cancelled. Allowed only from pending,
// processing, and retry_pending; a no-op elsewhere. Returns whether
// the transition happened.
func (j *Job) cancel(now time.Time) bool {
	switch j.Status {
	case StatusPending, StatusProcessing, StatusRetryPending:
	default:
		return false
	}
	if j.Status == StatusProcessing && !j.cancellable {
		return false
	}
	j.Status = StatusCancelled
	j.Detail = ""
	j.EndedAt = &now
	return true
}

// pause suspends a processing job.
func (j *Job) pause() error {
	if j.Status != StatusProcessing {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusPaused}
	}
	j.Status = StatusPaused
	return nil
}

// resume returns a paused job to processing.
func (j *Job) resume() error {
	if j.Status != StatusPaused {
		return &InvalidTransitionError{ID: j.ID, From: j.Status, To: StatusProcessing}
	}
	j.Status = StatusProcessing
	return nil
}
