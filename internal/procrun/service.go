package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// TaskState is the lifecycle of one fire-and-forget run accepted over
// the standalone HTTP surface.
type TaskState string

const (
	TaskAccepted  TaskState = "accepted"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// TaskStatus is the polled view of one accepted run. RecentOutput
// holds only the last few stderr lines, never the full capture.
type TaskStatus struct {
	ID           string     `json:"id"`
	State        TaskState  `json:"status"`
	Progress     int        `json:"progress"`
	ExitCode     *int       `json:"exitCode,omitempty"`
	RecentOutput []string   `json:"recentOutput,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

const recentOutputLines = 5

// Service fronts the Supervisor for the standalone process surface:
// it accepts runs, tracks their status for polling clients, and
// forwards cancellation.
type Service struct {
	sup     *Supervisor
	base    context.Context
	tool    string
	log     *slog.Logger
	started time.Time

	mu    sync.Mutex
	tasks map[string]*TaskStatus
}

// NewService binds the service to a base context that outlives any
// single request; every accepted run executes under it, so cancelling
// it (process shutdown) terminates all live runs. Request contexts
// must never reach the run goroutine: fiber recycles them as soon as
// the handler returns.
func NewService(ctx context.Context, sup *Supervisor, toolPath string, logger *slog.Logger) *Service {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		sup:     sup,
		base:    ctx,
		tool:    toolPath,
		log:     logger,
		started: time.Now(),
		tasks:   make(map[string]*TaskStatus),
	}
}

// Launch accepts a run and returns immediately; the process executes
// on its own goroutine under the service's base context. Duplicate
// task ids are rejected.
func (svc *Service) Launch(taskID string, args []string) error {
	if taskID == "" {
		return fmt.Errorf("taskId is required")
	}
	if len(args) == 0 {
		return fmt.Errorf("args are required")
	}

	svc.mu.Lock()
	if _, exists := svc.tasks[taskID]; exists {
		svc.mu.Unlock()
		return fmt.Errorf("task %s already exists", taskID)
	}
	st := &TaskStatus{ID: taskID, State: TaskAccepted, StartedAt: time.Now().UTC()}
	svc.tasks[taskID] = st
	svc.mu.Unlock()

	go svc.run(taskID, args)
	return nil
}

func (svc *Service) run(taskID string, args []string) {
	svc.setState(taskID, func(st *TaskStatus) {
		st.State = TaskRunning
	})

	res, err := svc.sup.Run(svc.base, taskID, svc.tool, args, func(u ProgressUpdate) {
		svc.setState(taskID, func(st *TaskStatus) {
			if u.Percent > st.Progress {
				st.Progress = u.Percent
			}
		})
	})

	now := time.Now().UTC()
	svc.setState(taskID, func(st *TaskStatus) {
		st.EndedAt = &now
		if err != nil {
			st.State = TaskFailed
			var xerr *ExecError
			if errors.As(err, &xerr) {
				code := xerr.ExitCode
				st.ExitCode = &code
				st.RecentOutput = lastLines(xerr.Stderr, recentOutputLines)
			} else {
				st.RecentOutput = []string{err.Error()}
			}
			svc.log.Warn("process task failed", "task", taskID, "err", err)
			return
		}
		zero := 0
		st.ExitCode = &zero
		st.State = TaskCompleted
		st.Progress = 100
		st.RecentOutput = lastLines(res.Stderr, recentOutputLines)
	})
}

func (svc *Service) setState(taskID string, fn func(st *TaskStatus)) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if st := svc.tasks[taskID]; st != nil {
		fn(st)
	}
}

// Status returns a copy of the task's current status.
func (svc *Service) Status(taskID string) (TaskStatus, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	st := svc.tasks[taskID]
	if st == nil {
		return TaskStatus{}, false
	}
	out := *st
	out.RecentOutput = append([]string(nil), st.RecentOutput...)
	return out, true
}

// Cancel forwards a termination signal to the task's live process.
func (svc *Service) Cancel(taskID string) bool {
	return svc.sup.Cancel(taskID)
}

// Count reports how many tasks the service has accepted since start.
func (svc *Service) Count() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.tasks)
}

// Uptime reports how long the service has been running.
func (svc *Service) Uptime() time.Duration {
	return time.Since(svc.started)
}

func lastLines(text string, n int) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
