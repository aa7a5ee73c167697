package http

import (
	"encoding/json"
	"time"

	"mixdown/internal/jobs"
)

// CreateTaskRequest is the submission shape consumed by UI
// collaborators. Params stays raw here; each job kind unmarshals it
// into its typed parameter struct at the registry boundary.
type CreateTaskRequest struct {
	Type      string          `json:"type"`
	Params    json.RawMessage `json:"params"`
	DependsOn []string        `json:"dependsOn,omitempty"`
	Priority  string          `json:"priority,omitempty"`
}

type CreateTaskResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}

type BatchTaskItem struct {
	Type      string          `json:"type"`
	Params    json.RawMessage `json:"params"`
	TempID    string          `json:"tempId,omitempty"`
	DependsOn []string        `json:"dependsOn,omitempty"`
	Priority  string          `json:"priority,omitempty"`
}

type BatchTaskRequest struct {
	Tasks []BatchTaskItem `json:"tasks"`
}

type BatchTaskResponse struct {
	Success bool     `json:"success"`
	Code    string   `json:"code,omitempty"`
	Error   string   `json:"error,omitempty"`
	TaskIDs []string `json:"taskIds,omitempty"`
}

// TaskItem is the list/detail view of one job.
type TaskItem struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Progress   int             `json:"progress"`
	Detail     string          `json:"detail,omitempty"`
	Priority   string          `json:"priority"`
	RetryCount int             `json:"retryCount"`
	MediaPath  string          `json:"mediaPath,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	EndedAt    *time.Time      `json:"endedAt,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type TaskStatusResponse struct {
	Success  bool   `json:"success"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
	ID       string `json:"id,omitempty"`
	Status   string `json:"status,omitempty"`
	Progress int    `json:"progress"`
	TaskErr  string `json:"taskError,omitempty"`
}

type TaskResultResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type CancelTaskResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type ListTasksResponse struct {
	Success     bool       `json:"success"`
	Code        string     `json:"code,omitempty"`
	Error       string     `json:"error,omitempty"`
	Tasks       []TaskItem `json:"tasks"`
	ActiveCount int        `json:"activeCount"`
}

func taskItemFromSnapshot(s jobs.Snapshot) TaskItem {
	return TaskItem{
		ID:         s.ID,
		Type:       string(s.Type),
		Status:     string(s.Status),
		Progress:   s.Progress,
		Detail:     s.Detail,
		Priority:   string(s.Priority),
		RetryCount: s.RetryCount,
		MediaPath:  s.MediaPath,
		CreatedAt:  s.CreatedAt,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Result:     s.Result,
		Error:      s.Error,
	}
}

func taskItemsFromSnapshots(snaps []jobs.Snapshot) []TaskItem {
	items := make([]TaskItem, 0, len(snaps))
	for _, s := range snaps {
		items = append(items, taskItemFromSnapshot(s))
	}
	return items
}
