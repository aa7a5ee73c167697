package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mixdown/internal/procrun"
)

// The process surface is served when the supervisor runs as its own
// service instead of in-process. It is deliberately minimal: accept,
// poll, cancel, health.

type ProcessRequest struct {
	TaskID string   `json:"taskId"`
	Args   []string `json:"args"`
}

type ProcessAcceptedResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Status  string `json:"status,omitempty"`
}

type ProcessStatusResponse struct {
	Success      bool     `json:"success"`
	Code         string   `json:"code,omitempty"`
	Error        string   `json:"error,omitempty"`
	Status       string   `json:"status,omitempty"`
	Progress     int      `json:"progress"`
	ExitCode     *int     `json:"exitCode,omitempty"`
	RecentOutput []string `json:"recentOutput,omitempty"`
}

type ProcessCancelResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  string `json:"status,omitempty"`
}

type ProcessHealthResponse struct {
	Status    string  `json:"status"`
	UptimeSec float64 `json:"uptime"`
	TaskCount int     `json:"taskCount"`
}

func procServiceFromCtx(c *fiber.Ctx) *procrun.Service {
	svc, _ := c.Locals("procservice").(*procrun.Service)
	return svc
}

// processAcceptHandler accepts a fire-and-forget run.
func processAcceptHandler(c *fiber.Ctx) error {
	svc := procServiceFromCtx(c)

	var req ProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ProcessAcceptedResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}
	if err := svc.Launch(req.TaskID, req.Args); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ProcessAcceptedResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(ProcessAcceptedResponse{
		Success: true,
		TaskID:  req.TaskID,
		Status:  "accepted",
	})
}

// processStatusHandler polls one accepted run. Full stdout/stderr is
// never returned, only the trailing lines.
func processStatusHandler(c *fiber.Ctx) error {
	svc := procServiceFromCtx(c)

	st, ok := svc.Status(c.Params("taskId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ProcessStatusResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "unknown task id",
		})
	}
	return c.Status(fiber.StatusOK).JSON(ProcessStatusResponse{
		Success:      true,
		Status:       string(st.State),
		Progress:     st.Progress,
		ExitCode:     st.ExitCode,
		RecentOutput: st.RecentOutput,
	})
}

// processCancelHandler requests termination of a live run.
func processCancelHandler(c *fiber.Ctx) error {
	svc := procServiceFromCtx(c)

	taskID := c.Params("taskId")
	if _, ok := svc.Status(taskID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ProcessCancelResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "unknown task id",
		})
	}
	svc.Cancel(taskID)
	return c.Status(fiber.StatusOK).JSON(ProcessCancelResponse{
		Success: true,
		Status:  "cancel_requested",
	})
}

// processHealthHandler reports service liveness.
func processHealthHandler(c *fiber.Ctx) error {
	svc := procServiceFromCtx(c)
	return c.Status(fiber.StatusOK).JSON(ProcessHealthResponse{
		Status:    "ok",
		UptimeSec: svc.Uptime().Round(time.Second).Seconds(),
		TaskCount: svc.Count(),
	})
}
