package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"mixdown/internal/jobs"
)

func schedulerFromCtx(c *fiber.Ctx) *jobs.Scheduler {
	sched, _ := c.Locals("scheduler").(*jobs.Scheduler)
	return sched
}

// errorCode maps scheduler errors to an HTTP status and a stable
// machine-readable code.
func errorCode(err error) (int, string) {
	var unknownKind *jobs.UnknownKindError
	var validation *jobs.ValidationError
	var notReady *jobs.ResultNotReadyError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &unknownKind):
		return fiber.StatusBadRequest, "UNKNOWN_TYPE"
	case errors.As(err, &validation):
		return fiber.StatusBadRequest, "BAD_REQUEST"
	case errors.As(err, &notReady):
		return fiber.StatusConflict, "RESULT_NOT_READY"
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}

// createTaskHandler submits one job.
func createTaskHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(CreateTaskResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}
	kind, ok := jobs.ParseKind(req.Type)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(CreateTaskResponse{
			Success: false,
			Code:    "UNKNOWN_TYPE",
			Error:   "unknown task type: " + req.Type,
		})
	}

	id, err := sched.Submit(jobs.SubmitRequest{
		Kind:      kind,
		Params:    req.Params,
		DependsOn: req.DependsOn,
		Priority:  req.Priority,
	})
	if err != nil {
		status, code := errorCode(err)
		return c.Status(status).JSON(CreateTaskResponse{
			Success: false,
			Code:    code,
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(CreateTaskResponse{Success: true, TaskID: id})
}

// createTaskBatchHandler submits several jobs at once; dependencies
// may reference batch entries by temp id or position.
func createTaskBatchHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	var req BatchTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(BatchTaskResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}
	if len(req.Tasks) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(BatchTaskResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "tasks must not be empty",
		})
	}

	items := make([]jobs.BatchItem, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		kind, ok := jobs.ParseKind(t.Type)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(BatchTaskResponse{
				Success: false,
				Code:    "UNKNOWN_TYPE",
				Error:   "unknown task type: " + t.Type,
			})
		}
		items = append(items, jobs.BatchItem{
			Kind:      kind,
			Params:    t.Params,
			Priority:  t.Priority,
			TempID:    t.TempID,
			DependsOn: t.DependsOn,
		})
	}

	ids, err := sched.SubmitBatch(items)
	if err != nil {
		status, code := errorCode(err)
		return c.Status(status).JSON(BatchTaskResponse{
			Success: false,
			Code:    code,
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(BatchTaskResponse{Success: true, TaskIDs: ids})
}

// taskStatusHandler returns one task's lifecycle status.
func taskStatusHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	snap, err := sched.Get(c.Params("id"))
	if err != nil {
		status, code := errorCode(err)
		return c.Status(status).JSON(TaskStatusResponse{
			Success: false,
			Code:    code,
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(TaskStatusResponse{
		Success:  true,
		ID:       snap.ID,
		Status:   string(snap.Status),
		Progress: snap.Progress,
		TaskErr:  snap.Error,
	})
}

// taskResultHandler returns the result payload of a completed task.
func taskResultHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	data, err := sched.Result(c.Params("id"))
	if err != nil {
		status, code := errorCode(err)
		return c.Status(status).JSON(TaskResultResponse{
			Success: false,
			Code:    code,
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(TaskResultResponse{Success: true, Data: data})
}

// cancelTaskHandler cancels one task. A task already terminal reports
// success=false with its current status, which is the accepted
// outcome of a cancel racing a natural completion.
func cancelTaskHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	out, err := sched.Cancel(c.Params("id"))
	if err != nil {
		status, code := errorCode(err)
		return c.Status(status).JSON(CancelTaskResponse{
			Success: false,
			Code:    code,
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(CancelTaskResponse{
		Success: out.Cancelled,
		Message: out.Message,
	})
}

// listTasksHandler lists all tasks in submission order.
func listTasksHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)
	return c.Status(fiber.StatusOK).JSON(ListTasksResponse{
		Success:     true,
		Tasks:       taskItemsFromSnapshots(sched.List()),
		ActiveCount: sched.ActiveCount(),
	})
}

// findTasksHandler filters tasks by media path and optionally by type.
func findTasksHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	mediaPath := c.Query("media")
	if mediaPath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ListTasksResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "media query parameter is required",
		})
	}
	var kind jobs.Kind
	if t := c.Query("type"); t != "" {
		k, ok := jobs.ParseKind(t)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(ListTasksResponse{
				Success: false,
				Code:    "UNKNOWN_TYPE",
				Error:   "unknown task type: " + t,
			})
		}
		kind = k
	}

	return c.Status(fiber.StatusOK).JSON(ListTasksResponse{
		Success:     true,
		Tasks:       taskItemsFromSnapshots(sched.FindByMedia(mediaPath, kind)),
		ActiveCount: sched.ActiveCount(),
	})
}
