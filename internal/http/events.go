package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"mixdown/internal/jobs"
)

// taskEventsHandler streams tasksUpdated notifications to UI
// listeners over server-sent events. Every scheduler state change
// produces one event carrying the full task list and the active
// count; slow listeners miss intermediate updates rather than
// blocking the scheduler.
func taskEventsHandler(c *fiber.Ctx) error {
	sched := schedulerFromCtx(c)

	ch, unsubscribe := sched.Subscribe()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		// Send the current state immediately so listeners do not wait
		// for the next change.
		update := jobs.TasksUpdate{Tasks: sched.List(), ActiveCount: sched.ActiveCount()}
		if err := writeSSE(w, update); err != nil {
			return
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				if err := writeSSE(w, update); err != nil {
					return
				}
			case <-keepalive.C:
				// Comment line keeps the connection alive and lets a
				// write failure surface when the client is gone.
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, update jobs.TasksUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: tasksUpdated\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
