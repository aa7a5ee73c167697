package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"mixdown/internal/procrun"
)

func newProcessApp() (*fiber.App, *procrun.Service) {
	svc := procrun.NewService(context.Background(), procrun.New(nil), "sh", nil)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("procservice", svc)
		return c.Next()
	})
	registerProcessRoutes(app)
	return app, svc
}

func TestProcessAccept(t *testing.T) {
	app, _ := newProcessApp()

	resp, body := doJSON(t, app, http.MethodPost, "/process", ProcessRequest{
		TaskID: "t1",
		Args:   []string{"-c", "true"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body["status"] != "accepted" {
		t.Fatalf("body = %v", body)
	}
}

func TestProcessAcceptRejectsMissingArgs(t *testing.T) {
	app, _ := newProcessApp()

	resp, _ := doJSON(t, app, http.MethodPost, "/process", ProcessRequest{TaskID: "t1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProcessStatusLifecycle(t *testing.T) {
	app, _ := newProcessApp()

	doJSON(t, app, http.MethodPost, "/process", ProcessRequest{
		TaskID: "t1",
		Args:   []string{"-c", "echo fin >&2"},
	})

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, body := doJSON(t, app, http.MethodGet, "/status/t1", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if body["status"] == "completed" {
			if body["exitCode"] != float64(0) {
				t.Fatalf("exitCode = %v, want 0", body["exitCode"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed, last body = %v", body)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessStatusUnknown(t *testing.T) {
	app, _ := newProcessApp()

	resp, body := doJSON(t, app, http.MethodGet, "/status/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestProcessCancel(t *testing.T) {
	app, svc := newProcessApp()

	doJSON(t, app, http.MethodPost, "/process", ProcessRequest{
		TaskID: "t1",
		Args:   []string{"-c", "sleep 30"},
	})
	deadline := time.Now().Add(3 * time.Second)
	for {
		if st, ok := svc.Status("t1"); ok && st.State == procrun.TaskRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, body := doJSON(t, app, http.MethodPost, "/cancel/t1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "cancel_requested" {
		t.Fatalf("body = %v", body)
	}
}

func TestProcessHealth(t *testing.T) {
	app, _ := newProcessApp()

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["taskCount"]; !ok {
		t.Fatal("health must report taskCount")
	}
}
