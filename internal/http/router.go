package http

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mixdown/internal/config"
	"mixdown/internal/jobs"
	"mixdown/internal/metrics"
	"mixdown/internal/procrun"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	sched  *jobs.Scheduler
	logger *slog.Logger
}

// NewServer builds the HTTP surface. sched enables the task API and
// event stream; procSvc enables the standalone process surface.
// Either may be nil depending on the process role.
func NewServer(cfg *config.Config, sched *jobs.Scheduler, procSvc *procrun.Service, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Inject config, scheduler, and process service for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		if sched != nil {
			c.Locals("scheduler", sched)
		}
		if procSvc != nil {
			c.Locals("procservice", procSvc)
		}
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check tool availability and persistence-dir
		// writability.
		ffmpegStatus := "ok"
		if _, err := exec.LookPath(cfg.Tools.FFmpegPath); err != nil {
			ffmpegStatus = "missing"
		}
		ffprobeStatus := "ok"
		if _, err := exec.LookPath(cfg.Tools.FFprobePath); err != nil {
			ffprobeStatus = "missing"
		}

		stateStatus := "ok"
		stateDir := filepath.Dir(cfg.PersistencePath())
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			stateStatus = "error"
		}

		status := "ok"
		if ffmpegStatus != "ok" || stateStatus != "ok" {
			status = "error"
		}

		resp := fiber.Map{
			"status":  status,
			"ffmpeg":  ffmpegStatus,
			"ffprobe": ffprobeStatus,
			"state":   stateStatus,
		}
		if sched != nil {
			resp["activeCount"] = sched.ActiveCount()
		}
		return c.JSON(resp)
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	if sched != nil {
		v1 := app.Group("/v1")
		registerTaskRoutes(v1)
	}
	if procSvc != nil {
		registerProcessRoutes(app)
	}

	return &Server{
		app:    app,
		config: cfg,
		sched:  sched,
		logger: logger,
	}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// ShutdownWithTimeout drains in-flight requests before returning.
func (s *Server) ShutdownWithTimeout(d time.Duration) error {
	return s.app.ShutdownWithTimeout(d)
}

func registerTaskRoutes(group fiber.Router) {
	group.Post("/tasks", createTaskHandler)
	group.Post("/tasks/batch", createTaskBatchHandler)
	group.Get("/tasks", listTasksHandler)
	group.Get("/tasks/events", taskEventsHandler)
	group.Get("/tasks/find", findTasksHandler)
	group.Get("/tasks/:id", taskStatusHandler)
	group.Get("/tasks/:id/result", taskResultHandler)
	group.Post("/tasks/:id/cancel", cancelTaskHandler)
}

func registerProcessRoutes(app *fiber.App) {
	app.Post("/process", processAcceptHandler)
	app.Get("/status/:taskId", processStatusHandler)
	app.Post("/cancel/:taskId", processCancelHandler)
	app.Get("/health", processHealthHandler)
}
