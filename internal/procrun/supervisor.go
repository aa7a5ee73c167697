// Package procrun supervises the external media tool processes:
// spawning, output capture, progress extraction from unstructured
// stderr, and signal-based cancellation.
package procrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"mixdown/internal/metrics"
)

// stderrTailLines bounds how much stderr is retained for error
// reporting and result parsing. The ebur128 summary block sits at the
// very end of ffmpeg's output, so the tail must be deep enough to
// hold it.
const stderrTailLines = 40

// ExecError reports a spawn failure or nonzero exit, carrying the
// exit code and the captured stderr tail. Jobs failing with ExecError
// are retried per the scheduler's backoff policy.
type ExecError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	msg := e.Stderr
	if len(msg) > 300 {
		msg = msg[len(msg)-300:]
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, msg)
}

// Result is a successful run's captured output.
type Result struct {
	ExitCode        int
	Stdout          []byte
	Stderr          string
	DurationSeconds float64
}

// ProgressFunc receives progress updates as they are parsed.
type ProgressFunc func(u ProgressUpdate)

type record struct {
	cmd      *exec.Cmd
	tool     string
	progress int
}

// Supervisor spawns and tracks external tool processes. One record
// exists per live process, keyed by job id; it is created when the
// process starts and destroyed when the process exits or is killed.
type Supervisor struct {
	mu    sync.Mutex
	procs map[string]*record
	log   *slog.Logger
}

func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{procs: make(map[string]*record), log: logger}
}

// Run spawns the tool and blocks until it exits. Stdout is captured
// whole (waveform extraction reads binary PCM from it); stderr is
// scanned incrementally for progress. A nonzero exit returns
// *ExecError; a context cancellation returns the context's error.
func (s *Supervisor) Run(ctx context.Context, jobID, path string, args []string, onProgress ProgressFunc) (*Result, error) {
	tool := filepath.Base(path)
	cmd := exec.CommandContext(ctx, path, args...)

	// The tool runs in its own process group so cancellation reaches
	// any subprocess it spawned. A grandchild inheriting the stderr
	// pipe would otherwise keep the scan loop blocked long after the
	// tool itself died. WaitDelay forces the pipes closed if the group
	// still lingers after a context kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 3 * time.Second

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Tool: tool, ExitCode: -1, Stderr: err.Error()}
	}
	metrics.RecordProcessStart(tool)
	s.log.Debug("spawned process", "tool", tool, "job", jobID, "pid", cmd.Process.Pid)

	rec := &record{cmd: cmd, tool: tool}
	s.mu.Lock()
	s.procs[jobID] = rec
	s.mu.Unlock()

	parser := &ProgressParser{}
	var tail []string
	sc := bufio.NewScanner(stderrPipe)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanStatusLines)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
		if u, ok := parser.Feed(line); ok {
			s.mu.Lock()
			rec.progress = u.Percent
			s.mu.Unlock()
			if onProgress != nil {
				onProgress(u)
			}
		}
	}

	waitErr := cmd.Wait()

	s.mu.Lock()
	delete(s.procs, jobID)
	s.mu.Unlock()

	stderrText := strings.Join(tail, "\n")
	if waitErr != nil {
		metrics.RecordProcessExit(tool, false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := -1
		var xerr *exec.ExitError
		if errors.As(waitErr, &xerr) {
			code = xerr.ExitCode()
		}
		return nil, &ExecError{Tool: tool, ExitCode: code, Stderr: stderrText}
	}

	metrics.RecordProcessExit(tool, true)
	return &Result{
		ExitCode:        0,
		Stdout:          stdout.Bytes(),
		Stderr:          stderrText,
		DurationSeconds: parser.TotalSeconds(),
	}, nil
}

// Cancel sends SIGTERM to the live process group for the job. Returns
// false when the process is no longer tracked — a cancel losing the
// race against natural exit is an accepted outcome, not an error.
func (s *Supervisor) Cancel(jobID string) bool {
	return s.signal(jobID, syscall.SIGTERM)
}

// Pause stops the live process group in place with SIGSTOP.
func (s *Supervisor) Pause(jobID string) bool {
	return s.signal(jobID, syscall.SIGSTOP)
}

// Resume continues a SIGSTOPped process group.
func (s *Supervisor) Resume(jobID string) bool {
	return s.signal(jobID, syscall.SIGCONT)
}

func (s *Supervisor) signal(jobID string, sig syscall.Signal) bool {
	s.mu.Lock()
	rec := s.procs[jobID]
	s.mu.Unlock()
	if rec == nil || rec.cmd.Process == nil {
		return false
	}
	return syscall.Kill(-rec.cmd.Process.Pid, sig) == nil
}

// Progress returns the last parsed progress percent for a live
// process.
func (s *Supervisor) Progress(jobID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.procs[jobID]
	if rec == nil {
		return 0, false
	}
	return rec.progress, true
}

// Running reports how many processes are currently tracked.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// scanStatusLines splits on \n or \r so ffmpeg's carriage-return
// status line is seen incrementally instead of only at exit.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
