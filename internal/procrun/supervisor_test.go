package procrun

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// The supervisor is tool-agnostic, so the tests drive it with sh
// instead of ffmpeg.

func TestRunCapturesStdout(t *testing.T) {
	sup := New(nil)
	res, err := sup.Run(context.Background(), "j1", "sh", []string{"-c", "printf hello"}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(res.Stdout) != "hello" {
		t.Fatalf("stdout = %q, want hello", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if sup.Running() != 0 {
		t.Fatal("process still tracked after exit")
	}
}

func TestRunNonzeroExitIsExecError(t *testing.T) {
	sup := New(nil)
	_, err := sup.Run(context.Background(), "j1", "sh", []string{"-c", "echo decoder failure >&2; exit 3"}, nil)
	var xerr *ExecError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if xerr.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", xerr.ExitCode)
	}
	if !strings.Contains(xerr.Stderr, "decoder failure") {
		t.Fatalf("stderr tail = %q, want the failure line", xerr.Stderr)
	}
}

func TestRunSpawnFailureIsExecError(t *testing.T) {
	sup := New(nil)
	_, err := sup.Run(context.Background(), "j1", "/no/such/binary", nil, nil)
	var xerr *ExecError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
}

func TestRunContextCancellation(t *testing.T) {
	sup := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := sup.Run(ctx, "j1", "sh", []string{"-c", "sleep 30"}, nil)
		done <- err
	}()

	waitForRunning(t, sup, 1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestCancelSignalsLiveProcess(t *testing.T) {
	sup := New(nil)

	done := make(chan error, 1)
	go func() {
		_, err := sup.Run(context.Background(), "j1", "sh", []string{"-c", "sleep 30"}, nil)
		done <- err
	}()

	waitForRunning(t, sup, 1)
	if !sup.Cancel("j1") {
		t.Fatal("cancel of a live process must succeed")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("terminated process must not report success")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after SIGTERM")
	}

	// The race-loss path: the process is gone now.
	if sup.Cancel("j1") {
		t.Fatal("cancel after exit must report false")
	}
}

// A subprocess of the tool inherits the stderr pipe; cancellation must
// bring the whole group down or Run would block on the pipe until the
// orphan exits.
func TestCancelKillsProcessGroup(t *testing.T) {
	sup := New(nil)

	done := make(chan error, 1)
	go func() {
		_, err := sup.Run(context.Background(), "j1", "sh", []string{"-c", "sleep 30 & sleep 30"}, nil)
		done <- err
	}()

	waitForRunning(t, sup, 1)
	if !sup.Cancel("j1") {
		t.Fatal("cancel of a live process must succeed")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("terminated process must not report success")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after the group was signalled")
	}
}

func TestContextKillReachesSubprocesses(t *testing.T) {
	sup := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := sup.Run(ctx, "j1", "sh", []string{"-c", "sleep 30 & sleep 30"}, nil)
		done <- err
	}()

	waitForRunning(t, sup, 1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunParsesProgressFromStderr(t *testing.T) {
	sup := New(nil)
	script := `printf 'Duration: 00:00:10.00, start: 0\n' >&2; printf 'frame=1 time=00:00:05.00 speed=1x\n' >&2`

	var updates []ProgressUpdate
	_, err := sup.Run(context.Background(), "j1", "sh", []string{"-c", script}, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].Percent != 50 {
		t.Fatalf("percent = %d, want 50", updates[0].Percent)
	}
}

func TestRunKeepsStderrTailOnly(t *testing.T) {
	sup := New(nil)
	script := `i=0; while [ $i -lt 100 ]; do echo "line $i" >&2; i=$((i+1)); done; exit 1`

	_, err := sup.Run(context.Background(), "j1", "sh", []string{"-c", script}, nil)
	var xerr *ExecError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	lines := strings.Split(xerr.Stderr, "\n")
	if len(lines) != stderrTailLines {
		t.Fatalf("tail holds %d lines, want %d", len(lines), stderrTailLines)
	}
	if lines[len(lines)-1] != "line 99" {
		t.Fatalf("last tail line = %q, want line 99", lines[len(lines)-1])
	}
}

func TestScanStatusLinesSplitsOnCarriageReturn(t *testing.T) {
	data := []byte("first\rsecond\nthird")

	adv, tok, _ := scanStatusLines(data, false)
	if string(tok) != "first" || adv != 6 {
		t.Fatalf("token = %q adv = %d", tok, adv)
	}
	data = data[adv:]
	adv, tok, _ = scanStatusLines(data, false)
	if string(tok) != "second" {
		t.Fatalf("token = %q", tok)
	}
	data = data[adv:]
	_, tok, _ = scanStatusLines(data, true)
	if string(tok) != "third" {
		t.Fatalf("token = %q", tok)
	}
}

func waitForRunning(t *testing.T, sup *Supervisor, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sup.Running() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d running processes", n)
}
