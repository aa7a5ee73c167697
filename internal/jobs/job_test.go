package jobs

import (
	"testing"
	"time"
)

func TestJobLifecycleTransitions(t *testing.T) {
	now := time.Now().UTC()
	j := &Job{ID: "j1", Status: StatusPending, cancellable: true}

	if err := j.start(now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if j.StartedAt == nil {
		t.Fatal("start must record StartedAt")
	}
	if err := j.complete([]byte(`{"ok":true}`), now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.Progress != 100 {
		t.Fatalf("completed progress = %d, want 100", j.Progress)
	}
	if j.EndedAt == nil {
		t.Fatal("complete must record EndedAt")
	}

	// Terminal jobs reject further transitions.
	if err := j.start(now); err == nil {
		t.Fatal("start on completed job must fail")
	}
	if j.cancel(now) {
		t.Fatal("cancel on completed job must be a no-op")
	}
}

func TestJobProgressRules(t *testing.T) {
	now := time.Now().UTC()
	j := &Job{ID: "j1", Status: StatusPending}

	if j.updateProgress(10, "") {
		t.Fatal("progress on a pending job must be ignored")
	}
	_ = j.start(now)

	if !j.updateProgress(40, "forty") {
		t.Fatal("first progress update must apply")
	}
	if j.updateProgress(30, "stale") {
		t.Fatal("lower progress must be dropped")
	}
	if !j.updateProgress(120, "overshoot") {
		t.Fatal("capped update still changes the value")
	}
	if j.Progress != 99 {
		t.Fatalf("progress = %d, want cap of 99", j.Progress)
	}
}

func TestJobRetryRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	j := &Job{ID: "j1", Status: StatusPending}
	_ = j.start(now)
	_ = j.updateProgress(60, "")
	if err := j.fail("boom", now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := j.markRetryPending(); err != nil {
		t.Fatalf("markRetryPending: %v", err)
	}
	// Only failed jobs carry an error message.
	if j.Error != "" {
		t.Fatalf("retry_pending job carries error %q, want none", j.Error)
	}
	if err := j.requeue(); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if j.Status != StatusPending || j.Progress != 0 || j.Error != "" || j.StartedAt != nil {
		t.Fatalf("requeue must reset attempt residue, got %+v", j)
	}
}

func TestJobCancelRespectsCancellable(t *testing.T) {
	now := time.Now().UTC()

	j := &Job{ID: "j1", Status: StatusProcessing, cancellable: false}
	if j.cancel(now) {
		t.Fatal("non-cancellable processing job must refuse cancel")
	}

	j = &Job{ID: "j2", Status: StatusProcessing, cancellable: true}
	if !j.cancel(now) {
		t.Fatal("cancellable processing job must cancel")
	}
	if j.EndedAt == nil {
		t.Fatal("cancel must record EndedAt")
	}
}

func TestJobPauseResume(t *testing.T) {
	now := time.Now().UTC()
	j := &Job{ID: "j1", Status: StatusPending}

	if err := j.pause(); err == nil {
		t.Fatal("pause on pending job must fail")
	}
	_ = j.start(now)
	if err := j.pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if j.cancel(now) {
		t.Fatal("paused jobs are not directly cancellable")
	}
	if err := j.resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if j.Status != StatusProcessing {
		t.Fatalf("status after resume = %s, want processing", j.Status)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	j := &Job{
		ID:           "j1",
		Status:       StatusPending,
		Dependencies: []string{"p1"},
		Metadata:     map[string]string{"k": "v"},
	}
	snap := j.snapshot()
	snap.Dependencies[0] = "mutated"
	snap.Metadata["k"] = "mutated"
	if j.Dependencies[0] != "p1" || j.Metadata["k"] != "v" {
		t.Fatal("snapshot must copy slices and maps")
	}
}
