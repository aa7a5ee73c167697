package jobs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"mixdown/internal/store"
)

func TestPersistAndRestoreCompletedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed_jobs.json")
	st := store.New(path)

	reg := stubRegistry(KindWaveform, KindConfig{Cancellable: true}, func(ctx context.Context, rc *RunContext) (json.RawMessage, error) {
		return json.RawMessage(`{"waveform":[0.5]}`), nil
	})
	s := New(reg, st, nil, Options{})

	id, err := s.Submit(SubmitRequest{Kind: KindWaveform})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "job completed", func() bool {
		snap, _ := s.Get(id)
		return snap.Status == StatusCompleted
	})
	if err := s.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// A fresh scheduler over the same store sees the finished job.
	restored := New(reg, store.New(path), nil, Options{})
	snap, err := restored.Get(id)
	if err != nil {
		t.Fatalf("restored job missing: %v", err)
	}
	if snap.Status != StatusCompleted {
		t.Fatalf("restored status = %s, want completed", snap.Status)
	}
	if snap.Progress != 100 {
		t.Fatalf("restored progress = %d, want 100", snap.Progress)
	}
	if string(snap.Result) != `{"waveform":[0.5]}` {
		t.Fatalf("restored result = %s", snap.Result)
	}
}

func TestPersistSkipsNonCompletedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed_jobs.json")
	st := store.New(path)

	reg := stubRegistry(KindWaveform, KindConfig{Cancellable: true}, func(ctx context.Context, rc *RunContext) (json.RawMessage, error) {
		return nil, Validationf("bad input")
	})
	s := New(reg, st, nil, Options{})

	id, _ := s.Submit(SubmitRequest{Kind: KindWaveform})
	waitFor(t, "job failed", func() bool {
		snap, _ := s.Get(id)
		return snap.Status == StatusFailed
	})
	if err := s.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if records := store.New(path).Load(); len(records) != 0 {
		t.Fatalf("failed jobs persisted: %v", records)
	}
}
