package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "completed_jobs.json")
	st := New(path)

	now := time.Now().UTC().Truncate(time.Second)
	in := []Record{
		{
			ID:        "job-1",
			Type:      "waveform",
			Status:    "completed",
			MediaPath: "/media/a.wav",
			CreatedAt: now,
			EndedAt:   &now,
			Result:    json.RawMessage(`{"waveform":[0,1]}`),
		},
	}
	if err := st.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out := st.Load()
	if len(out) != 1 {
		t.Fatalf("loaded %d records, want 1", len(out))
	}
	if out[0].ID != "job-1" || out[0].Type != "waveform" {
		t.Fatalf("loaded record = %+v", out[0])
	}
	if !out[0].CreatedAt.Equal(now) {
		t.Fatalf("createdAt = %v, want %v", out[0].CreatedAt, now)
	}
	if string(out[0].Result) != `{"waveform":[0,1]}` {
		t.Fatalf("result = %s", out[0].Result)
	}
}

// Result payloads are raw JSON produced by json.Marshal, so they are
// compact; a save/load cycle must return them byte for byte.
func TestSaveLoadPreservesResultBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed_jobs.json")
	st := New(path)

	payloads := []string{
		`{"waveform":[0,0.5,1],"duration":12.5}`,
		`{"integratedLufs":-22.7,"loudnessRange":6.4,"peakDbfs":-5.2,"withinEbuTarget":true}`,
	}
	var in []Record
	for i, p := range payloads {
		in = append(in, Record{ID: "job-" + string(rune('a'+i)), Result: json.RawMessage(p)})
	}
	if err := st.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out := st.Load()
	if len(out) != len(payloads) {
		t.Fatalf("loaded %d records, want %d", len(out), len(payloads))
	}
	for i, p := range payloads {
		if string(out[i].Result) != p {
			t.Fatalf("result %d = %q, want %q", i, out[i].Result, p)
		}
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "nope.json"))
	if records := st.Load(); records != nil {
		t.Fatalf("missing file loaded %v, want nil", records)
	}
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed_jobs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := New(path)
	if records := st.Load(); records != nil {
		t.Fatalf("corrupt file loaded %v, want nil", records)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "completed_jobs.json")
	st := New(path)

	if err := st.Save([]Record{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save([]Record{{ID: "c"}}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	out := st.Load()
	if len(out) != 1 || out[0].ID != "c" {
		t.Fatalf("loaded %v, want just c", out)
	}

	// No temp files may survive a successful save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("state dir has %d entries, want 1", len(entries))
	}
}

func TestSaveNilIsEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed_jobs.json")
	st := New(path)
	if err := st.Save(nil); err != nil {
		t.Fatalf("save nil: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Fatalf("empty snapshot = %q, want []", data)
	}
}
