package jobs

import (
	"context"
	"encoding/json"
	"sync"
)

// Kind identifies a registered job type. The set is closed: handlers
// parse caller input through ParseKind so arbitrary strings never
// reach the registry.
type Kind string

const (
	KindWaveform  Kind = "waveform"
	KindThumbnail Kind = "thumbnail"
	KindLoudness  Kind = "loudness"
	KindProbe     Kind = "probe"
	KindProcess   Kind = "process"
)

// ParseKind validates a caller-supplied job type string.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindWaveform, KindThumbnail, KindLoudness, KindProbe, KindProcess:
		return Kind(s), true
	}
	return Kind(s), false
}

// RunContext is handed to a task's Execute and carries the job id plus
// a progress callback wired back into the scheduler.
type RunContext struct {
	JobID    string
	progress func(pct int, detail string)
}

// Progress reports execution progress as a 0-100 percentage. Values
// below the last reported percentage are ignored by the scheduler.
func (rc *RunContext) Progress(pct int, detail string) {
	if rc.progress != nil {
		rc.progress(pct, detail)
	}
}

// Task is the executable behavior behind one job. Execute returns the
// job's result payload, already serialized.
type Task interface {
	Execute(ctx context.Context, rc *RunContext) (json.RawMessage, error)
}

// Canceller is implemented by tasks that can interrupt a live
// execution (process-backed tasks send a termination signal). The
// return value reports whether anything was actually interrupted.
type Canceller interface {
	CancelExec(jobID string) bool
}

// Pauser is implemented by tasks whose execution can be suspended and
// resumed in place.
type Pauser interface {
	PauseExec(jobID string) bool
	ResumeExec(jobID string) bool
}

// TaskInfo is returned by a factory alongside the task so the
// scheduler can index the job without inspecting raw parameters.
type TaskInfo struct {
	MediaPath string
	Metadata  map[string]string
}

// Factory builds a task from raw parameters. Parameter validation
// happens here; a ValidationError fails the submission synchronously.
type Factory func(params json.RawMessage) (Task, TaskInfo, error)

// ResultHandler optionally post-processes a successful result payload
// before it is recorded on the job.
type ResultHandler func(raw json.RawMessage) (json.RawMessage, error)

// KindConfig carries per-kind scheduling defaults.
type KindConfig struct {
	// MaxRetries overrides the scheduler default when > 0.
	MaxRetries int
	// Cancellable marks kinds whose jobs may be cancelled after they
	// start executing.
	Cancellable bool
}

// Definition binds a kind to its factory and optional result handler.
type Definition struct {
	Kind         Kind
	Config       KindConfig
	New          Factory
	HandleResult ResultHandler
}

// Registry maps job kinds to their definitions. Duplicate
// registration overwrites, which keeps tests free to re-register
// kinds with instrumented factories.
type Registry struct {
	mu   sync.RWMutex
	defs map[Kind]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[Kind]Definition)}
}

func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Kind] = def
}

// Create instantiates a task for the given kind. Returns an
// UnknownKindError when the kind was never registered.
func (r *Registry) Create(kind Kind, params json.RawMessage) (Task, TaskInfo, KindConfig, error) {
	r.mu.RLock()
	def, ok := r.defs[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, TaskInfo{}, KindConfig{}, &UnknownKindError{Kind: kind}
	}
	task, info, err := def.New(params)
	if err != nil {
		return nil, TaskInfo{}, KindConfig{}, err
	}
	return task, info, def.Config, nil
}

// HandleResult applies the registered post-processor for the kind, or
// returns the raw payload unchanged when none is registered.
func (r *Registry) HandleResult(kind Kind, raw json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	def, ok := r.defs[kind]
	r.mu.RUnlock()
	if !ok || def.HandleResult == nil {
		return raw, nil
	}
	return def.HandleResult(raw)
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.defs))
	for k := range r.defs {
		kinds = append(kinds, k)
	}
	return kinds
}
