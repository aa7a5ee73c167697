package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"mixdown/internal/metrics"
	"mixdown/internal/store"
)

const (
	DefaultMaxConcurrentTasks = 3
	DefaultMaxRetries         = 3
	DefaultPersistInterval    = 30 * time.Second
)

// defaultBackoff is indexed by retry attempt (1-based); attempts past
// the end of the schedule reuse the final delay.
var defaultBackoff = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// Options tunes the scheduler. Zero values fall back to defaults at
// construction time.
type Options struct {
	MaxConcurrentTasks int
	MaxRetries         int
	Backoff            []time.Duration
	PersistInterval    time.Duration

	// History retention: terminal jobs older than CompletedTTL are
	// dropped from the table every CleanupInterval. Zero disables.
	CleanupInterval time.Duration
	CompletedTTL    time.Duration
}

// Scheduler owns the job table, the dependency graph, the run queue,
// the concurrency gate, the retry policy, and periodic persistence.
// There is exactly one scheduler per process; every table or queue
// mutation happens under its single mutex.
type Scheduler struct {
	log *slog.Logger
	reg *Registry
	st  *store.Store

	opts Options

	runCtx    context.Context
	runCancel context.CancelFunc

	mu          sync.Mutex
	jobs        map[string]*Job
	order       []string
	queue       *runQueue
	graph       *depGraph
	running     int
	draining    bool
	retryTimers map[string]*time.Timer
	subs        map[int]chan TasksUpdate
	nextSub     int
	observers   []Observer
	dirty       bool
	closed      bool

	wg   sync.WaitGroup
	stop chan struct{}
}

// New constructs a scheduler and restores completed jobs from the
// store so finished work survives a restart. Restored jobs are never
// re-run.
func New(reg *Registry, st *store.Store, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.PersistInterval <= 0 {
		opts.PersistInterval = DefaultPersistInterval
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	s := &Scheduler{
		log:         logger,
		reg:         reg,
		st:          st,
		opts:        opts,
		runCtx:      runCtx,
		runCancel:   runCancel,
		jobs:        make(map[string]*Job),
		queue:       newRunQueue(),
		graph:       newDepGraph(),
		retryTimers: make(map[string]*time.Timer),
		subs:        make(map[int]chan TasksUpdate),
		stop:        make(chan struct{}),
	}

	if st != nil {
		for _, rec := range st.Load() {
			if Status(rec.Status) != StatusCompleted || rec.ID == "" {
				continue
			}
			if _, exists := s.jobs[rec.ID]; exists {
				continue
			}
			job := &Job{
				ID:        rec.ID,
				Kind:      Kind(rec.Type),
				Status:    StatusCompleted,
				Progress:  100,
				Priority:  PriorityNormal,
				MediaPath: rec.MediaPath,
				CreatedAt: rec.CreatedAt,
				StartedAt: rec.StartedAt,
				EndedAt:   rec.EndedAt,
				Result:    rec.Result,
			}
			s.jobs[rec.ID] = job
			s.order = append(s.order, rec.ID)
		}
		if len(s.jobs) > 0 {
			logger.Info("restored completed jobs from snapshot", "count", len(s.jobs))
		}
	}

	return s
}

// AddObserver registers a lifecycle observer. Observers are invoked
// synchronously on scheduler goroutines and must not block or call
// back into the scheduler.
func (s *Scheduler) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Subscribe returns a channel receiving a TasksUpdate on every state
// change, plus an unsubscribe func. Slow consumers miss intermediate
// updates rather than blocking the scheduler.
func (s *Scheduler) Subscribe() (<-chan TasksUpdate, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan TasksUpdate, 8)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	Kind      Kind
	Params    json.RawMessage
	DependsOn []string
	Priority  string
}

// Submit creates a job and either enqueues it immediately or leaves it
// pending-blocked until its dependencies complete. Fails with an
// UnknownKindError for unregistered kinds and a ValidationError for
// bad parameters or unknown dependency ids.
func (s *Scheduler) Submit(req SubmitRequest) (string, error) {
	task, info, kcfg, err := s.reg.Create(req.Kind, req.Params)
	if err != nil {
		return "", err
	}
	prio, known := ParsePriority(req.Priority)
	if !known {
		s.log.Warn("invalid job priority, using normal", "priority", req.Priority, "type", req.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("scheduler is shut down")
	}

	for _, dep := range req.DependsOn {
		if _, ok := s.jobs[dep]; !ok {
			return "", Validationf("unknown dependency job id: %s", dep)
		}
	}

	job := s.newJobLocked(req.Kind, task, info, kcfg, prio)
	s.insertLocked(job, req.DependsOn)
	s.emitLocked(Event{Kind: EventSubmitted, Job: job.snapshot()})
	s.notifyLocked()
	s.drainLocked()
	return job.ID, nil
}

// BatchItem is one entry of a batch submission. DependsOn entries may
// reference other batch entries by temp id or positional index, or
// existing jobs by real id.
type BatchItem struct {
	Kind      Kind
	Params    json.RawMessage
	Priority  string
	TempID    string
	DependsOn []string
}

// SubmitBatch creates all jobs in two passes: the first pass creates
// every job with an empty dependency set so forward references inside
// the batch resolve to real ids, the second wires dependencies and
// re-evaluates runnability. The batch is atomic: any invalid entry
// fails the whole call before anything is inserted.
func (s *Scheduler) SubmitBatch(items []BatchItem) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	type creation struct {
		task Task
		info TaskInfo
		kcfg KindConfig
		prio Priority
	}
	created := make([]creation, len(items))
	for i, item := range items {
		task, info, kcfg, err := s.reg.Create(item.Kind, item.Params)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		prio, known := ParsePriority(item.Priority)
		if !known {
			s.log.Warn("invalid job priority, using normal", "priority", item.Priority, "type", item.Kind)
		}
		created[i] = creation{task: task, info: info, kcfg: kcfg, prio: prio}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("scheduler is shut down")
	}

	// First pass: allocate ids so dependency tokens can resolve.
	tempIDs := make(map[string]int, len(items))
	jobsNew := make([]*Job, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		if item.TempID != "" {
			if _, dup := tempIDs[item.TempID]; dup {
				return nil, Validationf("duplicate batch temp id: %s", item.TempID)
			}
			tempIDs[item.TempID] = i
		}
		job := s.newJobLocked(item.Kind, created[i].task, created[i].info, created[i].kcfg, created[i].prio)
		jobsNew[i] = job
		ids[i] = job.ID
	}

	// Resolve every dependency token before touching the table.
	deps := make([][]string, len(items))
	for i, item := range items {
		for _, tok := range item.DependsOn {
			if tok == "" {
				continue
			}
			var target string
			if idx, ok := tempIDs[tok]; ok {
				target = ids[idx]
			} else if n, err := strconv.Atoi(tok); err == nil && n >= 0 && n < len(items) {
				target = ids[n]
			} else if _, ok := s.jobs[tok]; ok {
				target = tok
			} else {
				return nil, Validationf("batch item %d: unknown dependency %q", i, tok)
			}
			if target == ids[i] {
				return nil, Validationf("batch item %d: depends on itself", i)
			}
			deps[i] = append(deps[i], target)
		}
	}

	// Second pass: add every job to the table before wiring any edges,
	// so a dependency on a later batch entry resolves to a live job
	// instead of looking like an already-satisfied parent.
	for _, job := range jobsNew {
		s.addLocked(job)
	}
	for i, job := range jobsNew {
		s.wireLocked(job, deps[i])
		s.emitLocked(Event{Kind: EventSubmitted, Job: job.snapshot()})
	}
	s.notifyLocked()
	s.drainLocked()
	return ids, nil
}

func (s *Scheduler) newJobLocked(kind Kind, task Task, info TaskInfo, kcfg KindConfig, prio Priority) *Job {
	maxRetries := s.opts.MaxRetries
	if kcfg.MaxRetries > 0 {
		maxRetries = kcfg.MaxRetries
	}
	return &Job{
		ID:          newJobID(),
		Kind:        kind,
		Status:      StatusPending,
		Priority:    prio,
		MaxRetries:  maxRetries,
		MediaPath:   info.MediaPath,
		Metadata:    info.Metadata,
		CreatedAt:   time.Now().UTC(),
		task:        task,
		cancellable: kcfg.Cancellable,
	}
}

// insertLocked adds the job to the table, wires dependency edges, and
// enqueues it when already runnable.
func (s *Scheduler) insertLocked(job *Job, dependsOn []string) {
	s.addLocked(job)
	s.wireLocked(job, dependsOn)
}

func (s *Scheduler) addLocked(job *Job) {
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
}

// wireLocked wires dependency edges and enqueues the job when already
// runnable. Edges toward completed parents are treated as satisfied;
// any other parent state blocks the child. Every dependency id must
// already be in the table.
func (s *Scheduler) wireLocked(job *Job, dependsOn []string) {
	for _, dep := range dependsOn {
		parent := s.jobs[dep]
		if parent == nil || parent.Status == StatusCompleted {
			continue
		}
		job.Dependencies = append(job.Dependencies, dep)
		s.graph.addEdge(job.ID, dep)
	}
	if s.graph.ready(job.ID) {
		s.queue.push(job.ID, job.Priority)
	}
}

// Get returns a snapshot of one job.
func (s *Scheduler) Get(id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return job.snapshot(), nil
}

// List returns snapshots of all jobs in submission order.
func (s *Scheduler) List() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Scheduler) listLocked() []Snapshot {
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		if job := s.jobs[id]; job != nil {
			out = append(out, job.snapshot())
		}
	}
	return out
}

// FindByMedia returns jobs whose media path matches, optionally
// narrowed by kind. Linear scan; the job table stays small at this
// scale.
func (s *Scheduler) FindByMedia(path string, kind Kind) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, id := range s.order {
		job := s.jobs[id]
		if job == nil || job.MediaPath != path {
			continue
		}
		if kind != "" && job.Kind != kind {
			continue
		}
		out = append(out, job.snapshot())
	}
	return out
}

// FindByKind returns all jobs of one kind in submission order.
func (s *Scheduler) FindByKind(kind Kind) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, id := range s.order {
		if job := s.jobs[id]; job != nil && job.Kind == kind {
			out = append(out, job.snapshot())
		}
	}
	return out
}

// Result returns the result payload of a completed job. Returns
// ErrNotFound for unknown ids and a ResultNotReadyError when the job
// has not completed.
func (s *Scheduler) Result(id string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status != StatusCompleted {
		return nil, &ResultNotReadyError{ID: id, Status: job.Status}
	}
	return job.Result, nil
}

// ActiveCount reports how many jobs are currently executing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CancelOutcome reports what a cancel request achieved.
type CancelOutcome struct {
	Cancelled bool   `json:"cancelled"`
	Status    Status `json:"status"`
	Message   string `json:"message"`
}

// Cancel cancels one job. Queued jobs are removed from the run queue
// immediately; running jobs are interrupted through their task; jobs
// already terminal report failure with their current status. The
// cancellation cascades to direct children still pending or
// retry_pending, never to children already running.
func (s *Scheduler) Cancel(id string) (CancelOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return CancelOutcome{}, ErrNotFound
	}
	out := s.cancelLocked(job)
	s.notifyLocked()
	s.drainLocked()
	return out, nil
}

func (s *Scheduler) cancelLocked(job *Job) CancelOutcome {
	now := time.Now().UTC()
	switch job.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		// A cancel racing a natural completion lands here; that is an
		// accepted outcome, not an error.
		return CancelOutcome{
			Cancelled: false,
			Status:    job.Status,
			Message:   fmt.Sprintf("already in terminal state: %s", job.Status),
		}
	case StatusPaused:
		return CancelOutcome{
			Cancelled: false,
			Status:    job.Status,
			Message:   "job is paused; resume before cancelling",
		}
	case StatusPending, StatusRetryPending:
		// Never started: nothing to kill. Kept distinct from the
		// running path below.
		s.queue.remove(job.ID)
		if t := s.retryTimers[job.ID]; t != nil {
			t.Stop()
			delete(s.retryTimers, job.ID)
		}
		children := s.graph.directChildren(job.ID)
		job.cancel(now)
		s.graph.remove(job.ID)
		metrics.RecordJobTransition(string(job.Kind), string(StatusCancelled))
		s.emitLocked(Event{Kind: EventCancelled, Job: job.snapshot()})
		s.cascadeCancelLocked(children)
		return CancelOutcome{Cancelled: true, Status: StatusCancelled, Message: "cancelled"}
	default: // processing
		if !job.cancellable {
			return CancelOutcome{
				Cancelled: false,
				Status:    job.Status,
				Message:   "job cannot be cancelled while running",
			}
		}
		if c, ok := job.task.(Canceller); ok {
			if !c.CancelExec(job.ID) {
				s.log.Debug("cancel lost the race with process exit", "job", job.ID)
			}
		}
		children := s.graph.directChildren(job.ID)
		job.cancel(now)
		s.graph.remove(job.ID)
		metrics.RecordJobTransition(string(job.Kind), string(StatusCancelled))
		s.emitLocked(Event{Kind: EventCancelled, Job: job.snapshot()})
		s.cascadeCancelLocked(children)
		return CancelOutcome{Cancelled: true, Status: StatusCancelled, Message: "cancellation requested"}
	}
}

func (s *Scheduler) cascadeCancelLocked(children []string) {
	for _, cid := range children {
		child := s.jobs[cid]
		if child == nil {
			continue
		}
		if child.Status == StatusPending || child.Status == StatusRetryPending {
			s.cancelLocked(child)
		}
	}
}

// Pause suspends a running job. Process-backed tasks stop their child
// process in place.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if err := job.pause(); err != nil {
		return err
	}
	if p, ok := job.task.(Pauser); ok {
		p.PauseExec(id)
	}
	s.emitLocked(Event{Kind: EventPaused, Job: job.snapshot()})
	s.notifyLocked()
	return nil
}

// Resume returns a paused job to processing.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if err := job.resume(); err != nil {
		return err
	}
	if p, ok := job.task.(Pauser); ok {
		p.ResumeExec(id)
	}
	s.emitLocked(Event{Kind: EventResumed, Job: job.snapshot()})
	s.notifyLocked()
	return nil
}

// drainLocked dispatches queued jobs while capacity remains. Only one
// drain pass is active at a time; a pass is bounded so unready jobs
// pushed to the back cannot spin it forever.
func (s *Scheduler) drainLocked() {
	if s.draining || s.closed {
		return
	}
	s.draining = true
	defer func() { s.draining = false }()

	attempts := s.queue.len()
	for i := 0; i < attempts && s.queue.len() > 0 && s.running < s.opts.MaxConcurrentTasks; i++ {
		id := s.queue.pop()
		job := s.jobs[id]
		if job == nil || job.Status != StatusPending {
			continue
		}
		// Re-check dependencies at dispatch time; a concurrent
		// completion may have raced the enqueue.
		if !s.graph.ready(id) {
			s.queue.push(id, job.Priority)
			continue
		}
		if err := job.start(time.Now().UTC()); err != nil {
			s.log.Warn("drain skipped job", "job", id, "err", err)
			continue
		}
		s.running++
		metrics.RecordJobTransition(string(job.Kind), string(StatusProcessing))
		s.emitLocked(Event{Kind: EventStarted, Job: job.snapshot()})
		s.wg.Add(1)
		go s.runJob(job.ID, job.task)
	}
}

func (s *Scheduler) runJob(id string, task Task) {
	defer s.wg.Done()

	rc := &RunContext{
		JobID: id,
		progress: func(pct int, detail string) {
			s.handleProgress(id, pct, detail)
		},
	}
	result, execErr := task.Execute(s.runCtx, rc)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running--
	job := s.jobs[id]
	if job == nil {
		s.drainLocked()
		return
	}

	switch {
	case job.Status != StatusProcessing && job.Status != StatusPaused:
		// Cancelled while running. The process result is discarded;
		// either side of that race is acceptable.
	case execErr != nil:
		s.handleFailureLocked(job, execErr, now)
	default:
		raw, err := s.reg.HandleResult(job.Kind, result)
		if err != nil {
			s.handleFailureLocked(job, err, now)
			break
		}
		if job.Status == StatusPaused {
			_ = job.resume()
		}
		_ = job.complete(raw, now)
		s.dirty = true
		metrics.RecordJobTransition(string(job.Kind), string(StatusCompleted))
		s.emitLocked(Event{Kind: EventCompleted, Job: job.snapshot()})
		s.unblockDependentsLocked(job.ID)
	}

	s.notifyLocked()
	s.drainLocked()
}

func (s *Scheduler) handleFailureLocked(job *Job, execErr error, now time.Time) {
	if job.Status == StatusPaused {
		_ = job.resume()
	}
	_ = job.fail(execErr.Error(), now)
	job.RetryCount++

	if job.RetryCount < job.MaxRetries && retryable(execErr) && !s.closed {
		_ = job.markRetryPending()
		delay := backoffFor(job.RetryCount, s.opts.Backoff)
		metrics.RecordRetry(string(job.Kind))
		s.emitLocked(Event{
			Kind:   EventRetrying,
			Job:    job.snapshot(),
			Detail: fmt.Sprintf("retry %d/%d in %s", job.RetryCount, job.MaxRetries, delay),
		})
		id := job.ID
		s.retryTimers[id] = time.AfterFunc(delay, func() {
			s.requeueAfterBackoff(id)
		})
		return
	}

	metrics.RecordJobTransition(string(job.Kind), string(StatusFailed))
	s.emitLocked(Event{Kind: EventFailed, Job: job.snapshot(), Detail: execErr.Error()})
}

func (s *Scheduler) requeueAfterBackoff(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retryTimers, id)
	if s.closed {
		return
	}
	job := s.jobs[id]
	if job == nil || job.Status != StatusRetryPending {
		return
	}
	_ = job.requeue()
	if s.graph.ready(id) {
		s.queue.push(id, job.Priority)
	}
	s.notifyLocked()
	s.drainLocked()
}

// unblockDependentsLocked enqueues every direct child of a completed
// parent whose dependency set just became fully satisfied.
func (s *Scheduler) unblockDependentsLocked(parent string) {
	for _, cid := range s.graph.satisfy(parent) {
		child := s.jobs[cid]
		if child != nil && child.Status == StatusPending {
			s.queue.push(cid, child.Priority)
		}
	}
}

func (s *Scheduler) handleProgress(id string, pct int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	if job == nil || !job.updateProgress(pct, detail) {
		return
	}
	s.emitLocked(Event{Kind: EventProgress, Job: job.snapshot(), Detail: detail})
	s.notifyLocked()
}

func (s *Scheduler) emitLocked(ev Event) {
	for _, o := range s.observers {
		o.OnJobEvent(ev)
	}
}

func (s *Scheduler) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	update := TasksUpdate{Tasks: s.listLocked(), ActiveCount: s.running}
	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// Start runs the periodic persistence and retention loop until the
// context is cancelled or the scheduler shuts down. Callers run it in
// its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PersistInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if err := s.persist(); err != nil {
			s.log.Warn("periodic persistence failed", "err", err)
		}

		if s.opts.CleanupInterval > 0 && s.opts.CompletedTTL > 0 {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= s.opts.CleanupInterval {
				s.CleanupHistory(now)
				lastCleanup = now
			}
		}
	}
}

// persist flushes completed jobs to the store when anything changed
// since the last flush.
func (s *Scheduler) persist() error {
	if s.st == nil {
		return nil
	}
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	records := make([]store.Record, 0)
	for _, id := range s.order {
		job := s.jobs[id]
		if job == nil || job.Status != StatusCompleted {
			continue
		}
		records = append(records, store.Record{
			ID:        job.ID,
			Type:      string(job.Kind),
			Status:    string(job.Status),
			MediaPath: job.MediaPath,
			CreatedAt: job.CreatedAt,
			StartedAt: job.StartedAt,
			EndedAt:   job.EndedAt,
			Result:    job.Result,
		})
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.st.Save(records); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// Persist forces a flush regardless of the dirty flag. Exposed for
// shutdown and tests.
func (s *Scheduler) Persist() error {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	return s.persist()
}

// Shutdown cancels all non-terminal jobs, waits for running
// executions to settle (bounded by ctx), flushes persistence, and
// stops the periodic loop. The scheduler accepts no work afterwards.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	for id, t := range s.retryTimers {
		t.Stop()
		delete(s.retryTimers, id)
	}
	for _, id := range s.order {
		job := s.jobs[id]
		if job == nil || job.Status.Terminal() {
			continue
		}
		if job.Status == StatusPaused {
			if p, ok := job.task.(Pauser); ok {
				p.ResumeExec(id)
			}
			_ = job.resume()
		}
		s.cancelLocked(job)
	}
	s.notifyLocked()
	s.mu.Unlock()

	// Kill anything still attached to the run context.
	s.runCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("shutdown timed out waiting for running jobs")
	}

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	return s.Persist()
}

// retryable reports whether an execution error qualifies for the
// backoff policy. Validation problems and shutdown-induced context
// cancellation do not.
func retryable(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func backoffFor(attempt int, schedule []time.Duration) time.Duration {
	if len(schedule) == 0 {
		return time.Second
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

func newJobID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}
