package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultSyncTimeout bounds synchronous requests that do not set a timeout.
const DefaultSyncTimeout = 30 * time.Second

type taskEntry struct {
	task    Task
	cancel  context.CancelFunc
	done    chan struct{} // worker exited and hooks ran
	settled chan struct{} // terminal snapshot persisted
	once    sync.Once
	started time.Time
}

func (e *taskEntry) settle() {
	e.once.Do(func() { close(e.settled) })
}

// Orchestrator runs evidence tasks. Each task has its own worker goroutine;
// snapshots are read under a read lock and always returned as copies.
type Orchestrator struct {
	source  Source
	store   Store
	limiter *rate.Limiter
	timeout time.Duration

	mu    sync.RWMutex
	tasks map[string]*taskEntry
	hooks []func(Task)

	wg     sync.WaitGroup
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists terminal snapshots to s.
func WithStore(s Store) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.store = s
		}
	}
}

// WithRateLimit throttles source calls across all tasks.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Orchestrator) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithDefaultTimeout sets the timeout used by synchronous requests without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func NewOrchestrator(source Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:  source,
		store:   NewMemoryStore(),
		limiter: rate.NewLimiter(rate.Inf, 1),
		timeout: DefaultSyncTimeout,
		tasks:   make(map[string]*taskEntry),
		clock:   time.Now,
		logger:  slog.Default().With("component", "evidence"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the snapshot store.
func (o *Orchestrator) Store() Store {
	return o.store
}

// OnComplete registers fn to receive every task that reaches a terminal state.
// Hooks run outside the orchestrator's locks.
func (o *Orchestrator) OnComplete(fn func(Task)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, fn)
}

func validateRequest(req Request) (Request, error) {
	var problems []string
	if len(req.EvidenceTypes) == 0 {
		problems = append(problems, "evidenceTypes is empty")
	}
	for _, t := range req.EvidenceTypes {
		if !isKnown(t) {
			problems = append(problems, fmt.Sprintf("unknown evidence type %q", t))
		}
	}
	seen := make(map[string]bool, len(req.TargetIDs))
	targets := make([]string, 0, len(req.TargetIDs))
	for _, id := range req.TargetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			problems = append(problems, "empty target id")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, id)
	}
	if len(req.TargetIDs) == 0 {
		problems = append(problems, "targetIds is empty")
	}
	if req.Timeout < 0 {
		problems = append(problems, "timeout is negative")
	}
	if len(problems) > 0 {
		return req, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	out := req
	out.EvidenceTypes = append([]Type(nil), req.EvidenceTypes...)
	out.TargetIDs = targets
	return out, nil
}

// CreateTask starts a task. Async requests return the PENDING snapshot at once.
// Synchronous requests wait for a terminal state; if the timeout fires first
// the task is cancelled and ErrTaskTimeout is returned with the last snapshot.
func (o *Orchestrator) CreateTask(ctx context.Context, req Request) (Task, error) {
	req, err := validateRequest(req)
	if err != nil {
		return Task{}, err
	}

	now := o.clock()
	task := Task{
		TaskID:   uuid.NewString(),
		TripID:   req.TripID,
		Status:   StatusPending,
		Progress: Progress{Total: len(req.TargetIDs)},
		Result: &Result{
			TotalTargets:   len(req.TargetIDs),
			RequestedTypes: req.EvidenceTypes,
			Items:          []Item{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &taskEntry{task: task, cancel: cancel, done: make(chan struct{}), settled: make(chan struct{})}

	o.mu.Lock()
	o.tasks[task.TaskID] = e
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "evidence task created",
		"task_id", task.TaskID,
		"trip_id", task.TripID,
		"targets", len(req.TargetIDs),
		"async", req.Async,
	)

	o.wg.Add(1)
	go o.run(wctx, e, req)

	if req.Async {
		return task.clone(), nil
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = o.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.settled:
		return o.Poll(task.TaskID)
	case <-timer.C:
		snap, _ := o.Cancel(task.TaskID)
		if snap.Status != StatusCancelled {
			// Finished just before the deadline.
			return snap, nil
		}
		return snap, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
	case <-ctx.Done():
		snap, _ := o.Cancel(task.TaskID)
		return snap, ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, e *taskEntry, req Request) {
	defer o.wg.Done()
	defer close(e.done)
	defer e.cancel()
	defer e.settle()

	o.mu.Lock()
	if e.task.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	e.started = o.clock()
	e.task.Status = StatusRunning
	e.task.UpdatedAt = e.started
	o.mu.Unlock()

	for i, target := range req.TargetIDs {
		if ctx.Err() != nil {
			return
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return
		}

		o.mu.Lock()
		if e.task.Status.Terminal() {
			o.mu.Unlock()
			return
		}
		e.task.Progress.Current = target
		o.mu.Unlock()

		items, err := o.source.Fetch(ctx, req.EvidenceTypes, []string{target})
		if err != nil && ctx.Err() != nil {
			return
		}
		item := gradeItem(target, req.EvidenceTypes, items, err)

		o.mu.Lock()
		// A step finishing after cancellation is discarded.
		if e.task.Status.Terminal() {
			o.mu.Unlock()
			return
		}
		o.applyStep(e, i+1, item)
		o.mu.Unlock()
	}

	o.mu.Lock()
	if e.task.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	r := e.task.Result
	if r.FailedCount == r.TotalTargets {
		e.task.Status = StatusFailed
		e.task.Error = "evidence could not be fetched for any target"
	} else {
		e.task.Status = StatusCompleted
	}
	e.task.Progress.Current = ""
	e.task.Progress.EstimatedRemaining = 0
	e.task.UpdatedAt = o.clock()
	snap := e.task.clone()
	hooks := append([]func(Task){}, o.hooks...)
	o.mu.Unlock()

	o.finish(ctx, e, snap, hooks)
}

// applyStep records one finished target. Callers hold o.mu.
func (o *Orchestrator) applyStep(e *taskEntry, processed int, item Item) {
	r := e.task.Result
	r.Items = append(r.Items, item)
	switch item.Status {
	case ItemSuccess:
		r.SuccessCount++
	case ItemPartial:
		r.PartialCount++
	default:
		r.FailedCount++
	}
	if processed > r.ProcessedTargets {
		r.ProcessedTargets = processed
	}

	now := o.clock()
	p := &e.task.Progress
	if processed > p.Processed {
		p.Processed = processed
	}
	if remaining := p.Total - p.Processed; remaining > 0 && p.Processed > 0 {
		mean := now.Sub(e.started) / time.Duration(p.Processed)
		p.EstimatedRemaining = mean * time.Duration(remaining)
	} else {
		p.EstimatedRemaining = 0
	}
	e.task.UpdatedAt = now
}

func gradeItem(target string, types []Type, items []Item, err error) Item {
	if err != nil {
		item := Item{TargetID: target, Status: ItemFailed}
		for _, t := range types {
			item.Errors = append(item.Errors, TypeError{Type: t, Message: err.Error()})
		}
		return item
	}
	var item Item
	found := false
	for _, it := range items {
		if it.TargetID == target {
			item, found = it, true
			break
		}
	}
	if !found {
		item = Item{TargetID: target}
		for _, t := range types {
			item.Errors = append(item.Errors, TypeError{Type: t, Message: "no evidence returned"})
		}
	}
	switch {
	case len(item.Records) == 0:
		item.Status = ItemFailed
	case len(item.Errors) > 0:
		item.Status = ItemPartial
	default:
		item.Status = ItemSuccess
	}
	return item
}

// finish persists a terminal snapshot, releases synchronous callers, then runs hooks.
func (o *Orchestrator) finish(ctx context.Context, e *taskEntry, snap Task, hooks []func(Task)) {
	if err := o.store.Save(ctx, snap); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist evidence task", "task_id", snap.TaskID, "error", err)
	}
	o.logger.InfoContext(ctx, "evidence task finished",
		"task_id", snap.TaskID,
		"status", snap.Status,
		"processed", snap.Progress.Processed,
		"total", snap.Progress.Total,
	)
	e.settle()
	for _, fn := range hooks {
		fn(snap.clone())
	}
}

// Poll returns a snapshot of a live or finished task.
func (o *Orchestrator) Poll(taskID string) (Task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return e.task.clone(), nil
}

// Snapshot returns the persisted terminal snapshot, which survives Dispose.
func (o *Orchestrator) Snapshot(ctx context.Context, taskID string) (Task, error) {
	if t, err := o.Poll(taskID); err == nil && t.Status.Terminal() {
		return t, nil
	}
	t, err := o.store.Get(ctx, taskID)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t, nil
}

// Cancel stops a PENDING or RUNNING task. Cancelling a terminal task is a no-op.
func (o *Orchestrator) Cancel(taskID string) (Task, error) {
	o.mu.Lock()
	e, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if e.task.Status.Terminal() {
		snap := e.task.clone()
		o.mu.Unlock()
		return snap, nil
	}
	e.task.Status = StatusCancelled
	e.task.Error = ErrTaskCancelled.Error()
	e.task.Progress.Current = ""
	e.task.Progress.EstimatedRemaining = 0
	e.task.UpdatedAt = o.clock()
	e.cancel()
	snap := e.task.clone()
	hooks := append([]func(Task){}, o.hooks...)
	o.mu.Unlock()

	o.finish(context.Background(), e, snap, hooks)
	return snap, nil
}

// Dispose forgets a task, cancelling it first if it is still running.
func (o *Orchestrator) Dispose(taskID string) error {
	if _, err := o.Cancel(taskID); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tasks, taskID)
	return nil
}

// Wait blocks until the task's worker has exited or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) (Task, error) {
	o.mu.RLock()
	e, ok := o.tasks[taskID]
	o.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	select {
	case <-e.done:
		return o.Poll(taskID)
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Close cancels every running task and waits for the workers to exit.
func (o *Orchestrator) Close() error {
	o.mu.RLock()
	ids := make([]string, 0, len(o.tasks))
	for id, e := range o.tasks {
		if !e.task.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	o.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if _, err := o.Cancel(id); err != nil && !errors.Is(err, ErrTaskNotFound) {
			errs = append(errs, err)
		}
	}
	o.wg.Wait()
	return errors.Join(errs...)
}
