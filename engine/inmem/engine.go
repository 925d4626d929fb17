// Package inmem provides a non-deterministic, single-process implementation
// of engine.Engine for local development and unit tests. It is grounded on
// the teacher's runtime/agent/engine/inmem adapter: workflows run as plain
// goroutines, signals are delivered over buffered channels, and status is
// tracked in a map rather than replayed from history.
//
// This adapter does not provide replay safety or crash durability; workflow
// bodies that only use the engine.WorkflowContext port run identically here
// and on the Temporal adapter, which is what makes it suitable for testing
// Build/Task workflow logic without a Temporal test server.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/agentware/agentctl/engine"
)

type Engine struct {
	mu         sync.RWMutex
	workflows  map[string]engine.WorkflowDefinition
	activities map[string]engine.ActivityDefinition
	runs       map[string]*run

	// Clock lets tests collapse Sleep calls to near-zero; defaults to the
	// real wall clock so production-style demos still behave sensibly.
	Clock func(d time.Duration) <-chan time.Time
}

type run struct {
	mu        sync.Mutex
	id        string
	status    engine.Status
	cancelled bool
	done      chan struct{}
	result    any
	err       error

	sigMu sync.Mutex
	sigs  map[string]chan any

	wfCtx *workflowContext
}

// New constructs an in-memory Engine.
func New() *Engine {
	return &Engine{
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]engine.ActivityDefinition),
		runs:       make(map[string]*run),
		Clock:      time.After,
	}
}

func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem engine: invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("inmem engine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem engine: invalid activity definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem engine: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = def
	return nil
}

func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.ID == "" {
		return nil, errors.New("inmem engine: workflow id is required")
	}
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem engine: workflow %q not registered", req.Workflow)
	}

	e.mu.Lock()
	existing, hasExisting := e.runs[req.ID]
	if hasExisting {
		switch req.DuplicatePolicy {
		case engine.RejectDuplicate:
			e.mu.Unlock()
			return nil, fmt.Errorf("inmem engine: %w", engine.ErrDuplicateRejected)
		case engine.TerminateIfRunning:
			if existing.statusSnapshot() == engine.StatusRunning {
				existing.terminate()
			}
		case engine.AllowDuplicateFailedOnly:
			if existing.statusSnapshot() != engine.StatusFailed {
				e.mu.Unlock()
				return nil, fmt.Errorf("inmem engine: %w", engine.ErrDuplicateRejected)
			}
		}
	}
	r := &run{id: req.ID, status: engine.StatusRunning, done: make(chan struct{}), sigs: make(map[string]chan any)}
	e.runs[req.ID] = r
	e.mu.Unlock()

	r.wfCtx = newWorkflowContext(e, r, ctx)

	go func() {
		defer close(r.done)
		res, err := def.Handler(r.wfCtx, req.Input)
		r.mu.Lock()
		r.result, r.err = res, err
		switch {
		case r.status == engine.StatusTerminated:
			// terminate() already set the terminal status; preserve it.
		case errors.Is(err, context.Canceled):
			r.status = engine.StatusCanceled
		case err != nil:
			r.status = engine.StatusFailed
		default:
			r.status = engine.StatusCompleted
		}
		r.mu.Unlock()
	}()

	return &handle{e: e, id: req.ID}, nil
}

func (e *Engine) SendSignal(ctx context.Context, workflowID, signalName string, payload any) error {
	r, ok := e.lookup(workflowID)
	if !ok {
		return fmt.Errorf("inmem engine: %w", engine.ErrNotFound)
	}
	ch := r.signalChan(signalName)
	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) CancelWorkflow(_ context.Context, workflowID string) error {
	r, ok := e.lookup(workflowID)
	if !ok {
		return fmt.Errorf("inmem engine: %w", engine.ErrNotFound)
	}
	r.wfCtx.requestCancel()
	return nil
}

func (e *Engine) TerminateWorkflow(_ context.Context, workflowID string) error {
	r, ok := e.lookup(workflowID)
	if !ok {
		return fmt.Errorf("inmem engine: %w", engine.ErrNotFound)
	}
	r.terminate()
	return nil
}

func (e *Engine) GetWorkflowStatus(_ context.Context, workflowID string) (engine.WorkflowStatus, error) {
	r, ok := e.lookup(workflowID)
	if !ok {
		return engine.WorkflowStatus{Status: engine.StatusNotFound, IsTerminal: true}, nil
	}
	status := r.statusSnapshot()
	return engine.WorkflowStatus{Status: status, IsTerminal: status.IsTerminal()}, nil
}

func (e *Engine) lookup(workflowID string) (*run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[workflowID]
	return r, ok
}

func (r *run) statusSnapshot() engine.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *run) terminate() {
	r.mu.Lock()
	r.status = engine.StatusTerminated
	r.mu.Unlock()
	r.wfCtx.requestTerminate()
}

func (r *run) signalChan(name string) chan any {
	r.sigMu.Lock()
	defer r.sigMu.Unlock()
	ch, ok := r.sigs[name]
	if !ok {
		ch = make(chan any, 16)
		r.sigs[name] = ch
	}
	return ch
}

type handle struct {
	e  *Engine
	id string
}

func (h *handle) WorkflowID() string { return h.id }

func (h *handle) Wait(ctx context.Context, result any) error {
	r, ok := h.e.lookup(h.id)
	if !ok {
		return fmt.Errorf("inmem engine: %w", engine.ErrNotFound)
	}
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		assign(result, r.result)
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	return h.e.SendSignal(ctx, h.id, name, payload)
}

func (h *handle) Cancel(ctx context.Context) error {
	return h.e.CancelWorkflow(ctx, h.id)
}

func (h *handle) Terminate(ctx context.Context) error {
	return h.e.TerminateWorkflow(ctx, h.id)
}

func assign(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
