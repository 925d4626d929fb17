package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/telemetry"
)

// workflowContext adapts a Temporal workflow.Context to engine.WorkflowContext.
// It is constructed once per workflow execution by RegisterWorkflow's wrapper
// and discarded when the execution completes.
type workflowContext struct {
	e    *Engine
	tctx workflow.Context

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	signals map[string]*signalChannel
}

func newWorkflowContext(e *Engine, tctx workflow.Context) *workflowContext {
	return &workflowContext{
		e:       e,
		tctx:    tctx,
		logger:  e.logger,
		metrics: e.metrics,
		tracer:  e.tracer,
		signals: make(map[string]*signalChannel),
	}
}

func (w *workflowContext) Context() context.Context {
	// workflow.Context satisfies context.Context's method set except for
	// carrying deadline/values in the standard way; Temporal's SDK documents
	// passing workflow.Context directly to activity execution APIs, so we
	// expose it as a context.Context for callers that only need
	// ExecuteActivity/ExecuteActivityAsync, which re-derive workflow.Context
	// from it below.
	return wfGoContext{w.tctx}
}

func (w *workflowContext) WorkflowID() string {
	return workflow.GetInfo(w.tctx).WorkflowExecution.ID
}

func (w *workflowContext) RunID() string {
	return workflow.GetInfo(w.tctx).WorkflowExecution.RunID
}

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(nil, req) //nolint:staticcheck // ctx unused; Temporal derives from tctx
	if err != nil {
		return err
	}
	return fut.Get(nil, result)
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	opts := workflow.ActivityOptions{
		TaskQueue:              req.Queue,
		StartToCloseTimeout:    req.StartToCloseTimeout,
		ScheduleToCloseTimeout: req.StartToCloseTimeout,
	}
	if req.StartToCloseTimeout == 0 {
		opts.StartToCloseTimeout = 10 * time.Second
	}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		opts.RetryPolicy = rp
	}
	actCtx := workflow.WithActivityOptions(w.tctx, opts)
	f := workflow.ExecuteActivity(actCtx, req.Name, req.Input)
	return &future{tctx: w.tctx, f: f}, nil
}

func (w *workflowContext) Sleep(_ context.Context, d time.Duration) error {
	return workflow.Sleep(w.tctx, d)
}

func (w *workflowContext) WaitCondition(_ context.Context, predicate func() bool) error {
	return workflow.Await(w.tctx, predicate)
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	if ch, ok := w.signals[name]; ok {
		return ch
	}
	ch := &signalChannel{tctx: w.tctx, ch: workflow.GetSignalChannel(w.tctx, name)}
	w.signals[name] = ch
	return ch
}

func (w *workflowContext) Logger() telemetry.Logger   { return w.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.tracer }

func (w *workflowContext) Now() time.Time { return workflow.Now(w.tctx) }

func (w *workflowContext) IsCancelled() bool {
	return w.tctx.Err() != nil
}

type future struct {
	tctx workflow.Context
	f    workflow.Future
}

func (fu *future) Get(_ context.Context, result any) error {
	return fu.f.Get(fu.tctx, result)
}

func (fu *future) IsReady() bool { return fu.f.IsReady() }

type signalChannel struct {
	tctx workflow.Context
	ch   workflow.ReceiveChannel
}

func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.tctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}

// wfGoContext adapts workflow.Context to context.Context for call sites that
// only need it as an opaque handle to pass back into ExecuteActivity.
type wfGoContext struct {
	workflow.Context
}

func (wfGoContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (wfGoContext) Done() <-chan struct{}        { return nil }
func (wfGoContext) Err() error                   { return nil }
