// Package temporal adapts the engine.Engine port to Temporal, the production
// durable execution backend for this control plane. It is grounded on the
// teacher's runtime/agent/engine/temporal adapter: one worker per task
// queue, lazy client construction, OTEL instrumentation wired by default,
// and a sync.Map correlating activity invocations back to their owning
// workflow's context for logging.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/telemetry"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to lazily construct one.
	Client client.Client
	// ClientOptions constructs the client when Client is nil.
	ClientOptions *client.Options
	// WorkerOptions configures worker defaults; TaskQueue is required and is
	// the default queue for definitions that omit one.
	WorkerOptions WorkerOptions
	// DisableWorkerAutoStart disables starting workers on first StartWorkflow
	// call; callers must then call Worker().Start() explicitly.
	DisableWorkerAutoStart bool
	// DisableTracing/DisableMetrics opt out of the default OTEL instrumentation.
	DisableTracing bool
	DisableMetrics bool

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// WorkerOptions configures the shared worker settings applied to every task
// queue the engine manages.
type WorkerOptions struct {
	TaskQueue string
	Options   worker.Options
}

// Engine implements engine.Engine on top of the Temporal Go SDK.
type Engine struct {
	client      client.Client
	closeClient bool

	defaultQueue      string
	workerOpts        worker.Options
	autoStartDisabled bool

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu             sync.Mutex
	workers        map[string]*workerBundle
	workersStarted bool
	workflows      map[string]engine.WorkflowDefinition

	workflowContexts sync.Map // runID -> engine.WorkflowContext
}

// New constructs a Temporal engine adapter.
func New(opts Options) (*Engine, error) {
	if opts.WorkerOptions.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: worker options must include a default task queue")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	inst, err := configureInstrumentation(opts.DisableTracing, opts.DisableMetrics)
	if err != nil {
		return nil, err
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		applyClientInstrumentation(&clientOpts, inst)
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	workerOpts := opts.WorkerOptions.Options
	applyWorkerInstrumentation(&workerOpts, inst)

	return &Engine{
		client:            cli,
		closeClient:       closeClient,
		defaultQueue:      opts.WorkerOptions.TaskQueue,
		workerOpts:        workerOpts,
		autoStartDisabled: opts.DisableWorkerAutoStart,
		logger:            logger,
		metrics:           metrics,
		tracer:            tracer,
		workers:           make(map[string]*workerBundle),
		workflows:         make(map[string]engine.WorkflowDefinition),
	}, nil
}

// RegisterWorkflow registers def with the worker for its task queue.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("temporal engine: workflow name cannot be empty")
	}
	bundle, err := e.workerForQueue(def.TaskQueue)
	if err != nil {
		return err
	}

	bundle.registerWorkflow(def.Name, func(tctx workflow.Context, input any) (any, error) {
		wfCtx := newWorkflowContext(e, tctx)
		e.workflowContexts.Store(wfCtx.RunID(), wfCtx)
		defer e.workflowContexts.Delete(wfCtx.RunID())
		return def.Handler(wfCtx, input)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[def.Name]; exists {
		return fmt.Errorf("temporal engine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

// RegisterActivity registers def with the worker for its task queue.
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("temporal engine: activity name cannot be empty")
	}
	bundle, err := e.workerForQueue(def.Options.Queue)
	if err != nil {
		return err
	}
	bundle.registerActivity(def.Name, func(actx context.Context, input any) (any, error) {
		if runID := activity.GetInfo(actx).WorkflowExecution.RunID; runID != "" {
			if wfCtx, ok := e.workflowContexts.Load(runID); ok {
				actx = engine.WithWorkflowContext(actx, wfCtx.(engine.WorkflowContext))
			}
		}
		return def.Handler(actx, input)
	})
	return nil
}

// StartWorkflow launches req on Temporal, honoring req.DuplicatePolicy by
// translating it to Temporal's WorkflowIDReusePolicy and, for
// TerminateIfRunning, terminating the existing run first.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, fmt.Errorf("temporal engine: workflow name is required")
	}
	def, err := e.workflowDefinition(req.Workflow)
	if err != nil {
		return nil, err
	}
	if !e.autoStartDisabled {
		e.ensureWorkersStarted()
	}

	if req.DuplicatePolicy == engine.TerminateIfRunning {
		status, statusErr := e.GetWorkflowStatus(ctx, req.ID)
		if statusErr == nil && status.Status == engine.StatusRunning {
			if err := e.TerminateWorkflow(ctx, req.ID); err != nil {
				return nil, fmt.Errorf("temporal engine: terminate existing run before restart: %w", err)
			}
		}
	}
	if req.DuplicatePolicy == engine.RejectDuplicate {
		status, statusErr := e.GetWorkflowStatus(ctx, req.ID)
		if statusErr == nil && status.Status != engine.StatusNotFound {
			return nil, fmt.Errorf("temporal engine: workflow %q already exists: %w", req.ID, engine.ErrDuplicateRejected)
		}
	}

	queue := req.TaskQueue
	if queue == "" {
		queue = def.TaskQueue
	}
	if queue == "" {
		queue = e.defaultQueue
	}

	opts := client.StartWorkflowOptions{
		ID:                       req.ID,
		TaskQueue:                queue,
		WorkflowExecutionTimeout: req.ExecutionTimeout,
		WorkflowTaskTimeout:      req.TaskTimeout,
		WorkflowIDReusePolicy:    reusePolicy(req.DuplicatePolicy),
	}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		opts.RetryPolicy = rp
	}

	run, err := e.client.ExecuteWorkflow(ctx, opts, def.Name, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowHandle{run: run, client: e.client}, nil
}

// SendSignal delivers payload to a running workflow identified by
// workflowID, at-least-once.
func (e *Engine) SendSignal(ctx context.Context, workflowID, signalName string, payload any) error {
	if err := e.client.SignalWorkflow(ctx, workflowID, "", signalName, payload); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("temporal engine: %w", engine.ErrNotFound)
		}
		return err
	}
	return nil
}

// CancelWorkflow requests cooperative cancellation of workflowID.
func (e *Engine) CancelWorkflow(ctx context.Context, workflowID string) error {
	return e.client.CancelWorkflow(ctx, workflowID, "")
}

// TerminateWorkflow forcibly stops workflowID with no teardown.
func (e *Engine) TerminateWorkflow(ctx context.Context, workflowID string) error {
	return e.client.TerminateWorkflow(ctx, workflowID, "", "terminated by control plane")
}

// GetWorkflowStatus maps Temporal's execution status to the domain Status
// enum. A missing workflow yields StatusNotFound rather than an error.
func (e *Engine) GetWorkflowStatus(ctx context.Context, workflowID string) (engine.WorkflowStatus, error) {
	resp, err := e.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return engine.WorkflowStatus{Status: engine.StatusNotFound, IsTerminal: true}, nil
		}
		return engine.WorkflowStatus{}, err
	}
	info := resp.GetWorkflowExecutionInfo()
	status := mapExecutionStatus(info.GetStatus())
	return engine.WorkflowStatus{Status: status, IsTerminal: status.IsTerminal()}, nil
}

// Worker returns a controller for starting/stopping all managed workers.
func (e *Engine) Worker() *WorkerController { return &WorkerController{engine: e} }

// StartWorkers starts every worker registered so far, and any worker created
// by a later RegisterWorkflow/RegisterActivity call. Satisfies the
// worker.Lifecycle interface the Worker Host (C7) uses to start engines that
// require an explicit poll loop.
func (e *Engine) StartWorkers() error { return e.Worker().Start() }

// StopWorkers gracefully stops every managed worker. Satisfies
// worker.Lifecycle.
func (e *Engine) StopWorkers() { e.Worker().Stop() }

// Close shuts down the Temporal client if the engine created it.
func (e *Engine) Close() error {
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
	return nil
}

func (e *Engine) workerForQueue(queue string) (*workerBundle, error) {
	if queue == "" {
		queue = e.defaultQueue
	}
	if queue == "" {
		return nil, fmt.Errorf("temporal engine: no task queue configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if bundle, ok := e.workers[queue]; ok {
		return bundle, nil
	}
	w := worker.New(e.client, queue, e.workerOpts)
	bundle := &workerBundle{queue: queue, worker: w, logger: e.logger}
	e.workers[queue] = bundle
	if e.workersStarted {
		bundle.start()
	}
	return bundle, nil
}

func (e *Engine) workflowDefinition(name string) (engine.WorkflowDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.workflows[name]
	if !ok {
		return engine.WorkflowDefinition{}, fmt.Errorf("temporal engine: workflow %q is not registered", name)
	}
	return def, nil
}

func (e *Engine) ensureWorkersStarted() {
	e.mu.Lock()
	if e.workersStarted {
		e.mu.Unlock()
		return
	}
	e.workersStarted = true
	bundles := make([]*workerBundle, 0, len(e.workers))
	for _, b := range e.workers {
		bundles = append(bundles, b)
	}
	e.mu.Unlock()
	for _, b := range bundles {
		b.start()
	}
}

// WorkerController manages worker lifecycle for all task queues.
type WorkerController struct {
	engine *Engine
}

// Start launches all registered workers.
func (c *WorkerController) Start() error {
	c.engine.ensureWorkersStarted()
	return nil
}

// Stop gracefully stops all workers.
func (c *WorkerController) Stop() {
	c.engine.mu.Lock()
	bundles := make([]*workerBundle, 0, len(c.engine.workers))
	for _, b := range c.engine.workers {
		bundles = append(bundles, b)
	}
	c.engine.mu.Unlock()
	for _, b := range bundles {
		b.stop()
	}
}

type workerBundle struct {
	queue     string
	worker    worker.Worker
	logger    telemetry.Logger
	startOnce sync.Once
}

func (b *workerBundle) start() {
	b.startOnce.Do(func() {
		go func() {
			if err := b.worker.Run(worker.InterruptCh()); err != nil {
				b.logger.Error(context.Background(), "temporal worker exited", "queue", b.queue, "err", err)
			}
		}()
	})
}

func (b *workerBundle) stop() { b.worker.Stop() }

func (b *workerBundle) registerWorkflow(name string, fn any) {
	b.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
}

func (b *workerBundle) registerActivity(name string, fn any) {
	b.worker.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

type instrumentation struct {
	tracer  interceptor.Interceptor
	metrics client.MetricsHandler
}

func configureInstrumentation(disableTracing, disableMetrics bool) (*instrumentation, error) {
	inst := &instrumentation{}
	if !disableTracing {
		tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
		if err != nil {
			return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
		}
		inst.tracer = tracer
	}
	if !disableMetrics {
		inst.metrics = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
	}
	if inst.tracer == nil && inst.metrics == nil {
		return nil, nil
	}
	return inst, nil
}

func applyClientInstrumentation(opts *client.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
	if inst.metrics != nil && opts.MetricsHandler == nil {
		opts.MetricsHandler = inst.metrics
	}
}

func applyWorkerInstrumentation(opts *worker.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
}

func convertRetryPolicy(rp engine.RetryPolicy) *temporal.RetryPolicy {
	if rp.InitialInterval == 0 && rp.BackoffCoefficient == 0 && rp.MaximumInterval == 0 &&
		rp.MaximumAttempts == 0 && len(rp.NonRetryableErrors) == 0 {
		return nil
	}
	out := &temporal.RetryPolicy{
		InitialInterval:        rp.InitialInterval,
		BackoffCoefficient:     rp.BackoffCoefficient,
		MaximumInterval:        rp.MaximumInterval,
		MaximumAttempts:        rp.MaximumAttempts,
		NonRetryableErrorTypes: rp.NonRetryableErrors,
	}
	if out.BackoffCoefficient == 0 {
		out.BackoffCoefficient = 2.0
	}
	if out.InitialInterval == 0 {
		out.InitialInterval = time.Second
	}
	return out
}

func reusePolicy(p engine.DuplicateWorkflowPolicy) client.WorkflowIDReusePolicy {
	switch p {
	case engine.AllowDuplicate:
		return client.WorkflowIDReusePolicyAllowDuplicate
	case engine.AllowDuplicateFailedOnly:
		return client.WorkflowIDReusePolicyAllowDuplicateFailedOnly
	case engine.RejectDuplicate:
		return client.WorkflowIDReusePolicyRejectDuplicate
	case engine.TerminateIfRunning:
		return client.WorkflowIDReusePolicyAllowDuplicate
	default:
		return client.WorkflowIDReusePolicyAllowDuplicateFailedOnly
	}
}

func mapExecutionStatus(s enums.WorkflowExecutionStatus) engine.Status {
	switch s {
	case enums.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return engine.StatusRunning
	case enums.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return engine.StatusCompleted
	case enums.WORKFLOW_EXECUTION_STATUS_FAILED:
		return engine.StatusFailed
	case enums.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return engine.StatusCanceled
	case enums.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return engine.StatusTerminated
	case enums.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return engine.StatusTimedOut
	case enums.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return engine.StatusContinuedAsNew
	default:
		return engine.StatusNotFound
	}
}

type workflowHandle struct {
	run    client.WorkflowRun
	client client.Client
}

func (h *workflowHandle) WorkflowID() string { return h.run.GetID() }

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

func (h *workflowHandle) Terminate(ctx context.Context) error {
	return h.client.TerminateWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), "terminated by control plane")
}
