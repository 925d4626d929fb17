package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/telemetry"
)

// workflowContext adapts a single in-memory run to engine.WorkflowContext.
// Unlike the Temporal adapter it carries a real cancellable context.Context,
// since there is no replay history to protect and cancellation here is just
// goroutine teardown.
type workflowContext struct {
	e   *Engine
	r   *run
	ctx context.Context

	cancel    context.CancelFunc
	terminate context.CancelFunc

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu      sync.Mutex
	signals map[string]*signalChannel
}

func newWorkflowContext(e *Engine, r *run, parent context.Context) *workflowContext {
	cancelCtx, cancel := context.WithCancel(parent)
	termCtx, terminate := context.WithCancel(cancelCtx)
	return &workflowContext{
		e:         e,
		r:         r,
		ctx:       termCtx,
		cancel:    cancel,
		terminate: terminate,
		logger:    telemetry.NewNoopLogger(),
		metrics:   telemetry.NewNoopMetrics(),
		tracer:    telemetry.NewNoopTracer(),
		signals:   make(map[string]*signalChannel),
	}
}

func (w *workflowContext) requestCancel()    { w.cancel() }
func (w *workflowContext) requestTerminate() { w.terminate() }

func (w *workflowContext) Context() context.Context { return w.ctx }

func (w *workflowContext) WorkflowID() string { return w.r.id }

func (w *workflowContext) RunID() string { return w.r.id }

func (w *workflowContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *workflowContext) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	w.e.mu.RLock()
	def, ok := w.e.activities[req.Name]
	w.e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem engine: activity %q not registered", req.Name)
	}

	actCtx := ctx
	var cancel context.CancelFunc
	if req.StartToCloseTimeout > 0 {
		actCtx, cancel = context.WithTimeout(ctx, req.StartToCloseTimeout)
	}

	resultCh := make(chan activityOutcome, 1)
	go func() {
		defer func() {
			if cancel != nil {
				cancel()
			}
		}()
		res, err := runWithRetry(actCtx, req.RetryPolicy, func() (any, error) {
			return def.Handler(actCtx, req.Input)
		})
		resultCh <- activityOutcome{result: res, err: err}
	}()

	return &future{done: resultCh}, nil
}

func (w *workflowContext) Sleep(ctx context.Context, d time.Duration) error {
	clock := w.e.Clock
	if clock == nil {
		clock = time.After
	}
	select {
	case <-clock(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *workflowContext) WaitCondition(ctx context.Context, predicate func() bool) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if predicate() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.signals[name]; ok {
		return ch
	}
	sc := &signalChannel{ch: w.r.signalChan(name)}
	w.signals[name] = sc
	return sc
}

func (w *workflowContext) Logger() telemetry.Logger   { return w.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.tracer }

func (w *workflowContext) Now() time.Time { return time.Now() }

func (w *workflowContext) IsCancelled() bool { return w.ctx.Err() != nil }

type activityOutcome struct {
	result any
	err    error
}

type future struct {
	done chan activityOutcome
	once sync.Once
	val  activityOutcome
}

func (f *future) Get(ctx context.Context, result any) error {
	f.once.Do(func() {
		select {
		case v, ok := <-f.done:
			if ok {
				f.val = v
				close(f.done)
			}
		case <-ctx.Done():
			f.val = activityOutcome{err: ctx.Err()}
		}
	})
	if f.val.err != nil {
		return f.val.err
	}
	assign(result, f.val.result)
	return nil
}

func (f *future) IsReady() bool {
	select {
	case v, ok := <-f.done:
		if ok {
			f.once.Do(func() { f.val = v })
			close(f.done)
		}
		return true
	default:
		return false
	}
}

type signalChannel struct {
	ch chan any
}

func (s *signalChannel) Receive(ctx context.Context, dest any) error {
	select {
	case v := <-s.ch:
		assign(dest, v)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assign(dest, v)
		return true
	default:
		return false
	}
}

// runWithRetry applies a RetryPolicy the way engine.Engine documents it:
// MaximumAttempts <= 0 means unlimited (bounded here by context cancellation),
// backoff grows by BackoffCoefficient up to MaximumInterval.
func runWithRetry(ctx context.Context, rp engine.RetryPolicy, fn func() (any, error)) (any, error) {
	interval := rp.InitialInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	coeff := rp.BackoffCoefficient
	if coeff <= 0 {
		coeff = 2.0
	}
	attempt := 0
	for {
		attempt++
		res, err := fn()
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if isNonRetryable(err, rp.NonRetryableErrors) {
			return nil, err
		}
		if rp.MaximumAttempts > 0 && attempt >= rp.MaximumAttempts {
			return nil, err
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		interval = time.Duration(float64(interval) * coeff)
		if rp.MaximumInterval > 0 && interval > rp.MaximumInterval {
			interval = rp.MaximumInterval
		}
	}
}

func isNonRetryable(err error, types []string) bool {
	if len(types) == 0 {
		return false
	}
	var typed interface{ Type() string }
	if errors.As(err, &typed) {
		t := typed.Type()
		for _, nt := range types {
			if nt == t {
				return true
			}
		}
	}
	return false
}
