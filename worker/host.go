// Package worker implements the Worker Host (C7): registers the Build and
// Task workflow bodies and the Activity Layer against a Workflow Engine Port
// adapter, reports its activity concurrency setting, and exposes liveness/metrics HTTP
// endpoints for the orchestrator managing this process. Grounded in the
// teacher's engine/temporal.WorkerOptions passthrough (TaskQueue, a bound on
// concurrent activities) and run_id.go's ID-minting helper, generalized here
// to a per-process BuildID rather than a per-workflow-execution run ID.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/telemetry"
	buildworkflow "github.com/agentware/agentctl/workflows/build"
	taskworkflow "github.com/agentware/agentctl/workflows/task"
)

// Options configures a Host.
type Options struct {
	// Engine is the Workflow Engine Port adapter this host registers
	// workflows and activities against (engine/temporal in production,
	// engine/inmem in tests and local demos).
	Engine engine.Engine
	// Deps bundles the Activity Layer's collaborators.
	Deps *activities.Deps
	// MaxConcurrentActivities is the activity concurrency reported on
	// /healthz. The Host does not pass it to the engine; the bound itself is
	// set in the engine adapter's worker options. Zero uses the package
	// default of 10, matching spec.md §5's stated default worker concurrency.
	MaxConcurrentActivities int
	// HealthAddr is the address the liveness/metrics server listens on, for
	// example ":9090". Empty disables the health server.
	HealthAddr string
	// Metrics, if set, is scraped over the health server's /metrics path. Nil
	// disables the endpoint.
	Metrics *telemetry.PromMetrics
}

// DefaultMaxConcurrentActivities is used when Options.MaxConcurrentActivities
// is zero, matching spec.md §5's default worker concurrency of 10.
const DefaultMaxConcurrentActivities = 10

// Lifecycle is implemented by engine adapters that require an explicit
// worker poll loop (engine/temporal). Adapters without a separate worker
// process (engine/inmem) need not implement it; Host detects its absence
// and treats registration alone as sufficient.
type Lifecycle interface {
	StartWorkers() error
	StopWorkers()
}

// Host registers C4/C5 workflows and C3 activities against an engine and
// manages the resulting worker's liveness.
type Host struct {
	opts       Options
	health     *healthServer
	buildID    string
	registered bool
	healthy    atomic.Bool
}

// New constructs a Host. Call Register then Start.
func New(opts Options) *Host {
	if opts.MaxConcurrentActivities <= 0 {
		opts.MaxConcurrentActivities = DefaultMaxConcurrentActivities
	}
	return &Host{opts: opts, buildID: BuildID()}
}

// BuildID returns the process build identifier, the same value cmd/worker
// sets as the engine worker identity.
func (h *Host) BuildID() string { return h.buildID }

// Register binds the Build Workflow, Task Workflow, and every C3 activity to
// the configured engine. Must be called before Start.
func (h *Host) Register(ctx context.Context) error {
	if err := h.opts.Engine.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:    buildworkflow.Name,
		Handler: buildworkflow.Workflow,
	}); err != nil {
		return fmt.Errorf("worker: register build workflow: %w", err)
	}
	if err := h.opts.Engine.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:    taskworkflow.Name,
		Handler: taskworkflow.Workflow,
	}); err != nil {
		return fmt.Errorf("worker: register task workflow: %w", err)
	}
	if err := activities.Register(ctx, h.opts.Engine, h.opts.Deps); err != nil {
		return fmt.Errorf("worker: register activities: %w", err)
	}
	h.registered = true
	return nil
}

// Start launches the worker's poll loop (for engines with an explicit
// Lifecycle) and the liveness/metrics HTTP server, then blocks until Stop is
// called or the server fails. Call Register first.
func (h *Host) Start(ctx context.Context) error {
	if !h.registered {
		return fmt.Errorf("worker: Register must be called before Start")
	}

	if lc, ok := h.opts.Engine.(Lifecycle); ok {
		if err := lc.StartWorkers(); err != nil {
			return fmt.Errorf("worker: start engine workers: %w", err)
		}
	}

	h.markHealthy()

	if h.opts.HealthAddr == "" {
		return nil
	}
	h.health = newHealthServer(h.opts.HealthAddr, h)
	return h.health.ListenAndServe(ctx)
}

// Stop stops the engine's worker poll loop (if any) and the health server.
// Liveness flips false for any remaining process lifetime, matching spec.md
// §4.7's "any worker crash flips liveness false" — an explicit Stop is
// modeled the same way a crash would be observed by a caller still polling
// /healthz.
func (h *Host) Stop(ctx context.Context) {
	h.markUnhealthy()
	if lc, ok := h.opts.Engine.(Lifecycle); ok {
		lc.StopWorkers()
	}
	if h.health != nil {
		h.health.Shutdown(ctx)
	}
}

func (h *Host) markHealthy()   { h.healthy.Store(true) }
func (h *Host) markUnhealthy() { h.healthy.Store(false) }

// Healthy reports whether this host's worker(s) are currently live. Only
// true once registration and engine worker startup (if any) have both
// succeeded.
func (h *Host) Healthy() bool { return h.healthy.Load() }
