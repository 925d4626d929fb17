// Package engine defines the Workflow Engine Port: an abstract contract over
// a durable workflow runtime. Build and Task workflow bodies are written
// against this interface, never against a concrete engine SDK, so they can
// run unmodified on Temporal in production and on the in-memory adapter in
// tests.
//
// Workflow bodies executing through this port must remain deterministic:
// all I/O, timers, and randomness must flow through WorkflowContext so that
// replay produces the same sequence of decisions. Direct calls to time.Now,
// math/rand, or any network client from within a WorkflowFunc violate this
// contract.
package engine

import (
	"context"
	"time"

	"github.com/agentware/agentctl/telemetry"
)

type (
	// Engine registers workflow/activity definitions and starts executions.
	Engine interface {
		// RegisterWorkflow binds a workflow definition under its logical name.
		// Must be called before StartWorkflow references it.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity binds an activity definition under its logical name.
		// Must be called before any workflow calls ExecuteActivity with that name.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow launches a new workflow execution. The returned handle's
		// WorkflowID always equals req.ID. DuplicatePolicy governs what happens
		// when req.ID already identifies a workflow (running or terminal).
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)

		// SendSignal delivers payload to the named signal channel of a running
		// workflow, at-least-once. Returns ErrNotFound if workflowID is unknown
		// to the engine.
		SendSignal(ctx context.Context, workflowID, signalName string, payload any) error

		// CancelWorkflow requests cooperative cancellation: the workflow observes
		// cancellation at its next suspension point and may run teardown logic.
		CancelWorkflow(ctx context.Context, workflowID string) error

		// TerminateWorkflow forcibly stops a workflow with no teardown.
		TerminateWorkflow(ctx context.Context, workflowID string) error

		// GetWorkflowStatus maps the engine's native execution status onto the
		// domain Status enum. An unknown workflowID yields StatusNotFound rather
		// than an error, matching spec.md's "NotFound -> synthetic terminal
		// status" contract.
		GetWorkflowStatus(ctx context.Context, workflowID string) (WorkflowStatus, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the workflow entry point. It must be deterministic: the
	// same input plus the same sequence of recorded activity results must
	// always produce the same sequence of engine calls.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// ActivityDefinition binds an activity handler to a logical name, plus
	// registration options.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs side-effecting work. Unlike WorkflowFunc, it may
	// freely perform I/O, sleep on the wall clock, and use randomness.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions carries an activity definition's registration options.
	// Queue selects the worker the activity is registered on. The shipped
	// adapters do not apply RetryPolicy or Timeout: each invocation runs
	// with the retry policy and timeout of its own ActivityRequest.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		// ID is the workflow identifier; for this control plane it always
		// equals the Agent or Task primary key (spec.md §3).
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		DuplicatePolicy  DuplicateWorkflowPolicy
		RetryPolicy      RetryPolicy
		TaskTimeout      time.Duration
		ExecutionTimeout time.Duration
	}

	// ActivityRequest describes an activity invocation from within a workflow.
	ActivityRequest struct {
		Name                string
		Input               any
		Queue               string
		RetryPolicy         RetryPolicy
		StartToCloseTimeout time.Duration
	}

	// WorkflowHandle lets callers outside the workflow interact with a
	// running (or completed) execution.
	WorkflowHandle interface {
		WorkflowID() string
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
		Terminate(ctx context.Context) error
	}

	// RetryPolicy controls retry behavior shared by workflow starts and
	// activity invocations.
	RetryPolicy struct {
		InitialInterval    time.Duration
		BackoffCoefficient float64
		MaximumInterval    time.Duration
		// MaximumAttempts of 0 means unbounded retries.
		MaximumAttempts int32
		// NonRetryableErrors lists error type names the engine must not retry,
		// matching spec.md §7's "retryable vs non-retryable" activity boundary.
		NonRetryableErrors []string
	}

	// DuplicateWorkflowPolicy governs StartWorkflow behavior when the
	// requested ID already identifies a workflow execution, per spec.md §3.
	DuplicateWorkflowPolicy int

	// WorkflowStatus is the result of GetWorkflowStatus: the mapped domain
	// status plus whether that status is terminal and a human-readable reason.
	WorkflowStatus struct {
		Status     Status
		IsTerminal bool
		Reason     string
	}

	// Status is the domain-level workflow execution status enumerated in
	// spec.md §3.
	Status string
)

const (
	// AllowDuplicate starts a new run even if one with the same ID exists.
	AllowDuplicate DuplicateWorkflowPolicy = iota
	// AllowDuplicateFailedOnly starts a new run only if the prior run with
	// this ID failed (or none exists).
	AllowDuplicateFailedOnly
	// RejectDuplicate fails the start if any run with this ID exists, in any
	// state. Used for the Task Workflow: a task ID is single-run.
	RejectDuplicate
	// TerminateIfRunning terminates a currently-running execution with this
	// ID, then starts a new one. Used for the Build Workflow: re-uploading an
	// agent supersedes an in-flight build.
	TerminateIfRunning
)

const (
	StatusRunning        Status = "Running"
	StatusCompleted      Status = "Completed"
	StatusFailed         Status = "Failed"
	StatusCanceled       Status = "Canceled"
	StatusTerminated     Status = "Terminated"
	StatusTimedOut       Status = "TimedOut"
	StatusContinuedAsNew Status = "ContinuedAsNew"
	StatusNotFound       Status = "NotFound"
)

// IsTerminal reports whether s is a terminal execution status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusTerminated, StatusTimedOut, StatusNotFound:
		return true
	default:
		return false
	}
}

type (
	// WorkflowContext exposes engine operations to a running workflow body.
	// All methods must be replay-safe: calling them during history replay
	// must reproduce the same decisions recorded in the original execution.
	WorkflowContext interface {
		// Context returns a Go context usable for ExecuteActivity calls and for
		// cancellation propagation. It must not be used for direct I/O.
		Context() context.Context

		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules req and blocks until it completes,
		// decoding the result into result (a pointer).
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules req without blocking, returning a
		// Future resolved later via Future.Get. Used to fan out parallel tool
		// calls within a single tool-loop iteration.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// Sleep suspends the workflow for d using the engine's durable timer.
		Sleep(ctx context.Context, d time.Duration) error

		// WaitCondition blocks until predicate returns true, re-evaluating it
		// on every suspension-worthy event (signal arrival, timer fire).
		WaitCondition(ctx context.Context, predicate func() bool) error

		// SignalChannel returns the channel for the named signal.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns deterministic workflow time (replay-safe).
		Now() time.Time

		// IsCancelled reports whether cooperative cancellation has been
		// requested for this execution.
		IsCancelled() bool
	}

	// Future represents a pending activity result.
	Future interface {
		// Get blocks until the activity completes, decoding its result into
		// result. Safe to call multiple times; returns the same outcome.
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// SignalChannel exposes signal delivery to workflow code.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
