// Package task implements the Task Workflow (C5): a ReAct-style tool-use
// loop over an agent's hosted actions, with optional human-in-the-loop
// approval and cooperative cancel/terminate. Grounded in the teacher's
// tool_calls.go futureInfo/batch-dispatch pattern for fanning parallel tool
// activities out and collecting them before the next decision, simplified
// to this domain's fixed loop shape.
package task

import (
	"context"
	"time"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/llm"
)

// Name is the logical workflow name the task router and C7 register this
// body under.
const Name = "run_task"

// SignalInstruct and SignalApprove are the two signal names spec.md §4.5
// defines for human-in-the-loop control.
const (
	SignalInstruct = "instruct"
	SignalApprove  = "approve"
)

// Input is the Task Workflow's argument, per spec.md §4.5.
type Input struct {
	Task            domain.Task  `json:"task"`
	Agent           domain.Agent `json:"agent"`
	RequireApproval bool         `json:"require_approval"`
	Namespace       string       `json:"namespace"`
}

// HumanInstruction is the payload of an instruct signal.
type HumanInstruction struct {
	TaskID string `json:"task_id"`
	Prompt string `json:"prompt"`
}

// Result is returned on successful completion.
type Result struct {
	Approved bool `json:"approved"`
}

// Workflow implements engine.WorkflowFunc for the Task Workflow.
func Workflow(ctx engine.WorkflowContext, rawInput any) (any, error) {
	in, err := decodeInput(rawInput)
	if err != nil {
		return nil, err
	}
	task, agent := in.Task, in.Agent

	// Step 1: init_task_state, exactly once per task id.
	if err := initTaskState(ctx, task.ID, agent.Instructions, task.Prompt); err != nil {
		return nil, err
	}

	// Step 2: the agent's Deployment+Service must already exist. A Task
	// Workflow never drives a build; it fails fast with a retryable error
	// so the orchestrator can retry once the agent reaches Ready.
	if agent.Status != domain.AgentReady {
		return nil, apperr.New(apperr.ServiceError, "task workflow: agent %s is not Ready (status %s)", agent.ID, agent.Status)
	}

	// Step 3: mark agent Active.
	if err := updateAgentStatus(ctx, agent.ID, domain.AgentActive, ""); err != nil {
		return nil, err
	}

	instructCh := ctx.SignalChannel(SignalInstruct)
	approveCh := ctx.SignalChannel(SignalApprove)

	tools := toolSchemas(agent.Actions)
	waitingForInstruction := false
	taskApproved := false

	for {
		if ctx.IsCancelled() {
			return teardown(ctx, agent.ID, true)
		}

		drainInstructSignals(ctx, task.ID, instructCh, &waitingForInstruction)
		if drainApproveSignal(approveCh) {
			taskApproved = true
		}

		// Step 4a: decide_action.
		decision, err := decideAction(ctx, task.ID, agent.Model, tools)
		if err != nil {
			return nil, err
		}

		// Step 4b.
		if decision.FinishReason.Terminal() {
			break
		}

		// Steps 4c-4d: fan out tool calls in parallel, await all.
		if err := dispatchToolCalls(ctx, task.ID, in.Namespace, agent.ServiceName(), decision.Message.ToolCalls, tools); err != nil {
			return nil, err
		}

		if ctx.IsCancelled() {
			return teardown(ctx, agent.ID, true)
		}
	}

	// Step 5: human gate, only if required.
	if in.RequireApproval && !taskApproved {
		waitingForInstruction = true
		for !taskApproved {
			if err := ctx.WaitCondition(ctx.Context(), func() bool {
				drainInstructSignals(ctx, task.ID, instructCh, &waitingForInstruction)
				if drainApproveSignal(approveCh) {
					taskApproved = true
				}
				return !waitingForInstruction || taskApproved
			}); err != nil {
				return teardown(ctx, agent.ID, true)
			}
			if !taskApproved && !waitingForInstruction {
				// instruct cleared the gate without approval: re-enter the
				// tool loop with the freshly appended UserMessage.
				return resumeToolLoop(ctx, in, tools, instructCh, approveCh)
			}
		}
	}

	// Step 6: mark agent Idle. Step 7: teardown is a no-op — the agent's
	// Service persists across tasks.
	return teardown(ctx, agent.ID, false)
}

func decodeInput(raw any) (*Input, error) {
	switch v := raw.(type) {
	case Input:
		return &v, nil
	case *Input:
		return v, nil
	default:
		return nil, apperr.New(apperr.ClientError, "task workflow: unexpected input type %T", raw)
	}
}

// resumeToolLoop re-enters the tool loop after an instruct signal clears the
// human gate without approval, per spec.md §4.5 step 5.
func resumeToolLoop(ctx engine.WorkflowContext, in *Input, tools []llm.ToolSchema, instructCh, approveCh engine.SignalChannel) (any, error) {
	task, agent := in.Task, in.Agent
	taskApproved := false
	waitingForInstruction := false

	for {
		if ctx.IsCancelled() {
			return teardown(ctx, agent.ID, true)
		}
		drainInstructSignals(ctx, task.ID, instructCh, &waitingForInstruction)
		if drainApproveSignal(approveCh) {
			taskApproved = true
		}

		decision, err := decideAction(ctx, task.ID, agent.Model, tools)
		if err != nil {
			return nil, err
		}
		if decision.FinishReason.Terminal() {
			break
		}
		if err := dispatchToolCalls(ctx, task.ID, in.Namespace, agent.ServiceName(), decision.Message.ToolCalls, tools); err != nil {
			return nil, err
		}
		if ctx.IsCancelled() {
			return teardown(ctx, agent.ID, true)
		}
	}

	if in.RequireApproval && !taskApproved {
		waitingForInstruction = true
		if err := ctx.WaitCondition(ctx.Context(), func() bool {
			drainInstructSignals(ctx, task.ID, instructCh, &waitingForInstruction)
			if drainApproveSignal(approveCh) {
				taskApproved = true
			}
			return !waitingForInstruction || taskApproved
		}); err != nil {
			return teardown(ctx, agent.ID, true)
		}
		if !taskApproved {
			return resumeToolLoop(ctx, in, tools, instructCh, approveCh)
		}
	}

	return teardown(ctx, agent.ID, false)
}

func initTaskState(ctx engine.WorkflowContext, taskID, instructions, prompt string) error {
	var out any
	return ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameInitTaskState,
		Input: activities.InitTaskStateInput{
			TaskID:       taskID,
			Instructions: instructions,
			Prompt:       prompt,
		},
	}, &out)
}

func updateAgentStatus(ctx engine.WorkflowContext, agentID string, status domain.AgentStatus, reason string) error {
	var out any
	return ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameUpdateAgentStatus,
		Input: activities.UpdateAgentStatusInput{
			AgentID: agentID,
			Status:  status,
			Reason:  reason,
		},
		RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
	}, &out)
}

func decideAction(ctx engine.WorkflowContext, taskID, model string, tools []llm.ToolSchema) (*activities.DecideActionResult, error) {
	var res activities.DecideActionResult
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameDecideAction,
		Input: activities.DecideActionInput{
			TaskID: taskID,
			Model:  model,
			Tools:  tools,
		},
		StartToCloseTimeout: 60 * time.Second,
	}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// dispatchToolCalls schedules one take_action per tool call in parallel and
// waits for all to complete before returning, per spec.md §4.5 step 4d. The
// workflow does not impose an ordering among siblings. Each call's declared
// JSON Schema parameters travel along so the activity can validate the
// LLM-emitted arguments before dispatch.
func dispatchToolCalls(ctx engine.WorkflowContext, taskID, namespace, serviceName string, calls []llm.ToolCall, tools []llm.ToolSchema) error {
	futures := make([]engine.Future, 0, len(calls))
	for _, tc := range calls {
		fut, err := ctx.ExecuteActivityAsync(ctx.Context(), engine.ActivityRequest{
			Name: activities.NameTakeAction,
			Input: activities.TakeActionInput{
				TaskID:      taskID,
				Namespace:   namespace,
				ServiceName: serviceName,
				ToolCallID:  tc.ID,
				ToolName:    tc.FunctionName,
				Arguments:   tc.Arguments,
				Parameters:  parametersFor(tools, tc.FunctionName),
			},
			RetryPolicy: engine.RetryPolicy{MaximumAttempts: 5},
		})
		if err != nil {
			return err
		}
		futures = append(futures, fut)
	}
	var firstErr error
	for _, fut := range futures {
		var out any
		if err := fut.Get(ctx.Context(), &out); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func drainInstructSignals(ctx engine.WorkflowContext, taskID string, ch engine.SignalChannel, waitingForInstruction *bool) {
	for {
		var instr HumanInstruction
		if !ch.ReceiveAsync(&instr) {
			return
		}
		var out any
		_ = ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
			Name:        activities.NameAppendUserMessage,
			Input:       activities.AppendUserMessageInput{TaskID: taskID, Content: instr.Prompt},
			RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
		}, &out)
		*waitingForInstruction = false
	}
}

func drainApproveSignal(ch engine.SignalChannel) bool {
	var payload any
	return ch.ReceiveAsync(&payload)
}

// teardown marks the agent Idle (step 6) and, for a cooperative cancel, runs
// before returning so the engine records a Canceled status rather than
// Failed — per spec.md §5.8 "cancel leaves the Agent in status Idle
// (teardown runs)".
func teardown(ctx engine.WorkflowContext, agentID string, cancelled bool) (any, error) {
	reason := ""
	if cancelled {
		reason = "task canceled"
	}
	_ = updateAgentStatus(ctx, agentID, domain.AgentIdle, reason)
	if cancelled {
		if err := ctx.Context().Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}
	return Result{Approved: true}, nil
}

// parametersFor looks up the declared JSON Schema for a tool by name, nil if
// the LLM named a tool the agent never advertised (take_action then fails
// dispatch on the platform side rather than on a missing schema).
func parametersFor(tools []llm.ToolSchema, name string) map[string]any {
	for _, t := range tools {
		if t.Name == name {
			return t.Parameters
		}
	}
	return nil
}

func toolSchemas(actions []domain.Action) []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(actions))
	for _, a := range actions {
		out = append(out, llm.ToolSchema{
			Name:        a.Schema.Name,
			Description: a.Schema.Description,
			Parameters:  a.Schema.Parameters,
		})
	}
	return out
}
