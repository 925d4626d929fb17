package activities

import (
	"context"

	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/llm"
	"github.com/agentware/agentctl/state"
)

// InitTaskStateInput is the argument to init_task_state.
type InitTaskStateInput struct {
	TaskID       string `json:"task_id"`
	Instructions string `json:"instructions"`
	Prompt       string `json:"prompt"`
}

// InitTaskState seeds conversational state with the system instructions and
// the user's prompt, per spec.md §4.5 step 1. Called exactly once per task
// id under normal replay; a retry re-appends, a replay no-op the design
// accepts per spec.md §4.5.
func (d *Deps) InitTaskState(ctx context.Context, in InitTaskStateInput) (any, error) {
	msgs := []state.Message{
		state.SystemMessage(in.Instructions),
		state.UserMessage(in.Prompt),
	}
	if err := d.State.BatchAppendMessages(ctx, in.TaskID, msgs); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "init_task_state: task %s", in.TaskID)
	}
	return nil, nil
}

// DecideActionInput is the argument to decide_action.
type DecideActionInput struct {
	TaskID string           `json:"task_id"`
	Model  string           `json:"model"`
	Tools  []llm.ToolSchema `json:"tools,omitempty"`
}

// DecideActionResult mirrors the {finish_reason, message} pair spec.md
// §4.5 step 4a returns to the Task Workflow.
type DecideActionResult struct {
	FinishReason llm.FinishReason `json:"finish_reason"`
	Message      llm.Message      `json:"message"`
}

// DecideAction loads the task's full message history, asks the LLM for a
// decision, and appends the assistant's reply before returning, per spec.md
// §4.5 step 4a.
func (d *Deps) DecideAction(ctx context.Context, in DecideActionInput) (any, error) {
	if err := validateToolSchemas(in.Tools); err != nil {
		return nil, err
	}

	history, err := d.State.GetAllMessages(ctx, in.TaskID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "decide_action: load state for task %s", in.TaskID)
	}

	resp, err := d.LLM.Complete(ctx, llm.Request{
		Model:    in.Model,
		Messages: toLLMMessages(history),
		Tools:    in.Tools,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "decide_action: complete for task %s", in.TaskID)
	}

	assistant := state.AssistantMessage(resp.Message.Content, toStateToolCalls(resp.Message.ToolCalls))
	if err := d.State.AppendMessage(ctx, in.TaskID, assistant); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "decide_action: append decision for task %s", in.TaskID)
	}

	return DecideActionResult{FinishReason: resp.FinishReason, Message: resp.Message}, nil
}

func toLLMMessages(msgs []state.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  toLLMToolCalls(m.ToolCalls),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	return out
}

func toLLMToolCalls(tcs []state.ToolCall) []llm.ToolCall {
	if tcs == nil {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, llm.ToolCall{ID: tc.ID, FunctionName: tc.FunctionName, Arguments: tc.Arguments})
	}
	return out
}

func toStateToolCalls(tcs []llm.ToolCall) []state.ToolCall {
	if tcs == nil {
		return nil
	}
	out := make([]state.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, state.ToolCall{ID: tc.ID, FunctionName: tc.FunctionName, Arguments: tc.Arguments})
	}
	return out
}
