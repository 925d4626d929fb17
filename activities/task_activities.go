package activities

import (
	"context"
	"encoding/json"

	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/platform"
	"github.com/agentware/agentctl/state"
)

// AppendUserMessageInput is the argument to append_user_message, used by
// the Task Workflow's instruct signal handler to record a human steer
// message, per spec.md §4.5's signal list.
type AppendUserMessageInput struct {
	TaskID  string `json:"task_id"`
	Content string `json:"content"`
}

// AppendUserMessage appends a UserMessage to a task's conversational state.
func (d *Deps) AppendUserMessage(ctx context.Context, in AppendUserMessageInput) (any, error) {
	if err := d.State.AppendMessage(ctx, in.TaskID, state.UserMessage(in.Content)); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "append_user_message: task %s", in.TaskID)
	}
	return nil, nil
}

// TakeActionInput is the argument to take_action, scheduled once per
// tool_call in an assistant decision, per spec.md §4.5 step 4c.
type TakeActionInput struct {
	TaskID     string `json:"task_id"`
	Namespace  string `json:"namespace"`
	ServiceName string `json:"service_name"`
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	// Arguments is the raw JSON the LLM emitted for this call; it is parsed
	// into the POST payload sent to the agent's hosted action.
	Arguments string `json:"arguments"`
	// Parameters is the action's declared JSON Schema (Action.Schema.Parameters),
	// validated against Arguments before dispatch. Nil if the LLM named a
	// tool the agent never advertised.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TakeAction POSTs the tool's arguments to /{tool_name} on the agent's
// Service and appends a ToolMessage recording the response. The activity's
// RetryPolicy (default 5 attempts per spec.md §4.5 step 4d) covers transient
// failures of the hosted action itself.
func (d *Deps) TakeAction(ctx context.Context, in TakeActionInput) (any, error) {
	var args map[string]any
	if in.Arguments != "" {
		if err := json.Unmarshal([]byte(in.Arguments), &args); err != nil {
			return nil, apperr.New(apperr.ClientError, "take_action: tool %s: malformed arguments: %v", in.ToolName, err)
		}
	}
	if err := validateActionArguments(in.ToolName, in.Parameters, args); err != nil {
		return nil, err
	}

	resp, err := d.Platform.CallService(ctx, platform.CallServiceRequest{
		Namespace: in.Namespace,
		Name:      in.ServiceName,
		Port:      d.ServicePort,
		Path:      in.ToolName,
		Method:    "POST",
		Payload:   args,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "take_action: tool %s", in.ToolName)
	}

	content, err := json.Marshal(resp)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "take_action: marshal response for tool %s", in.ToolName)
	}

	msg := state.ToolMessage(in.ToolCallID, in.ToolName, string(content))
	if err := d.State.AppendMessage(ctx, in.TaskID, msg); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "take_action: append tool message for task %s", in.TaskID)
	}
	return map[string]any{"tool_call_id": in.ToolCallID, "content": string(content)}, nil
}
