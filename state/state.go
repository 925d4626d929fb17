// Package state implements the Conversational State Service (C6): an
// ordered sequence of Messages plus a string-keyed context map, persisted as
// one JSON blob per task ID. The Message type is a tagged variant grounded
// in the teacher's model.Part discriminator pattern, simplified to the four
// roles this control plane needs — no multimodal parts.
package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role discriminates a Message's variant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by an Assistant message.
type ToolCall struct {
	ID           string `json:"id"`
	FunctionName string `json:"function_name"`
	Arguments    string `json:"arguments"` // raw JSON, as emitted by the LLM
}

// Message is the tagged-variant unit of conversational state. Only the
// fields relevant to Role are populated; json tags use omitempty so the
// wire form stays close to the minimal per-role shape.
type Message struct {
	Role Role `json:"role"`

	// Content is the text body for System/User/Assistant/Tool messages. An
	// Assistant message that only carries tool_calls may have empty Content.
	Content string `json:"content,omitempty"`

	// ToolCalls is populated only on Assistant messages that invoke tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are populated only on Tool messages, and
	// ToolCallID must reference a ToolCalls[i].ID from a prior Assistant
	// message in the same sequence.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// SystemMessage constructs a System-role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage constructs a User-role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage constructs an Assistant-role message, optionally with
// pending tool calls.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage constructs a Tool-role message reporting the result of
// toolCallID.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: content}
}

// AgentState is the whole per-task blob: the message sequence plus an
// arbitrary JSON-serializable context map. It is the unit of storage in the
// KV backend — reads and writes operate read-modify-write on this blob.
type AgentState struct {
	Messages []Message      `json:"messages"`
	Context  map[string]any `json:"context"`
}

// Empty returns a fresh AgentState, the value a cache miss on get_state
// must return (never an error).
func Empty() AgentState {
	return AgentState{Messages: []Message{}, Context: map[string]any{}}
}

// ValidateLinkage checks that every ToolMessage's ToolCallID references a
// ToolCalls[i].ID emitted by a prior Assistant message in s. Used by tests
// exercising the tool-call linkage invariant (spec testable property 5).
func (s AgentState) ValidateLinkage() error {
	seen := map[string]bool{}
	for _, m := range s.Messages {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				seen[tc.ID] = true
			}
		case RoleTool:
			if !seen[m.ToolCallID] {
				return fmt.Errorf("state: tool message references unknown tool_call_id %q", m.ToolCallID)
			}
		}
	}
	return nil
}

// Service is the Conversational State Service port. Every method is keyed
// by taskID; a miss on get_state returns Empty(), never an error.
type Service interface {
	GetState(ctx context.Context, taskID string) (AgentState, error)
	SetState(ctx context.Context, taskID string, s AgentState) error
	DeleteState(ctx context.Context, taskID string) error

	GetAllMessages(ctx context.Context, taskID string) ([]Message, error)
	GetMessageByIndex(ctx context.Context, taskID string, index int) (Message, error)
	BatchGetMessagesByIndices(ctx context.Context, taskID string, indices []int) ([]Message, error)
	AppendMessage(ctx context.Context, taskID string, m Message) error
	BatchAppendMessages(ctx context.Context, taskID string, ms []Message) error
	InsertMessage(ctx context.Context, taskID string, index int, m Message) error
	BatchInsertMessages(ctx context.Context, taskID string, index int, ms []Message) error
	OverrideMessage(ctx context.Context, taskID string, index int, m Message) error
	BatchOverrideMessages(ctx context.Context, taskID string, start int, ms []Message) error
	DeleteAllMessages(ctx context.Context, taskID string) error

	GetAllContext(ctx context.Context, taskID string) (map[string]any, error)
	GetContextValue(ctx context.Context, taskID, key string) (any, bool, error)
	BatchGetContextValues(ctx context.Context, taskID string, keys []string) (map[string]any, error)
	SetContextValue(ctx context.Context, taskID, key string, value any) error
	BatchSetContextValues(ctx context.Context, taskID string, values map[string]any) error
	DeleteContextValue(ctx context.Context, taskID, key string) error
	BatchDeleteContextValues(ctx context.Context, taskID string, keys []string) error
	DeleteAllContext(ctx context.Context, taskID string) error
}

// Marshal/Unmarshal are exposed so backends can share the exact same wire
// encoding without importing encoding/json directly at every call site.
func Marshal(s AgentState) ([]byte, error) { return json.Marshal(s) }

func Unmarshal(b []byte) (AgentState, error) {
	var s AgentState
	if err := json.Unmarshal(b, &s); err != nil {
		return AgentState{}, err
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	return s, nil
}
