// Package anthropic adapts llm.Provider to the Anthropic Claude Messages
// API, grounded on the teacher's features/model/anthropic adapter:
// github.com/anthropics/anthropic-sdk-go's MessageNewParams/ContentBlock
// shapes, simplified to the flat llm.Request/Response the tool loop here
// actually needs (no multimodal parts, no streaming).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentware/agentctl/llm"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements llm.Provider on top of Anthropic Claude Messages.
type Client struct {
	msg           MessagesClient
	defaultMaxTok int64
}

// New builds a Client from a pre-configured MessagesClient.
func New(msg MessagesClient, defaultMaxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 4096
	}
	return &Client{msg: msg, defaultMaxTok: int64(defaultMaxTokens)}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey string, defaultMaxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, defaultMaxTokens)
}

// Complete translates req into a Messages.New call and decodes the result.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Response{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translate(msg), nil
}

func (c *Client) buildParams(req llm.Request) (sdk.MessageNewParams, error) {
	if req.Model == "" {
		return sdk.MessageNewParams{}, errors.New("anthropic: model is required")
	}
	maxTokens := c.defaultMaxTok
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = int64(*req.MaxTokens)
	}

	var system []sdk.TextBlockParam
	var toolResultsByCallID = make(map[string]string)
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case "user":
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return sdk.MessageNewParams{}, fmt.Errorf("anthropic: tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.FunctionName))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case "tool":
			toolResultsByCallID[m.ToolCallID] = m.Content
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	if len(conversation) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := sdk.ToolInputSchemaParam{ExtraFields: t.Parameters}
			u := sdk.ToolUnionParamOfTool(schema, t.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(t.Description)
			}
			tools = append(tools, u)
		}
		params.Tools = tools
	}
	return params, nil
}

func translate(msg *sdk.Message) llm.Response {
	out := llm.Message{Role: "assistant"}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:           block.ID,
				FunctionName: block.Name,
				Arguments:    string(args),
			})
		}
	}
	reason := llm.FinishStop
	switch string(msg.StopReason) {
	case "max_tokens":
		reason = llm.FinishLength
	case "tool_use":
		reason = llm.FinishToolCalls
	case "stop_sequence", "end_turn":
		reason = llm.FinishStop
	}
	return llm.Response{Message: out, FinishReason: reason}
}
