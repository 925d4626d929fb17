// Package openai adapts llm.Provider to the OpenAI Chat Completions API via
// github.com/openai/openai-go, the teacher's second LLM dependency,
// following the same request-building shape as llm/anthropic.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentware/agentctl/llm"
)

// ChatClient captures the subset of the OpenAI SDK used here.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements llm.Provider via OpenAI Chat Completions.
type Client struct {
	chat ChatClient
}

// New builds a Client from a pre-configured ChatClient.
func New(chat ChatClient) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions)
}

// Complete translates req into a Chat Completions call and decodes the
// first choice.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai: chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, errors.New("openai: response had no choices")
	}
	return translate(resp.Choices[0]), nil
}

func buildParams(req llm.Request) (openai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openai.ChatCompletionNewParams{}, errors.New("openai: model is required")
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "user":
			messages = append(messages, openai.UserMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.FunctionName,
						Arguments: tc.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
					ToolCalls: calls,
				},
			})
		case "tool":
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: at least one message is required")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  t.Parameters,
				},
			})
		}
		params.Tools = tools
	}
	return params, nil
}

func translate(choice openai.ChatCompletionChoice) llm.Response {
	out := llm.Message{Role: "assistant", Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:           tc.ID,
			FunctionName: tc.Function.Name,
			Arguments:    tc.Function.Arguments,
		})
	}
	reason := llm.FinishStop
	switch choice.FinishReason {
	case "length":
		reason = llm.FinishLength
	case "content_filter":
		reason = llm.FinishContentFilter
	case "tool_calls":
		reason = llm.FinishToolCalls
	case "stop":
		reason = llm.FinishStop
	}
	return llm.Response{Message: out, FinishReason: reason}
}
