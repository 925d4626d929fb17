package activities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/llm"
	fakeplatform "github.com/agentware/agentctl/platform/fake"
	"github.com/agentware/agentctl/state"
	inmemstate "github.com/agentware/agentctl/state/inmem"
)

var weatherParams = map[string]any{
	"type":                 "object",
	"properties":           map[string]any{"city": map[string]any{"type": "string"}},
	"required":             []any{"city"},
	"additionalProperties": false,
}

func TestDecideActionRejectsMalformedToolSchema(t *testing.T) {
	st := state.NewService(inmemstate.New())
	d := &Deps{State: st, LLM: stubLLM{resp: llm.Response{FinishReason: llm.FinishStop}}}

	_, err := d.DecideAction(context.Background(), DecideActionInput{
		TaskID: "t1",
		Model:  "test-model",
		Tools: []llm.ToolSchema{
			{Name: "weather", Parameters: map[string]any{"type": "not-a-real-type"}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.ClientError, apperr.KindOf(err))
}

func TestTakeActionRejectsArgumentsNotMatchingSchema(t *testing.T) {
	p := fakeplatform.New()
	p.ServiceResponses["agents/my-agent/weather"] = map[string]any{"temp_c": 17}
	st := state.NewService(inmemstate.New())
	d := &Deps{Platform: p, State: st, ServicePort: 80}

	_, err := d.TakeAction(context.Background(), TakeActionInput{
		TaskID:      "t1",
		Namespace:   "agents",
		ServiceName: "my-agent",
		ToolCallID:  "call_1",
		ToolName:    "weather",
		Arguments:   `{}`,
		Parameters:  weatherParams,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.ClientError, apperr.KindOf(err))

	msgs, err := st.GetAllMessages(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTakeActionAcceptsArgumentsMatchingSchema(t *testing.T) {
	p := fakeplatform.New()
	p.ServiceResponses["agents/my-agent/weather"] = map[string]any{"temp_c": 17}
	st := state.NewService(inmemstate.New())
	d := &Deps{Platform: p, State: st, ServicePort: 80}

	_, err := d.TakeAction(context.Background(), TakeActionInput{
		TaskID:      "t1",
		Namespace:   "agents",
		ServiceName: "my-agent",
		ToolCallID:  "call_1",
		ToolName:    "weather",
		Arguments:   `{"city":"Berlin"}`,
		Parameters:  weatherParams,
	})
	require.NoError(t, err)
}
