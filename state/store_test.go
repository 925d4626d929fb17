package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/state"
	"github.com/agentware/agentctl/state/inmem"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := state.NewService(inmem.New())

	got, err := svc.GetState(ctx, "unseen")
	require.NoError(t, err)
	assert.Equal(t, state.Empty(), got)

	want := state.AgentState{
		Messages: []state.Message{state.SystemMessage("be helpful"), state.UserMessage("hi")},
		Context:  map[string]any{"k": "v"},
	}
	require.NoError(t, svc.SetState(ctx, "t1", want))

	got, err = svc.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestToolCallLinkage(t *testing.T) {
	ctx := context.Background()
	svc := state.NewService(inmem.New())

	require.NoError(t, svc.AppendMessage(ctx, "t1", state.SystemMessage("sys")))
	require.NoError(t, svc.AppendMessage(ctx, "t1", state.UserMessage("weather in Tokyo")))
	require.NoError(t, svc.AppendMessage(ctx, "t1", state.AssistantMessage("", []state.ToolCall{
		{ID: "c1", FunctionName: "get_weather", Arguments: `{"location":"Tokyo"}`},
	})))
	require.NoError(t, svc.AppendMessage(ctx, "t1", state.ToolMessage("c1", "get_weather", `{"temp":17}`)))
	require.NoError(t, svc.AppendMessage(ctx, "t1", state.AssistantMessage("It's 17°C in Tokyo.", nil)))

	st, err := svc.GetState(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, st.ValidateLinkage())
	assert.Len(t, st.Messages, 5)
}

func TestBatchAppendAndContext(t *testing.T) {
	ctx := context.Background()
	svc := state.NewService(inmem.New())

	require.NoError(t, svc.BatchAppendMessages(ctx, "t1", []state.Message{
		state.SystemMessage("sys"), state.UserMessage("prompt"),
	}))
	msgs, err := svc.GetAllMessages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NoError(t, svc.SetContextValue(ctx, "t1", "iteration", 1))
	v, ok, err := svc.GetContextValue(ctx, "t1", "iteration")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, v)

	require.NoError(t, svc.DeleteContextValue(ctx, "t1", "iteration"))
	_, ok, err = svc.GetContextValue(ctx, "t1", "iteration")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteState(t *testing.T) {
	ctx := context.Background()
	svc := state.NewService(inmem.New())

	require.NoError(t, svc.AppendMessage(ctx, "t1", state.UserMessage("hi")))
	require.NoError(t, svc.DeleteState(ctx, "t1"))

	got, err := svc.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, state.Empty(), got)
}
