package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/engine/inmem"
	"github.com/agentware/agentctl/llm"
	fakeplatform "github.com/agentware/agentctl/platform/fake"
	"github.com/agentware/agentctl/state"
	inmemstate "github.com/agentware/agentctl/state/inmem"
)

type fakeAgents struct {
	mu     sync.Mutex
	agents map[string]domain.Agent
}

func (f *fakeAgents) Get(_ context.Context, id string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeAgents) Update(_ context.Context, agent domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[agent.ID] = agent
	return nil
}

func (f *fakeAgents) statusOf(id string) domain.AgentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[id].Status
}

type fakeTasks struct{}

func (fakeTasks) Get(context.Context, string) (*domain.Task, error) { return nil, nil }
func (fakeTasks) UpdateStatus(context.Context, string, domain.TaskStatus, string) error {
	return nil
}

// scriptedLLM returns each response in turn, then repeats the last one.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []llm.Response
	calls     int
}

func (s *scriptedLLM) Complete(context.Context, llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

func newTestEngine(t *testing.T, p *fakeplatform.Platform, agents *fakeAgents, st state.Service, llmProvider llm.Provider) engine.Engine {
	t.Helper()
	eng := inmem.New()
	deps := &activities.Deps{
		Platform:    p,
		State:       st,
		LLM:         llmProvider,
		Agents:      agents,
		Tasks:       fakeTasks{},
		ServicePort: 80,
	}
	require.NoError(t, activities.Register(context.Background(), eng, deps))
	require.NoError(t, eng.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name:    Name,
		Handler: Workflow,
	}))
	return eng
}

func TestTaskWorkflowSingleToolCallThenStop(t *testing.T) {
	agents := &fakeAgents{agents: map[string]domain.Agent{
		"agent1": {ID: "agent1", Name: "weather-agent", Model: "test-model", Status: domain.AgentReady,
			Instructions: "be helpful",
			Actions: []domain.Action{{Schema: domain.ActionSchema{Name: "weather", Description: "get weather"}}},
		},
	}}
	p := fakeplatform.New()
	p.ServiceResponses["agents/weather-agent/weather"] = map[string]any{"temp_c": 17}
	st := state.NewService(inmemstate.New())

	llmProvider := &scriptedLLM{responses: []llm.Response{
		{
			FinishReason: llm.FinishToolCalls,
			Message: llm.Message{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", FunctionName: "weather", Arguments: `{"city":"Berlin"}`},
				},
			},
		},
		{
			FinishReason: llm.FinishStop,
			Message:      llm.Message{Role: "assistant", Content: "It's 17C in Berlin."},
		},
	}}

	eng := newTestEngine(t, p, agents, st, llmProvider)

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:              "task1",
		Workflow:        Name,
		DuplicatePolicy: engine.RejectDuplicate,
		Input: Input{
			Task:      domain.Task{ID: "task1", AgentID: "agent1", Prompt: "what's the weather in Berlin?"},
			Agent:     agents.agents["agent1"],
			Namespace: "agents",
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var res Result
	require.NoError(t, handle.Wait(ctx, &res))

	assert.Equal(t, domain.AgentIdle, agents.statusOf("agent1"))

	msgs, err := st.GetAllMessages(context.Background(), "task1")
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, state.RoleSystem, msgs[0].Role)
	assert.Equal(t, state.RoleUser, msgs[1].Role)
	assert.Equal(t, state.RoleAssistant, msgs[2].Role)
	assert.Equal(t, state.RoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, state.RoleAssistant, msgs[4].Role)
	assert.Equal(t, "It's 17C in Berlin.", msgs[4].Content)
}

func TestTaskWorkflowFailsFastWhenAgentNotReady(t *testing.T) {
	agents := &fakeAgents{agents: map[string]domain.Agent{
		"agent2": {ID: "agent2", Name: "not-ready-agent", Status: domain.AgentBuilding},
	}}
	p := fakeplatform.New()
	st := state.NewService(inmemstate.New())
	llmProvider := &scriptedLLM{responses: []llm.Response{{FinishReason: llm.FinishStop}}}
	eng := newTestEngine(t, p, agents, st, llmProvider)

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:              "task2",
		Workflow:        Name,
		DuplicatePolicy: engine.RejectDuplicate,
		Input: Input{
			Task:      domain.Task{ID: "task2", AgentID: "agent2", Prompt: "hi"},
			Agent:     agents.agents["agent2"],
			Namespace: "agents",
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var res Result
	err = handle.Wait(ctx, &res)
	require.Error(t, err)
}

func TestTaskWorkflowRequiresApproval(t *testing.T) {
	agents := &fakeAgents{agents: map[string]domain.Agent{
		"agent3": {ID: "agent3", Name: "gated-agent", Model: "test-model", Status: domain.AgentReady, Instructions: "be helpful"},
	}}
	p := fakeplatform.New()
	st := state.NewService(inmemstate.New())
	llmProvider := &scriptedLLM{responses: []llm.Response{
		{FinishReason: llm.FinishStop, Message: llm.Message{Role: "assistant", Content: "done"}},
	}}
	eng := newTestEngine(t, p, agents, st, llmProvider)

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:              "task3",
		Workflow:        Name,
		DuplicatePolicy: engine.RejectDuplicate,
		Input: Input{
			Task:            domain.Task{ID: "task3", AgentID: "agent3", Prompt: "hi"},
			Agent:           agents.agents["agent3"],
			RequireApproval: true,
			Namespace:       "agents",
		},
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, handle.Signal(context.Background(), SignalApprove, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var res Result
	require.NoError(t, handle.Wait(ctx, &res))
	assert.True(t, res.Approved)
	assert.Equal(t, domain.AgentIdle, agents.statusOf("agent3"))
}
