package activities

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/llm"
	fakeplatform "github.com/agentware/agentctl/platform/fake"
	inmemstate "github.com/agentware/agentctl/state/inmem"
	"github.com/agentware/agentctl/state"
)

type fakeAgents struct {
	mu     sync.Mutex
	agents map[string]domain.Agent
}

func newFakeAgents(seed ...domain.Agent) *fakeAgents {
	a := &fakeAgents{agents: map[string]domain.Agent{}}
	for _, ag := range seed {
		a.agents[ag.ID] = ag
	}
	return a
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

type fakeTasks struct{}

func (fakeTasks) Get(context.Context, string) (*domain.Task, error) { return nil, nil }
func (fakeTasks) UpdateStatus(context.Context, string, domain.TaskStatus, string) error {
	return nil
}

type stubLLM struct {
	resp llm.Response
	err  error
}

func (s stubLLM) Complete(context.Context, llm.Request) (llm.Response, error) {
	return s.resp, s.err
}

func TestUpdateAgentStatusOverwrites(t *testing.T) {
	agents := newFakeAgents(domain.Agent{ID: "a1", Name: "demo", Status: domain.AgentPending})
	d := &Deps{Agents: agents, Tasks: fakeTasks{}}

	_, err := d.UpdateAgentStatus(context.Background(), UpdateAgentStatusInput{
		AgentID: "a1",
		Status:  domain.AgentBuilding,
		Reason:  "building",
	})
	require.NoError(t, err)

	got, err := agents.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentBuilding, got.Status)
	assert.Equal(t, "building", got.StatusReason)

	// Idempotent retry: re-applying the same overwrite is a no-op change.
	_, err = d.UpdateAgentStatus(context.Background(), UpdateAgentStatusInput{
		AgentID: "a1",
		Status:  domain.AgentBuilding,
		Reason:  "building",
	})
	require.NoError(t, err)
}

func TestUpdateAgentStatusMissingAgent(t *testing.T) {
	d := &Deps{Agents: newFakeAgents(), Tasks: fakeTasks{}}
	_, err := d.UpdateAgentStatus(context.Background(), UpdateAgentStatusInput{AgentID: "missing"})
	require.Error(t, err)
}

func TestBuildAndPushCreatesJob(t *testing.T) {
	p := fakeplatform.New()
	d := &Deps{
		Platform:        p,
		RegistryURL:     "registry.local",
		AgentsNamespace: "agents",
	}

	res, err := d.BuildAndPush(context.Background(), BuildAndPushInput{
		AgentName:          "My Agent",
		ContextArchivePath: "/ctx/my-agent.tar",
	})
	require.NoError(t, err)
	r := res.(BuildAndPushResult)
	assert.Equal(t, "registry.local/my-agent:latest", r.DockerImage)
	assert.Equal(t, "build-my-agent", r.BuildJobName)
	assert.Equal(t, "agents", r.BuildJobNamespace)

	job, err := d.GetBuildJob(context.Background(), ResourceRef{Namespace: "agents", Name: "build-my-agent"})
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestTakeActionAppendsToolMessage(t *testing.T) {
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
	})
	require.NoError(t, err)

	msgs, err := st.GetAllMessages(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, state.RoleTool, msgs[0].Role)
	assert.Equal(t, "call_1", msgs[0].ToolCallID)
	assert.Contains(t, msgs[0].Content, "17")
}

func TestInitTaskStateAndDecideAction(t *testing.T) {
	st := state.NewService(inmemstate.New())
	d := &Deps{
		State: st,
		LLM: stubLLM{resp: llm.Response{
			Message:      llm.Message{Role: "assistant", Content: "hello"},
			FinishReason: llm.FinishStop,
		}},
	}

	_, err := d.InitTaskState(context.Background(), InitTaskStateInput{
		TaskID:       "t1",
		Instructions: "be helpful",
		Prompt:       "what is the weather",
	})
	require.NoError(t, err)

	res, err := d.DecideAction(context.Background(), DecideActionInput{TaskID: "t1", Model: "test-model"})
	require.NoError(t, err)
	out := res.(DecideActionResult)
	assert.Equal(t, llm.FinishStop, out.FinishReason)
	assert.True(t, out.FinishReason.Terminal())

	msgs, err := st.GetAllMessages(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, state.RoleSystem, msgs[0].Role)
	assert.Equal(t, state.RoleUser, msgs[1].Role)
	assert.Equal(t, state.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "hello", msgs[2].Content)
}
