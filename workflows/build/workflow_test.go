package build

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/engine/inmem"
	fakeplatform "github.com/agentware/agentctl/platform/fake"
)

type fakeAgents struct {
	agents map[string]domain.Agent
}

func (f *fakeAgents) Get(_ context.Context, id string) (*domain.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeAgents) Update(_ context.Context, agent domain.Agent) error {
	f.agents[agent.ID] = agent
	return nil
}

type fakeTasks struct{}

func (fakeTasks) Get(context.Context, string) (*domain.Task, error) { return nil, nil }
func (fakeTasks) UpdateStatus(context.Context, string, domain.TaskStatus, string) error {
	return nil
}

func newTestEngine(t *testing.T, platform *fakeplatform.Platform, agents *fakeAgents) engine.Engine {
	t.Helper()
	eng := inmem.New()
	eng.Clock = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	deps := &activities.Deps{
		Platform:        platform,
		Agents:          agents,
		Tasks:           fakeTasks{},
		RegistryURL:     "registry.local",
		AgentsNamespace: "agents",
		ServicePort:     80,
	}
	require.NoError(t, activities.Register(context.Background(), eng, deps))
	require.NoError(t, eng.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name:    Name,
		Handler: Workflow,
	}))
	return eng
}

// advanceBuildJobAsync watches for the job to appear then immediately marks
// it Succeeded, simulating an external build runner.
func advanceBuildJobAsync(p *fakeplatform.Platform, namespace, name string) {
	go func() {
		for i := 0; i < 100; i++ {
			p.AdvanceJob(namespace, name, "Succeeded")
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestBuildWorkflowHappyPath(t *testing.T) {
	agents := &fakeAgents{agents: map[string]domain.Agent{
		"a1": {ID: "a1", Name: "My Agent", Status: domain.AgentPending},
	}}
	p := fakeplatform.New()
	eng := newTestEngine(t, p, agents)

	advanceBuildJobAsync(p, "agents", "build-my-agent")
	go func() {
		for i := 0; i < 200; i++ {
			p.AdvanceDeployment("agents", "my-agent", 1)
			time.Sleep(time.Millisecond)
		}
	}()

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:              "a1",
		Workflow:        Name,
		DuplicatePolicy: engine.TerminateIfRunning,
		Input: Input{
			Agent:        agents.agents["a1"],
			AgentTarPath: "/ctx/my-agent.tar",
			Namespace:    "agents",
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var res Result
	require.NoError(t, handle.Wait(ctx, &res))
	assert.Equal(t, "registry.local/my-agent:latest", res.DockerImage)

	got, _ := agents.Get(context.Background(), "a1")
	assert.Equal(t, domain.AgentReady, got.Status)
}

func TestBuildWorkflowFailsOnBuildJobFailure(t *testing.T) {
	agents := &fakeAgents{agents: map[string]domain.Agent{
		"a2": {ID: "a2", Name: "Broken Agent", Status: domain.AgentPending},
	}}
	p := fakeplatform.New()
	eng := newTestEngine(t, p, agents)

	go func() {
		for i := 0; i < 100; i++ {
			p.AdvanceJob("agents", "build-broken-agent", "Failed")
			time.Sleep(time.Millisecond)
		}
	}()

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:              "a2",
		Workflow:        Name,
		DuplicatePolicy: engine.TerminateIfRunning,
		Input: Input{
			Agent:        agents.agents["a2"],
			AgentTarPath: "/ctx/broken-agent.tar",
			Namespace:    "agents",
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var res Result
	err = handle.Wait(ctx, &res)
	require.Error(t, err)

	got, _ := agents.Get(context.Background(), "a2")
	assert.Equal(t, domain.AgentFailed, got.Status)
}
