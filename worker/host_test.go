package worker

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine/inmem"
	fakeplatform "github.com/agentware/agentctl/platform/fake"
)

type fakeAgents struct{ agents map[string]domain.Agent }

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

func TestHostRegisterAndHealthz(t *testing.T) {
	eng := inmem.New()
	deps := &activities.Deps{
		Platform:        fakeplatform.New(),
		Agents:          &fakeAgents{agents: map[string]domain.Agent{}},
		Tasks:           fakeTasks{},
		RegistryURL:     "registry.local",
		AgentsNamespace: "agents",
	}
	h := New(Options{Engine: eng, Deps: deps, HealthAddr: ":0"})

	require.NoError(t, h.Register(context.Background()))
	assert.NotEmpty(t, h.BuildID())
	assert.False(t, h.Healthy())

	// Starting without a HealthAddr should just mark healthy and return.
	h2 := New(Options{Engine: inmem.New(), Deps: deps})
	require.NoError(t, h2.Register(context.Background()))
	done := make(chan error, 1)
	go func() { done <- h2.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
	}
	assert.True(t, h2.Healthy())
	h2.Stop(context.Background())
	assert.False(t, h2.Healthy())
}

func TestHostStartFailsWithoutRegister(t *testing.T) {
	eng := inmem.New()
	h := New(Options{Engine: eng, Deps: &activities.Deps{}})
	err := h.Start(context.Background())
	require.Error(t, err)
}

func TestHostHealthEndpoint(t *testing.T) {
	eng := inmem.New()
	deps := &activities.Deps{
		Platform: fakeplatform.New(),
		Agents:   &fakeAgents{agents: map[string]domain.Agent{}},
		Tasks:    fakeTasks{},
	}
	h := New(Options{Engine: eng, Deps: deps, HealthAddr: "127.0.0.1:18099"})
	require.NoError(t, h.Register(context.Background()))

	go func() { _ = h.Start(context.Background()) }()
	defer h.Stop(context.Background())

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://127.0.0.1:18099/healthz")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
