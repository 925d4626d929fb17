package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/engine/inmem"
	fakeplatform "github.com/agentware/agentctl/platform/fake"
	buildworkflow "github.com/agentware/agentctl/workflows/build"
	taskworkflow "github.com/agentware/agentctl/workflows/task"
)

type memAgents struct{ agents map[string]domain.Agent }

func (m *memAgents) Create(_ context.Context, a domain.Agent) error {
	m.agents[a.ID] = a
	return nil
}
func (m *memAgents) Get(_ context.Context, id string) (*domain.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}
func (m *memAgents) Delete(_ context.Context, id string) error {
	delete(m.agents, id)
	return nil
}

type memTasks struct{ tasks map[string]domain.Task }

func (m *memTasks) Create(_ context.Context, t domain.Task) error {
	m.tasks[t.ID] = t
	return nil
}
func (m *memTasks) Get(_ context.Context, id string) (*domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func newTestServer(t *testing.T) (*Server, *memAgents, *memTasks) {
	t.Helper()
	eng := inmem.New()
	agentsRepo := &memAgents{agents: map[string]domain.Agent{}}
	tasksRepo := &memTasks{tasks: map[string]domain.Task{}}
	deps := &activities.Deps{
		Platform:        fakeplatform.New(),
		Agents:          agentsStoreAdapter{agentsRepo},
		Tasks:           fakeTasksAdapter{},
		RegistryURL:     "registry.local",
		AgentsNamespace: "agents",
	}
	require.NoError(t, activities.Register(context.Background(), eng, deps))
	require.NoError(t, eng.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{Name: buildworkflow.Name, Handler: buildworkflow.Workflow}))
	require.NoError(t, eng.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{Name: taskworkflow.Name, Handler: taskworkflow.Workflow}))

	s := &Server{
		Agents:           agentsRepo,
		Tasks:            tasksRepo,
		Engine:           eng,
		DefaultTaskQueue: "agentctl-default",
		Namespace:        "agents",
	}
	return s, agentsRepo, tasksRepo
}

// agentsStoreAdapter and fakeTasksAdapter bridge the httpapi-local memAgents
// (Create/Get/Delete) to activities.AgentRepository (Get/Update), since the
// Build Workflow under test needs to mutate status during the request.
type agentsStoreAdapter struct{ *memAgents }

func (a agentsStoreAdapter) Update(_ context.Context, agent domain.Agent) error {
	a.agents[agent.ID] = agent
	return nil
}

type fakeTasksAdapter struct{}

func (fakeTasksAdapter) Get(context.Context, string) (*domain.Task, error) { return nil, nil }
func (fakeTasksAdapter) UpdateStatus(context.Context, string, domain.TaskStatus, string) error {
	return nil
}

func TestCreateAgentStartsBuildWorkflow(t *testing.T) {
	s, agents, _ := newTestServer(t)
	router := NewRouter(s)

	body, _ := json.Marshal(createAgentRequest{
		Name:         "demo-agent",
		Model:        "test-model",
		AgentTarPath: "/ctx/demo.tar",
	})
	req := httptest.NewRequest(http.MethodPost, "/agents/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createAgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	_, ok := agents.agents[resp.ID]
	assert.True(t, ok)
}

func TestCreateAgentRejectsMissingFields(t *testing.T) {
	s, _, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/agents/", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskRejectsUnknownAgent(t *testing.T) {
	s, _, _ := newTestServer(t)
	router := NewRouter(s)

	body, _ := json.Marshal(createTaskRequest{AgentID: "missing", Prompt: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAgentNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodDelete, "/agents/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
