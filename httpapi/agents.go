package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/internal/apperr"
	buildworkflow "github.com/agentware/agentctl/workflows/build"
)

// AgentStore is the subset of store/postgres's AgentRepository httpapi
// needs: Create (for registration) plus Get (for existence checks before
// delete).
type AgentStore interface {
	Create(ctx context.Context, agent domain.Agent) error
	Get(ctx context.Context, id string) (*domain.Agent, error)
	Delete(ctx context.Context, id string) error
}

type createAgentRequest struct {
	Name         string          `json:"name" validate:"required"`
	Description  string          `json:"description"`
	Model        string          `json:"model" validate:"required"`
	Instructions string          `json:"instructions"`
	Actions      []domain.Action `json:"actions"`
	AgentTarPath string          `json:"agent_tar_path" validate:"required"`
}

type createAgentResponse struct {
	ID     string             `json:"id"`
	Status domain.AgentStatus `json:"status"`
}

// createAgent inserts an Agent row and starts its Build Workflow with
// TerminateIfRunning, per spec.md §3's duplicate-policy table: re-uploading
// an agent supersedes an in-flight build.
func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) error {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "decode request body")
	}
	if err := s.Validator.Struct(req); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "invalid agent registration request")
	}

	agent := domain.Agent{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Description:       req.Description,
		Model:             req.Model,
		Instructions:      req.Instructions,
		Actions:           req.Actions,
		WorkflowName:      buildworkflow.Name,
		WorkflowQueueName: s.DefaultTaskQueue,
		Status:            domain.AgentPending,
	}
	if err := s.Agents.Create(r.Context(), agent); err != nil {
		return err
	}

	_, err := s.Engine.StartWorkflow(r.Context(), engine.WorkflowStartRequest{
		ID:               agent.ID,
		Workflow:         buildworkflow.Name,
		TaskQueue:        s.DefaultTaskQueue,
		DuplicatePolicy:  engine.TerminateIfRunning,
		ExecutionTimeout: s.ExecutionTimeout,
		Input: buildworkflow.Input{
			Agent:        agent,
			AgentTarPath: req.AgentTarPath,
			Namespace:    s.Namespace,
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "start build workflow for agent %s", agent.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(createAgentResponse{ID: agent.ID, Status: agent.Status})
}

// deleteAgent terminates any running Build Workflow for the agent, then
// removes the row. Terminate, not cancel: no teardown is appropriate for an
// agent the user is explicitly discarding.
func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	agent, err := s.Agents.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if agent == nil {
		return apperr.New(apperr.NotFound, "agent %s not found", id)
	}
	if err := s.Engine.TerminateWorkflow(r.Context(), id); err != nil && !errors.Is(err, engine.ErrNotFound) && apperr.KindOf(err) != apperr.NotFound {
		return apperr.Wrap(apperr.ServiceError, err, "terminate build workflow for agent %s", id)
	}
	if err := s.Agents.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
