package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/internal/apperr"
	taskworkflow "github.com/agentware/agentctl/workflows/task"
)

// TaskStore is the subset of store/postgres's TaskRepository httpapi needs.
type TaskStore interface {
	Create(ctx context.Context, task domain.Task) error
	Get(ctx context.Context, id string) (*domain.Task, error)
}

type createTaskRequest struct {
	AgentID         string `json:"agent_id" validate:"required"`
	Prompt          string `json:"prompt" validate:"required"`
	RequireApproval bool   `json:"require_approval"`
}

type createTaskResponse struct {
	ID     string            `json:"id"`
	Status domain.TaskStatus `json:"status"`
}

// createTask inserts a Task row and starts its Task Workflow with
// RejectDuplicate, per spec.md §3: a task ID is single-run.
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) error {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "decode request body")
	}
	if err := s.Validator.Struct(req); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "invalid task submission request")
	}

	agent, err := s.Agents.Get(r.Context(), req.AgentID)
	if err != nil {
		return err
	}
	if agent == nil {
		return apperr.New(apperr.ClientError, "agent %s does not exist", req.AgentID)
	}

	task := domain.Task{
		ID:              uuid.NewString(),
		AgentID:         req.AgentID,
		Prompt:          req.Prompt,
		RequireApproval: req.RequireApproval,
		Status:          domain.TaskPending,
	}
	if err := s.Tasks.Create(r.Context(), task); err != nil {
		return err
	}

	_, err = s.Engine.StartWorkflow(r.Context(), engine.WorkflowStartRequest{
		ID:               task.ID,
		Workflow:         taskworkflow.Name,
		TaskQueue:        agent.WorkflowQueueName,
		DuplicatePolicy:  engine.RejectDuplicate,
		ExecutionTimeout: s.ExecutionTimeout,
		TaskTimeout:      s.TaskTimeout,
		Input: taskworkflow.Input{
			Task:            task,
			Agent:           *agent,
			RequireApproval: req.RequireApproval,
			Namespace:       s.Namespace,
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "start task workflow for task %s", task.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(createTaskResponse{ID: task.ID, Status: task.Status})
}

type taskStatusResponse struct {
	ID         string        `json:"id"`
	Status     engine.Status `json:"status"`
	IsTerminal bool          `json:"is_terminal"`
	Reason     string        `json:"reason,omitempty"`
}

// getTask reads through to the owning workflow's live status, per spec.md
// §7, rather than the last value persisted to the tasks row.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	task, err := s.Tasks.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if task == nil {
		return apperr.New(apperr.NotFound, "task %s not found", id)
	}
	status, err := s.Engine.GetWorkflowStatus(r.Context(), id)
	if err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "get workflow status for task %s", id)
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(taskStatusResponse{
		ID:         id,
		Status:     status.Status,
		IsTerminal: status.IsTerminal,
		Reason:     status.Reason,
	})
}

// approveTask delivers the approve signal, clearing the human-in-the-loop
// gate a Task Workflow entered because require_approval was set.
func (s *Server) approveTask(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.Engine.SendSignal(r.Context(), id, taskworkflow.SignalApprove, nil); err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "signal approve for task %s", id)
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

type instructTaskRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// instructTask delivers an instruct signal: additional human guidance
// appended to conversational state without approving the pending action.
func (s *Server) instructTask(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	var req instructTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "decode request body")
	}
	if err := s.Validator.Struct(req); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "invalid instruct request")
	}
	payload := taskworkflow.HumanInstruction{TaskID: id, Prompt: req.Prompt}
	if err := s.Engine.SendSignal(r.Context(), id, taskworkflow.SignalInstruct, payload); err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "signal instruct for task %s", id)
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

// cancelTask requests cooperative cancellation, per spec.md §5.8: the
// workflow runs teardown (mark Agent Idle) and ends Canceled rather than
// whatever a forceful terminate would leave behind.
func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.Engine.CancelWorkflow(r.Context(), id); err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "cancel task %s", id)
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}
