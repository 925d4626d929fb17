package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/internal/apperr"
)

// AgentRepository implements activities.AgentRepository and the superset of
// row operations httpapi needs (Create, Delete) against the agents table.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository constructs an AgentRepository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// agentRow mirrors domain.Agent's db tags, with Actions marshaled to JSONB
// since domain.Agent excludes it from db scanning (db:"-") to keep the
// struct usable for both the API and storage layers without two structs.
type agentRow struct {
	domain.Agent
	ActionsJSON []byte `db:"actions"`
}

// Create inserts a new agent row. Returns apperr.DuplicateItem if name
// already exists; a repeated create is rejected, not treated as a no-op.
func (r *AgentRepository) Create(ctx context.Context, agent domain.Agent) error {
	actionsJSON, err := json.Marshal(agent.Actions)
	if err != nil {
		return apperr.Wrap(apperr.ClientError, err, "postgres: marshal agent actions")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, model, instructions, actions,
			workflow_name, workflow_queue_name, status, status_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		agent.ID, agent.Name, agent.Description, agent.Model, agent.Instructions, actionsJSON,
		agent.WorkflowName, agent.WorkflowQueueName, agent.Status, agent.StatusReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.DuplicateItem, err, "postgres: agent %s already exists", agent.Name)
		}
		return apperr.Wrap(apperr.ServiceError, err, "postgres: create agent")
	}
	return nil
}

// Get returns the agent row by ID, or (nil, nil) on a miss — callers
// translate a nil result to apperr.NotFound at the boundary that needs it,
// per spec.md §7's optional-result convention.
func (r *AgentRepository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	var row agentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, description, model, instructions, actions,
			workflow_name, workflow_queue_name, docker_image, status, status_reason,
			build_job_name, build_job_namespace, created_at, updated_at
		FROM agents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "postgres: get agent %s", id)
	}
	if err := json.Unmarshal(row.ActionsJSON, &row.Agent.Actions); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "postgres: unmarshal agent %s actions", id)
	}
	return &row.Agent, nil
}

// Update overwrites every mutable column of an existing agent row. Never
// returns NotFound on a missing row by itself; callers that need that
// distinction call Get first, matching the Activity Layer's own
// load-then-save pattern in activities.UpdateAgentStatus.
func (r *AgentRepository) Update(ctx context.Context, agent domain.Agent) error {
	actionsJSON, err := json.Marshal(agent.Actions)
	if err != nil {
		return apperr.Wrap(apperr.ClientError, err, "postgres: marshal agent actions")
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE agents SET
			name = $2, description = $3, model = $4, instructions = $5, actions = $6,
			docker_image = $7, status = $8, status_reason = $9,
			build_job_name = $10, build_job_namespace = $11, updated_at = now()
		WHERE id = $1`,
		agent.ID, agent.Name, agent.Description, agent.Model, agent.Instructions, actionsJSON,
		agent.DockerImage, agent.Status, agent.StatusReason,
		agent.BuildJobName, agent.BuildJobNamespace,
	)
	if err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "postgres: update agent %s", agent.ID)
	}
	return nil
}

// Delete removes an agent row. Tolerates a missing row (no-op success),
// matching spec.md §7's idempotent-delete activity contract.
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "postgres: delete agent %s", id)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the code pgx surfaces for a duplicate-key insert.
func isUniqueViolation(err error) bool {
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	return errors.As(err, &s) && s.SQLState() == "23505"
}
