package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/internal/apperr"
)

// TaskRepository implements activities.TaskRepository plus the Create/Get
// operations httpapi needs against the tasks table.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs a TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task row, owned by agentID.
func (r *TaskRepository) Create(ctx context.Context, task domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, agent_id, prompt, require_approval, status, status_reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, task.AgentID, task.Prompt, task.RequireApproval, task.Status, task.StatusReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.DuplicateItem, err, "postgres: task %s already exists", task.ID)
		}
		return apperr.Wrap(apperr.ServiceError, err, "postgres: create task")
	}
	return nil
}

// Get returns the task row by ID, or (nil, nil) on a miss.
func (r *TaskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.GetContext(ctx, &task, `
		SELECT id, agent_id, prompt, require_approval, status, status_reason, created_at, updated_at
		FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "postgres: get task %s", id)
	}
	return &task, nil
}

// UpdateStatus read-through updates a task's terminal status and reason,
// per spec.md §7's read-through status propagation from the owning
// workflow's engine.Status.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, status_reason = $3, updated_at = now() WHERE id = $1`,
		id, status, reason,
	)
	if err != nil {
		return apperr.Wrap(apperr.ServiceError, err, "postgres: update task %s status", id)
	}
	return nil
}
