package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentware/agentctl/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestAgentRepositoryCreateDuplicateName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAgentRepository(db)

	mock.ExpectExec("INSERT INTO agents").
		WillReturnError(&mockPgError{code: "23505"})

	err := repo.Create(context.Background(), domain.Agent{ID: "a1", Name: "demo"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentRepositoryGetMissingReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAgentRepository(db)

	mock.ExpectQuery("SELECT (.|\n)* FROM agents WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	got, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAgentRepositoryGetFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAgentRepository(db)

	cols := []string{
		"id", "name", "description", "model", "instructions", "actions",
		"workflow_name", "workflow_queue_name", "docker_image", "status", "status_reason",
		"build_job_name", "build_job_namespace", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.|\n)* FROM agents WHERE id = \\$1").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"a1", "demo", "", "test-model", "be helpful", []byte("[]"),
			"build_agent", "agentctl-default", "", "Ready", "",
			"", "", time.Now(), time.Now(),
		))

	got, err := repo.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.AgentReady, got.Status)
	assert.Empty(t, got.Actions)
}

type mockPgError struct{ code string }

func (e *mockPgError) Error() string  { return "pg error " + e.code }
func (e *mockPgError) SQLState() string { return e.code }
