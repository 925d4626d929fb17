// Package postgres implements the relational repositories for the agents
// and tasks tables (spec.md §6's persisted-state layout), using sqlx over
// the pgx/v5 stdlib driver, with schema migrations run at boot via goose.
// Grounded on jordigilh-kubernaut's repository style: a *sqlx.DB held by
// each repository, parameterized queries; optional text columns are
// NOT NULL with '' defaults and scan into plain strings.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to Postgres via the pgx stdlib driver and wraps the pool in
// sqlx for named-parameter queries and struct scanning.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return sqlx.NewDb(sqlDB, "pgx"), nil
}

// Migrate applies every pending migration embedded under migrations/.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: set dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
