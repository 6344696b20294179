// Package store holds the persistence adapters behind the engine's audit
// ports: a Postgres-backed FailedCredit store and a JSON-file round history.
// Both are optional collaborators; the engine runs without them wired.
package store

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a pooled Postgres connection from a DSN. Uses the simple
// query protocol so connection poolers (PgBouncer and friends) don't choke on
// server-side prepared statements.
func OpenDB(dsn string) (*sql.DB, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	db := stdlib.OpenDB(*config)
	db.SetConnMaxIdleTime(4 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
