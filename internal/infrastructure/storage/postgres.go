package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code raised on a unique
// constraint hit. Concurrent ingestion of the same publication lands
// here and is folded into "already existed".
const uniqueViolation = "23505"

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables and indexes when missing. Statements
// are idempotent so startup is safe against an already-provisioned
// database.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id                 BIGSERIAL PRIMARY KEY,
			name               TEXT NOT NULL,
			national_id        TEXT NOT NULL DEFAULT '',
			court_filter       TEXT NOT NULL DEFAULT '',
			active             BOOLEAN NOT NULL DEFAULT TRUE,
			check_interval_sec BIGINT NOT NULL,
			last_check         TIMESTAMPTZ,
			next_check         TIMESTAMPTZ,
			record_count       INTEGER NOT NULL DEFAULT 0,
			reference_process  TEXT NOT NULL DEFAULT '',
			expires_at         TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (name, national_id)
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id          BIGSERIAL PRIMARY KEY,
			entity_id   BIGINT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			hash        TEXT NOT NULL UNIQUE,
			source_id   TEXT NOT NULL DEFAULT '',
			court       TEXT NOT NULL DEFAULT '',
			process     TEXT NOT NULL DEFAULT '',
			venue       TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL DEFAULT '',
			pub_date    TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL DEFAULT '',
			full_text   TEXT NOT NULL DEFAULT '',
			link        TEXT NOT NULL DEFAULT '',
			claimants   TEXT[] NOT NULL DEFAULT '{}',
			respondents TEXT[] NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS records_entity_date ON records (entity_id, pub_date DESC)`,
		`CREATE INDEX IF NOT EXISTS records_created ON records (created_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id                 BIGSERIAL PRIMARY KEY,
			entity_id          BIGINT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			record_id          BIGINT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
			kind               TEXT NOT NULL,
			title              TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			is_read            BOOLEAN NOT NULL DEFAULT FALSE,
			read_at            TIMESTAMPTZ,
			delivered_telegram BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_email    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS alerts_one_opportunity_per_record
			ON alerts (record_id) WHERE kind = 'CREDIT_OPPORTUNITY'`,
		`CREATE INDEX IF NOT EXISTS alerts_entity_unread ON alerts (entity_id) WHERE NOT is_read`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
