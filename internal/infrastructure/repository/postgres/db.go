package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	document_key TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	document_type TEXT NOT NULL,
	latest_revision INTEGER NOT NULL DEFAULT 0,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	is_indexable BOOLEAN NOT NULL DEFAULT FALSE,
	created_on TIMESTAMPTZ NOT NULL,
	updated_on TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	document_key TEXT NOT NULL,
	document_type TEXT NOT NULL,
	category TEXT NOT NULL,
	revision INTEGER NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	return_code TEXT NOT NULL DEFAULT '',
	docclass INTEGER NOT NULL DEFAULT 1,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	distribution JSONB NOT NULL DEFAULT '{}'::jsonb,
	review_start_date DATE,
	review_due_date DATE,
	reviewers_step_closed DATE,
	leader_step_closed DATE,
	review_end_date DATE,
	transmittal_id TEXT NOT NULL DEFAULT '',
	transmittal_sent_date DATE,
	external_review_due_date DATE,
	created_on TIMESTAMPTZ NOT NULL,
	updated_on TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, revision)
);

CREATE TABLE IF NOT EXISTS reviews (
	id TEXT PRIMARY KEY,
	reviewer_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	role TEXT NOT NULL,
	due_date DATE,
	docclass INTEGER NOT NULL DEFAULT 1,
	reviewed_on TIMESTAMPTZ,
	closed BOOLEAN NOT NULL DEFAULT FALSE,
	comments TEXT NOT NULL DEFAULT '',
	return_code TEXT NOT NULL DEFAULT '',
	UNIQUE (reviewer_id, document_id, revision, role)
);

CREATE INDEX IF NOT EXISTS idx_reviews_revision ON reviews(document_id, revision);

CREATE TABLE IF NOT EXISTS transmittals (
	id TEXT PRIMARY KEY,
	document_key TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL,
	contract TEXT NOT NULL,
	originator TEXT NOT NULL,
	recipient TEXT NOT NULL,
	sequential_number INTEGER NOT NULL,
	status TEXT NOT NULL,
	transmittal_date DATE NOT NULL,
	rejected_on TIMESTAMPTZ,
	created_on TIMESTAMPTZ NOT NULL,
	updated_on TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transmittals_sequence ON transmittals(contract, originator, recipient, sequential_number);

CREATE TABLE IF NOT EXISTS trs_revisions (
	id TEXT PRIMARY KEY,
	transmittal_id TEXT NOT NULL REFERENCES transmittals(id) ON DELETE CASCADE,
	line_number INTEGER NOT NULL,
	document_key TEXT NOT NULL,
	title TEXT NOT NULL,
	revision INTEGER NOT NULL,
	status TEXT NOT NULL,
	category TEXT NOT NULL,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	pdf_file TEXT NOT NULL,
	native_file TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	is_new_revision BOOLEAN NOT NULL,
	accepted BOOLEAN,
	comment TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	created_on TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outgoing_transmittals (
	id TEXT PRIMARY KEY,
	document_key TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL,
	contract TEXT NOT NULL,
	originator TEXT NOT NULL,
	recipient TEXT NOT NULL,
	sequential_number INTEGER NOT NULL,
	purpose_of_issue TEXT NOT NULL,
	transmittal_date DATE NOT NULL,
	created_on TIMESTAMPTZ NOT NULL,
	UNIQUE (contract, originator, recipient, sequential_number)
);

CREATE TABLE IF NOT EXISTS exported_revisions (
	id TEXT PRIMARY KEY,
	transmittal_id TEXT NOT NULL REFERENCES outgoing_transmittals(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	document_key TEXT NOT NULL,
	revision INTEGER NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	return_code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	state TEXT NOT NULL,
	progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS values_list_entries (
	id TEXT PRIMARY KEY,
	list_index INTEGER NOT NULL,
	value TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	UNIQUE (list_index, value)
);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL DEFAULT '',
	verb TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_target ON activities(target_type, target_id);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	body TEXT NOT NULL,
	seen BOOLEAN NOT NULL DEFAULT FALSE,
	created_on TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_on DESC);
`

const uniqueViolation = "23505"

// mapError converts driver errors into domain error kinds.
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrNotFound, operation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.WrapError(domain.ErrConflict, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// expectAffected returns ErrNotFound when an update touched no row.
func expectAffected(operation string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", operation, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, sql.ErrNoRows)
	}
	return nil
}
