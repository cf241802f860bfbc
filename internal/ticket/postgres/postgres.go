// Package postgres provides a best-effort ticket archive backed by
// PostgreSQL, used as a secondary sink alongside the JSON ledger.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guardline/guardline/internal/ticket"
)

// Schema is the SQL DDL for the tickets table. Execute it via
// [Archive.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS tickets (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    type        TEXT NOT NULL,
    occurred_at TEXT NOT NULL,
    message     TEXT NOT NULL DEFAULT '',
    frame       TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tickets_session ON tickets(session_id);
`

// DB is the database interface used by [Archive]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Archive is a ticket.Recorder backed by a PostgreSQL database.
type Archive struct {
	db DB
}

// Compile-time interface check.
var _ ticket.Recorder = (*Archive)(nil)

// NewArchive creates a new [Archive] over the given connection or pool. The
// caller is responsible for calling [Archive.Migrate] before recording.
func NewArchive(db DB) *Archive {
	return &Archive{db: db}
}

// Migrate executes the [Schema] DDL, creating the tickets table and index if
// they do not already exist.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Record implements ticket.Recorder.
func (a *Archive) Record(ctx context.Context, sessionID string, e ticket.Entry) error {
	const query = `
		INSERT INTO tickets (session_id, type, occurred_at, message, frame, details)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := a.db.Exec(ctx, query,
		sessionID, string(e.Type), e.Timestamp, e.Message, e.Frame, e.Details,
	); err != nil {
		return fmt.Errorf("postgres: record ticket: %w", err)
	}
	return nil
}

// List returns all archived entries for a session in insertion order.
func (a *Archive) List(ctx context.Context, sessionID string) ([]ticket.Entry, error) {
	const query = `
		SELECT type, occurred_at, message, frame, details
		FROM tickets
		WHERE session_id = $1
		ORDER BY id`

	rows, err := a.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tickets: %w", err)
	}
	defer rows.Close()

	var entries []ticket.Entry
	for rows.Next() {
		var e ticket.Entry
		var typ string
		if err := rows.Scan(&typ, &e.Timestamp, &e.Message, &e.Frame, &e.Details); err != nil {
			return nil, fmt.Errorf("postgres: list scan: %w", err)
		}
		e.Type = ticket.Type(typ)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tickets: %w", err)
	}
	return entries, nil
}
