package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/pkg/utils"
)

// Schema creates the audit_events table. Rows are insert-only.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id          UUID PRIMARY KEY,
  type        TEXT NOT NULL,
  customer_id TEXT NOT NULL DEFAULT '',
  agent_id    TEXT NOT NULL DEFAULT '',
  call_id     TEXT NOT NULL DEFAULT '',
  message     TEXT NOT NULL DEFAULT '',
  metadata    JSONB,
  created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_created_at_idx ON audit_events (created_at);
`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, r.db, Schema); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, customer_id, agent_id, call_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	var metadata sql.NullString
	if e.Metadata != "" {
		metadata = sql.NullString{String: e.Metadata, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.CustomerID,
		e.AgentID,
		e.CallID,
		e.Message,
		metadata,
		e.CreatedAt,
	)
	return err
}
