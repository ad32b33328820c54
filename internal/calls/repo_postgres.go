package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/pkg/utils"
)

// Schema creates the call_records table. Rows are insert-only.
const Schema = `
CREATE TABLE IF NOT EXISTS call_records (
  call_id     TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  agent_ids   JSONB NOT NULL,
  call_type   TEXT NOT NULL,
  started_at  TIMESTAMPTZ NOT NULL,
  ended_at    TIMESTAMPTZ NOT NULL,
  duration    INT NOT NULL,
  wait        INT NOT NULL,
  end_reason  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS call_records_ended_at_idx ON call_records (ended_at);
`

// PostgresRepo stores call records through database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, r.db, Schema); err != nil {
		return fmt.Errorf("calls: ensure schema: %w", err)
	}
	return nil
}

// Save inserts rec. Saving the same call twice is a no-op.
func (r *PostgresRepo) Save(ctx context.Context, rec Record) error {
	agents, err := json.Marshal(rec.AgentIDs)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO call_records (
  call_id, customer_id, agent_ids, call_type, started_at, ended_at, duration, wait, end_reason
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (call_id) DO NOTHING
`
	_, err = r.db.ExecContext(ctx, q,
		rec.CallID,
		rec.CustomerID,
		string(agents),
		string(rec.Type),
		rec.StartedAt,
		rec.EndedAt,
		rec.DurationSeconds,
		rec.WaitSeconds,
		string(rec.EndReason),
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, from, to time.Time) ([]Record, error) {
	const q = `
SELECT call_id, customer_id, agent_ids, call_type, started_at, ended_at, duration, wait, end_reason
FROM call_records
WHERE ($1::timestamptz IS NULL OR ended_at >= $1)
  AND ($2::timestamptz IS NULL OR ended_at < $2)
ORDER BY ended_at
`
	rows, err := r.db.QueryContext(ctx, q, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec    Record
			agents []byte
		)
		if err := rows.Scan(
			&rec.CallID,
			&rec.CustomerID,
			&agents,
			&rec.Type,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.DurationSeconds,
			&rec.WaitSeconds,
			&rec.EndReason,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(agents, &rec.AgentIDs); err != nil {
			return nil, fmt.Errorf("calls: decode agent_ids for %s: %w", rec.CallID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
