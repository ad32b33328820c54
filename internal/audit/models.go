package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; dispatching never waits on it.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Target identifiers, set depending on Type.
	CustomerID string `json:"customer_id,omitempty" db:"customer_id"`
	AgentID    string `json:"agent_id,omitempty" db:"agent_id"`
	CallID     string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON with the full event.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventType mirrors the dispatcher lifecycle event names.
type EventType string
