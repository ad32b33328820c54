package calls

import (
	"time"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

// Record is the immutable summary of one finished call.
//
// Records are written once, when the call ends, and never updated. AgentIDs
// lists every agent that took part, in join order; more than one means the
// call was conferenced.
type Record struct {
	CallID     string `json:"call_id" db:"call_id"`
	CustomerID string `json:"customer_id" db:"customer_id"`

	AgentIDs []string          `json:"agent_ids" db:"agent_ids"`
	Type     dispatch.CallType `json:"call_type" db:"call_type"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`

	DurationSeconds int `json:"duration" db:"duration"`
	// WaitSeconds is the time the customer spent queued before being accepted.
	WaitSeconds int `json:"wait" db:"wait"`

	EndReason dispatch.EndReason `json:"end_reason" db:"end_reason"`
}

// Conference reports whether more than one agent joined.
func (r Record) Conference() bool { return len(r.AgentIDs) > 1 }

// FromEvent builds a record from a call_ended lifecycle event.
func FromEvent(e dispatch.LifecycleEvent) Record {
	ended := e.At.UTC()
	started := e.StartedAt.UTC()
	dur := 0
	if !started.IsZero() && ended.After(started) {
		dur = int(ended.Sub(started) / time.Second)
	}
	return Record{
		CallID:          e.CallID,
		CustomerID:      e.CustomerID,
		AgentIDs:        append([]string(nil), e.AgentIDs...),
		Type:            e.CallType,
		StartedAt:       started,
		EndedAt:         ended,
		DurationSeconds: dur,
		WaitSeconds:     e.WaitSeconds,
		EndReason:       e.Reason,
	}
}
