package events

import (
	"time"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

// Meta describes a published lifecycle event.
type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Call the event belongs to, when there is one
	CorrelationID string `json:"correlation_id,omitempty"`
	// Event name and version, e.g. dispatch.call_ended.v1
	Type string `json:"type"`
	// Timestamp when the event happened
	Time time.Time `json:"time"`
	// Emitting service
	Producer string `json:"producer,omitempty"`
}

type Envelope struct {
	Meta Meta                    `json:"meta"`
	Data dispatch.LifecycleEvent `json:"data"`
}

const keyPrefix = "dispatch."

// RoutingKey maps a lifecycle type onto the topic exchange key,
// e.g. dispatch.call_ended. Consumers bind with dispatch.# or dispatch.call_*.
func RoutingKey(t dispatch.LifecycleEventType) string {
	return keyPrefix + string(t)
}

// NewEnvelope wraps e for publication.
func NewEnvelope(id, producer string, e dispatch.LifecycleEvent) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: e.CallID,
			Type:          RoutingKey(e.Type) + ".v1",
			Time:          e.At.UTC(),
			Producer:      producer,
		},
		Data: e,
	}
}
