package dispatch

import "time"

// ConnID identifies one live transport session.
// It is opaque to the dispatcher and replaced when a participant reconnects.
type ConnID string

type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusOffline   AgentStatus = "offline"
)

type CustomerStatus string

const (
	CustomerStatusWaiting CustomerStatus = "waiting"
	CustomerStatusInCall  CustomerStatus = "in-call"
)

type CallType string

const (
	CallTypeVideo CallType = "video"
	CallTypeAudio CallType = "audio"
)

// ParseCallType maps a client supplied call type onto a known one.
// Anything that is not "audio" is treated as a video call.
func ParseCallType(s string) CallType {
	if CallType(s) == CallTypeAudio {
		return CallTypeAudio
	}
	return CallTypeVideo
}

// Agent is a human operator able to take calls.
//
// Invariant: Status == busy if and only if CurrentCall is set and names a live
// Call that lists this agent. Only the Manager writes CurrentCall.
type Agent struct {
	ID     string
	Conn   ConnID
	PeerID string
	Name   string
	Status AgentStatus

	CurrentCall string
}

// Customer is one waiting or connected caller session.
// Ids are generated per session; a customer that reconnects rejoins from scratch.
type Customer struct {
	ID       string
	Conn     ConnID
	PeerID   string
	Name     string
	CallType CallType
	HasVideo bool
	HasAudio bool
	JoinedAt time.Time
	Status   CustomerStatus
}

// Participant is an agent's seat in a Call.
type Participant struct {
	AgentID string
	PeerID  string
}

// Call is an active session between one customer and one or more agents.
// Agents are only ever appended (conferencing); the call is removed when it ends.
type Call struct {
	ID             string
	CustomerID     string
	CustomerPeerID string
	Agents         []Participant
	StartedAt      time.Time
	Type           CallType

	// WaitSeconds is how long the customer queued before the call was accepted.
	WaitSeconds int
}

func (c *Call) hasAgent(agentID string) bool {
	for _, p := range c.Agents {
		if p.AgentID == agentID {
			return true
		}
	}
	return false
}

func (c *Call) agentIDs() []string {
	out := make([]string, 0, len(c.Agents))
	for _, p := range c.Agents {
		out = append(out, p.AgentID)
	}
	return out
}
