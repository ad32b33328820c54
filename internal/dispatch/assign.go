package dispatch

import (
	"time"
)

// Assigner decides which agent should be offered the head of the queue.
//
// Return offer decision only. No side effects: the customer stays queued and
// the agent stays available until an explicit accept commits the call. Two
// offers for different customers can therefore reach the same agent, and an
// accept may arrive from an agent that was never offered the customer.
type Assigner struct {
	reg *Registry
	Now func() time.Time
}

// Offer is an advisory proposal of one waiting customer to one agent.
type Offer struct {
	AgentID string
	Conn    ConnID

	CustomerID   string
	CustomerName string
	CallType     CallType
	WaitSeconds  int
}

func NewAssigner(reg *Registry) *Assigner {
	return &Assigner{reg: reg, Now: time.Now}
}

// Next returns (offer, true) when the queue is non-empty and some agent is
// available. The first available agent in registration order is chosen.
func (a *Assigner) Next() (Offer, bool) {
	headID, ok := a.reg.Queue().Head()
	if !ok {
		return Offer{}, false
	}
	agent, ok := a.reg.FirstAvailable()
	if !ok {
		return Offer{}, false
	}
	c, ok := a.reg.Customer(headID)
	if !ok {
		return Offer{}, false
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return Offer{
		AgentID:      agent.ID,
		Conn:         agent.Conn,
		CustomerID:   c.ID,
		CustomerName: c.Name,
		CallType:     c.CallType,
		WaitSeconds:  waitSeconds(c.JoinedAt, now()),
	}, true
}
