package dispatch

import (
	"iter"
	"time"
)

// Registry is the dispatcher's entire mutable state: agents, customers, the
// call table and the queue. It is a plain container; the Manager owns it and is
// the only writer of the denormalized fields (Agent.CurrentCall, Customer.Status).
// It is not safe for concurrent use.
type Registry struct {
	agents     map[string]*Agent
	agentOrder []string

	customers map[string]*Customer

	calls     map[string]*Call
	callOrder []string

	queue *Queue
}

func NewRegistry() *Registry {
	return &Registry{
		agents:    make(map[string]*Agent),
		customers: make(map[string]*Customer),
		calls:     make(map[string]*Call),
		queue:     NewQueue(),
	}
}

// QueueEntry is the public view of one waiting customer.
type QueueEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CallType    CallType `json:"callType"`
	Position    int      `json:"position"`
	WaitSeconds int      `json:"waitTime"`
}

// AgentView is the public roster view of one agent.
type AgentView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      AgentStatus `json:"status"`
	PeerID      string      `json:"peerId,omitempty"`
	CurrentCall string      `json:"currentCall,omitempty"`
}

// --- agents ---

// RegisterAgent upserts a by id. A known id keeps its registration-order slot.
func (r *Registry) RegisterAgent(a *Agent) {
	if _, ok := r.agents[a.ID]; !ok {
		r.agentOrder = append(r.agentOrder, a.ID)
	}
	r.agents[a.ID] = a
}

func (r *Registry) Agent(id string) (*Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// SetAgentStatus updates the status of a known agent. Unknown ids are a no-op
// reported as ErrNotFound.
func (r *Registry) SetAgentStatus(id string, status AgentStatus) error {
	a, ok := r.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

// FirstAvailable returns the earliest registered available agent.
func (r *Registry) FirstAvailable() (*Agent, bool) {
	for _, id := range r.agentOrder {
		if a := r.agents[id]; a.Status == AgentStatusAvailable {
			return a, true
		}
	}
	return nil, false
}

func (r *Registry) RemoveAgent(id string) {
	if _, ok := r.agents[id]; !ok {
		return
	}
	delete(r.agents, id)
	r.agentOrder = removeString(r.agentOrder, id)
}

func (r *Registry) AvailableAgents() int {
	n := 0
	for _, a := range r.agents {
		if a.Status == AgentStatusAvailable {
			n++
		}
	}
	return n
}

// Agents returns the roster in registration order.
func (r *Registry) Agents() []AgentView {
	out := make([]AgentView, 0, len(r.agentOrder))
	for _, id := range r.agentOrder {
		a := r.agents[id]
		out = append(out, AgentView{ID: a.ID, Name: a.Name, Status: a.Status, PeerID: a.PeerID, CurrentCall: a.CurrentCall})
	}
	return out
}

// --- customers ---

func (r *Registry) AddCustomer(c *Customer) { r.customers[c.ID] = c }

func (r *Registry) Customer(id string) (*Customer, bool) {
	c, ok := r.customers[id]
	return c, ok
}

func (r *Registry) RemoveCustomer(id string) { delete(r.customers, id) }

// --- calls ---

func (r *Registry) AddCall(c *Call) {
	if _, ok := r.calls[c.ID]; !ok {
		r.callOrder = append(r.callOrder, c.ID)
	}
	r.calls[c.ID] = c
}

func (r *Registry) Call(id string) (*Call, bool) {
	c, ok := r.calls[id]
	return c, ok
}

// CallByCustomer scans the call table for the call serving customerID.
func (r *Registry) CallByCustomer(customerID string) (*Call, bool) {
	for _, id := range r.callOrder {
		if c := r.calls[id]; c.CustomerID == customerID {
			return c, true
		}
	}
	return nil, false
}

func (r *Registry) RemoveCall(id string) {
	if _, ok := r.calls[id]; !ok {
		return
	}
	delete(r.calls, id)
	r.callOrder = removeString(r.callOrder, id)
}

func (r *Registry) ActiveCalls() int { return len(r.calls) }

// --- queue ---

func (r *Registry) Queue() *Queue { return r.queue }

// QueueSnapshot yields the queue in order. The sequence reads live state on
// every iteration, so it can be ranged over more than once.
func (r *Registry) QueueSnapshot(now time.Time) iter.Seq[QueueEntry] {
	return func(yield func(QueueEntry) bool) {
		for i, id := range r.queue.ids {
			c, ok := r.customers[id]
			if !ok {
				continue
			}
			e := QueueEntry{
				ID:          c.ID,
				Name:        c.Name,
				CallType:    c.CallType,
				Position:    i + 1,
				WaitSeconds: waitSeconds(c.JoinedAt, now),
			}
			if !yield(e) {
				return
			}
		}
	}
}

func waitSeconds(joined, now time.Time) int {
	d := now.Sub(joined)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
