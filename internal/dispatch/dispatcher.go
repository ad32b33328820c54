package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Inbound event names.
const (
	EventCustomerJoin   = "customer:join"
	EventCustomerCancel = "customer:cancel"
	EventAgentRegister  = "agent:register"
	EventAgentStatus    = "agent:status"
	EventAgentAccept    = "agent:accept"
	EventCallAddAgent   = "call:add-agent"
	EventCallEnd        = "call:end"
)

// AgentIdentity is what an agent token resolves to.
type AgentIdentity struct {
	AgentID string
	Name    string
}

// AgentAuthenticator verifies the token presented on agent:register.
type AgentAuthenticator interface {
	AuthenticateAgent(token string) (AgentIdentity, error)
}

// Dispatcher is the entry point for transport events. It remembers which
// customer and agent each connection speaks for and runs every event to
// completion under a single lock, so state transitions never interleave.
type Dispatcher struct {
	mu       sync.Mutex
	mgr      *Manager
	sessions map[ConnID]*session
	auth     AgentAuthenticator
}

type session struct {
	customerID string
	agentID    string
}

type joinPayload struct {
	PeerID   string `json:"peerId"`
	Name     string `json:"name"`
	CallType string `json:"callType"`
	HasVideo *bool  `json:"hasVideo"`
	HasAudio *bool  `json:"hasAudio"`
}

type registerPayload struct {
	AgentID string `json:"agentId"`
	PeerID  string `json:"peerId"`
	Name    string `json:"name"`
	Token   string `json:"token"`
}

type statusPayload struct {
	Status AgentStatus `json:"status"`
}

type acceptPayload struct {
	CustomerID string `json:"customerId"`
}

type addAgentPayload struct {
	CallID        string `json:"callId"`
	TargetAgentID string `json:"targetAgentId"`
}

type endPayload struct {
	CallID string `json:"callId"`
}

// NewDispatcher wraps mgr. auth may be nil, in which case agents are trusted
// to name themselves.
func NewDispatcher(mgr *Manager, auth AgentAuthenticator) *Dispatcher {
	return &Dispatcher{mgr: mgr, sessions: make(map[ConnID]*session), auth: auth}
}

// Handle applies one inbound event from conn. The returned error explains why
// a request was dropped; callers log it and stay silent towards the client.
func (d *Dispatcher) Handle(_ context.Context, conn ConnID, event string, data json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.session(conn)
	switch event {
	case EventCustomerJoin:
		var p joinPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		if s.customerID != "" {
			if c, ok := d.mgr.reg.Customer(s.customerID); ok && c.Conn == conn {
				d.cleanupFailed(conn, "replace customer", d.mgr.leaveCustomer(s.customerID, EndReasonCustomerRejoined))
			}
		}
		c, err := d.mgr.Join(JoinRequest{
			Conn:     conn,
			PeerID:   p.PeerID,
			Name:     p.Name,
			CallType: p.CallType,
			HasVideo: p.HasVideo,
			HasAudio: p.HasAudio,
		})
		if err != nil {
			return err
		}
		s.customerID = c.ID
		return nil

	case EventCustomerCancel:
		if s.customerID == "" {
			return fmt.Errorf("%w: connection has no customer", ErrNotFound)
		}
		if err := d.mgr.Cancel(s.customerID); err != nil {
			return err
		}
		s.customerID = ""
		return nil

	case EventAgentRegister:
		var p registerPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		if d.auth != nil {
			id, err := d.auth.AuthenticateAgent(p.Token)
			if err != nil {
				return fmt.Errorf("%w: agent token: %v", ErrInvalidArgument, err)
			}
			p.AgentID = id.AgentID
			if p.Name == "" {
				p.Name = id.Name
			}
		}
		if s.agentID != "" && s.agentID != p.AgentID {
			if a, ok := d.mgr.reg.Agent(s.agentID); ok && a.Conn == conn {
				d.cleanupFailed(conn, "replace agent", d.mgr.DisconnectAgent(s.agentID))
			}
		}
		a, err := d.mgr.RegisterAgent(RegisterRequest{Conn: conn, AgentID: p.AgentID, PeerID: p.PeerID, Name: p.Name})
		if err != nil {
			return err
		}
		s.agentID = a.ID
		return nil

	case EventAgentStatus:
		var p statusPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		if s.agentID == "" {
			return fmt.Errorf("%w: connection has no agent", ErrNotFound)
		}
		return d.mgr.SetAgentStatus(s.agentID, p.Status)

	case EventAgentAccept:
		var p acceptPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		if s.agentID == "" {
			return fmt.Errorf("%w: connection has no agent", ErrNotFound)
		}
		_, err := d.mgr.Accept(s.agentID, p.CustomerID)
		return err

	case EventCallAddAgent:
		var p addAgentPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return d.mgr.AddAgent(p.CallID, p.TargetAgentID)

	case EventCallEnd:
		var p endPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return d.mgr.End(p.CallID)

	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidArgument, event)
	}
}

// Disconnect reconciles state after conn dropped. A participant that has
// already re-registered on another connection is left alone.
func (d *Dispatcher) Disconnect(_ context.Context, conn ConnID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[conn]
	if !ok {
		return nil
	}
	delete(d.sessions, conn)

	var firstErr error
	if s.customerID != "" {
		if c, ok := d.mgr.reg.Customer(s.customerID); ok && c.Conn == conn {
			if err := d.mgr.DisconnectCustomer(s.customerID); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if s.agentID != "" {
		if a, ok := d.mgr.reg.Agent(s.agentID); ok && a.Conn == conn {
			if err := d.mgr.DisconnectAgent(s.agentID); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// QueueInfo is the read-only queue view.
func (d *Dispatcher) QueueInfo() QueueInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.QueueInfo()
}

// Agents is the read-only roster view.
func (d *Dispatcher) Agents() []AgentView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.Agents()
}

// Stats reports live counters.
type Stats struct {
	Waiting         int `json:"waiting"`
	AvailableAgents int `json:"availableAgents"`
	ActiveCalls     int `json:"activeCalls"`
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Waiting:         d.mgr.reg.Queue().Len(),
		AvailableAgents: d.mgr.reg.AvailableAgents(),
		ActiveCalls:     d.mgr.reg.ActiveCalls(),
	}
}

// cleanupFailed logs an error from tearing down a previous binding; the new
// request still proceeds.
func (d *Dispatcher) cleanupFailed(conn ConnID, op string, err error) {
	if err != nil {
		d.mgr.log.Debug("binding cleanup failed", "conn_id", conn, "op", op, "err", err)
	}
}

func (d *Dispatcher) session(conn ConnID) *session {
	s, ok := d.sessions[conn]
	if !ok {
		s = &session{}
		d.sessions[conn] = s
	}
	return s
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}
