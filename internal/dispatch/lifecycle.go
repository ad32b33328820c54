package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	defaultWaitMinutesPerPosition = 3
	defaultCustomerName           = "Kunde"
	defaultAgentName              = "Mitarbeiter"
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	// WaitMinutesPerPosition drives the estimated wait announced on join.
	WaitMinutesPerPosition int
	DefaultCustomerName    string
	DefaultAgentName       string

	Observer Observer
	Logger   *slog.Logger

	Now   func() time.Time
	NewID func() string
}

// Manager owns the Registry and performs every state transition of the
// customer/agent/call lifecycle. It is not safe for concurrent use; the
// Dispatcher serializes access.
type Manager struct {
	reg      *Registry
	assigner *Assigner
	notify   Notifier
	observer Observer
	log      *slog.Logger

	waitPerPosition int
	customerName    string
	agentName       string

	now   func() time.Time
	newID func() string
}

func NewManager(reg *Registry, notifier Notifier, opts Options) *Manager {
	m := &Manager{
		reg:             reg,
		notify:          notifier,
		observer:        opts.Observer,
		log:             opts.Logger,
		waitPerPosition: opts.WaitMinutesPerPosition,
		customerName:    opts.DefaultCustomerName,
		agentName:       opts.DefaultAgentName,
		now:             opts.Now,
		newID:           opts.NewID,
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.waitPerPosition <= 0 {
		m.waitPerPosition = defaultWaitMinutesPerPosition
	}
	if m.customerName == "" {
		m.customerName = defaultCustomerName
	}
	if m.agentName == "" {
		m.agentName = defaultAgentName
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	m.assigner = NewAssigner(reg)
	m.assigner.Now = m.now
	return m
}

// JoinRequest is a customer asking to be queued.
type JoinRequest struct {
	Conn     ConnID
	PeerID   string
	Name     string
	CallType string
	// HasVideo and HasAudio default to true when nil.
	HasVideo *bool
	HasAudio *bool
}

// Join creates a waiting customer at the tail of the queue.
func (m *Manager) Join(req JoinRequest) (*Customer, error) {
	if req.PeerID == "" {
		return nil, fmt.Errorf("%w: peer id required", ErrInvalidArgument)
	}
	c := &Customer{
		ID:       m.newID(),
		Conn:     req.Conn,
		PeerID:   req.PeerID,
		Name:     orDefault(req.Name, m.customerName),
		CallType: ParseCallType(req.CallType),
		HasVideo: req.HasVideo == nil || *req.HasVideo,
		HasAudio: req.HasAudio == nil || *req.HasAudio,
		JoinedAt: m.now(),
		Status:   CustomerStatusWaiting,
	}
	m.reg.AddCustomer(c)
	position := m.reg.Queue().Enqueue(c.ID)

	m.notify.Join(req.Conn, RoomCustomers)
	m.send(c.Conn, EventCustomerQueued, CustomerQueued{
		CustomerID:    c.ID,
		Position:      position,
		EstimatedWait: position * m.waitPerPosition,
	})
	m.emit(LifecycleEvent{Type: LifecycleCustomerJoined, CustomerID: c.ID, CallType: c.CallType})
	m.log.Info("customer queued", "customer_id", c.ID, "position", position, "call_type", c.CallType)

	m.broadcastQueue()
	m.TryAssign()
	return c, nil
}

// Cancel takes a waiting customer out of the queue and forgets it.
func (m *Manager) Cancel(customerID string) error {
	c, ok := m.reg.Customer(customerID)
	if !ok {
		return fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	if c.Status != CustomerStatusWaiting {
		return fmt.Errorf("%w: customer %s is %s", ErrInvalidState, customerID, c.Status)
	}
	m.dequeue(customerID)
	m.reg.RemoveCustomer(customerID)
	m.emit(LifecycleEvent{Type: LifecycleCustomerCancelled, CustomerID: customerID})
	m.log.Info("customer cancelled", "customer_id", customerID)

	m.broadcastQueue()
	return nil
}

// RegisterRequest is an agent announcing availability.
type RegisterRequest struct {
	Conn    ConnID
	AgentID string
	PeerID  string
	Name    string
}

// RegisterAgent upserts an available agent. Re-registering an id that is
// still in a call ends that call first.
func (m *Manager) RegisterAgent(req RegisterRequest) (*Agent, error) {
	id := req.AgentID
	if id == "" {
		id = m.newID()
	}
	if prev, ok := m.reg.Agent(id); ok && prev.CurrentCall != "" {
		if err := m.endCall(prev.CurrentCall, EndReasonAgentReregistered, false); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	a := &Agent{
		ID:     id,
		Conn:   req.Conn,
		PeerID: req.PeerID,
		Name:   orDefault(req.Name, m.agentName),
		Status: AgentStatusAvailable,
	}
	m.reg.RegisterAgent(a)

	m.notify.Join(req.Conn, RoomAgents)
	m.send(a.Conn, EventAgentRegistered, AgentRegistered{AgentID: a.ID, Queue: m.QueueInfo()})
	m.emit(LifecycleEvent{Type: LifecycleAgentRegistered, AgentID: a.ID, AgentName: a.Name, Status: a.Status})
	m.log.Info("agent registered", "agent_id", a.ID)

	m.broadcastAgents()
	m.TryAssign()
	return a, nil
}

// SetAgentStatus lets an idle agent switch between available and offline.
// Busy is owned by the call lifecycle and cannot be set directly.
func (m *Manager) SetAgentStatus(agentID string, status AgentStatus) error {
	a, ok := m.reg.Agent(agentID)
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
	}
	if status != AgentStatusAvailable && status != AgentStatusOffline {
		return fmt.Errorf("%w: status %q", ErrInvalidArgument, status)
	}
	if a.CurrentCall != "" {
		return fmt.Errorf("%w: agent %s is in call %s", ErrInvalidState, agentID, a.CurrentCall)
	}
	if err := m.reg.SetAgentStatus(agentID, status); err != nil {
		return err
	}
	m.emit(LifecycleEvent{Type: LifecycleAgentStatus, AgentID: agentID, Status: status})

	m.broadcastAgents()
	if status == AgentStatusAvailable {
		m.TryAssign()
	}
	return nil
}

// Accept commits an offer: it creates the call, marks the agent busy and the
// customer in-call, and takes the customer out of the queue.
func (m *Manager) Accept(agentID, customerID string) (*Call, error) {
	c, ok := m.reg.Customer(customerID)
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	if c.Status != CustomerStatusWaiting {
		return nil, fmt.Errorf("%w: customer %s is %s", ErrInvalidState, customerID, c.Status)
	}
	a, ok := m.reg.Agent(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
	}
	if a.Status != AgentStatusAvailable {
		return nil, fmt.Errorf("%w: agent %s is %s", ErrInvalidState, agentID, a.Status)
	}

	now := m.now()
	call := &Call{
		ID:             m.newID(),
		CustomerID:     c.ID,
		CustomerPeerID: c.PeerID,
		Agents:         []Participant{{AgentID: a.ID, PeerID: a.PeerID}},
		StartedAt:      now,
		Type:           c.CallType,
		WaitSeconds:    waitSeconds(c.JoinedAt, now),
	}

	a.Status = AgentStatusBusy
	a.CurrentCall = call.ID
	c.Status = CustomerStatusInCall
	m.dequeue(c.ID)
	m.reg.AddCall(call)

	m.send(a.Conn, EventCallStart, CallStart{
		CallID:           call.ID,
		CustomerPeerID:   c.PeerID,
		CustomerName:     c.Name,
		CallType:         c.CallType,
		CustomerHasVideo: c.HasVideo,
		CustomerHasAudio: c.HasAudio,
	})
	m.send(c.Conn, EventCallConnected, CallConnected{
		CallID:      call.ID,
		AgentPeerID: a.PeerID,
		AgentName:   a.Name,
	})
	m.emit(LifecycleEvent{
		Type:        LifecycleCallStarted,
		CallID:      call.ID,
		CustomerID:  c.ID,
		AgentID:     a.ID,
		AgentIDs:    call.agentIDs(),
		CallType:    call.Type,
		StartedAt:   call.StartedAt,
		WaitSeconds: call.WaitSeconds,
	})
	m.log.Info("call started", "call_id", call.ID, "agent_id", a.ID, "customer_id", c.ID, "wait_seconds", call.WaitSeconds)

	m.broadcastQueue()
	m.broadcastAgents()
	return call, nil
}

// AddAgent conferences an available agent into an active call. The new agent
// receives every existing peer address; every existing participant receives
// the new one.
func (m *Manager) AddAgent(callID, targetAgentID string) error {
	call, ok := m.reg.Call(callID)
	if !ok {
		return fmt.Errorf("%w: call %s", ErrNotFound, callID)
	}
	target, ok := m.reg.Agent(targetAgentID)
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrNotFound, targetAgentID)
	}
	if target.Status != AgentStatusAvailable {
		return fmt.Errorf("%w: agent %s is %s", ErrInvalidState, targetAgentID, target.Status)
	}

	existing := slices.Clone(call.Agents)
	target.Status = AgentStatusBusy
	target.CurrentCall = call.ID
	call.Agents = append(call.Agents, Participant{AgentID: target.ID, PeerID: target.PeerID})

	peers := make([]string, 0, len(existing))
	for _, p := range existing {
		peers = append(peers, p.PeerID)
	}
	m.send(target.Conn, EventCallJoin, CallJoin{
		CallID:         call.ID,
		CustomerPeerID: call.CustomerPeerID,
		ExistingAgents: peers,
		CallType:       call.Type,
	})

	joined := CallAgentJoined{CallID: call.ID, NewAgentPeerID: target.PeerID, NewAgentName: target.Name}
	for _, p := range existing {
		if a, ok := m.reg.Agent(p.AgentID); ok {
			m.send(a.Conn, EventCallAgentJoined, joined)
		}
	}
	if c, ok := m.reg.Customer(call.CustomerID); ok {
		m.send(c.Conn, EventCallAgentJoined, joined)
	}
	m.emit(LifecycleEvent{
		Type:       LifecycleAgentJoined,
		CallID:     call.ID,
		CustomerID: call.CustomerID,
		AgentID:    target.ID,
		AgentIDs:   call.agentIDs(),
		CallType:   call.Type,
		StartedAt:  call.StartedAt,
	})
	m.log.Info("agent joined call", "call_id", call.ID, "agent_id", target.ID, "participants", len(call.Agents))

	m.broadcastAgents()
	return nil
}

// End terminates a call: agents become available, the customer is notified and
// forgotten, and the freed agents are offered the queue.
func (m *Manager) End(callID string) error {
	return m.endCall(callID, EndReasonHangup, true)
}

// DisconnectCustomer reconciles state after a customer's connection dropped.
func (m *Manager) DisconnectCustomer(customerID string) error {
	return m.leaveCustomer(customerID, EndReasonCustomerLeft)
}

// DisconnectAgent reconciles state after an agent's connection dropped. The
// agent's whole call ends, including for any other conferenced agents.
func (m *Manager) DisconnectAgent(agentID string) error {
	a, ok := m.reg.Agent(agentID)
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
	}
	if a.CurrentCall != "" {
		// Assignment waits until the agent is gone so it is never offered work.
		if err := m.endCall(a.CurrentCall, EndReasonAgentLeft, false); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	m.reg.RemoveAgent(agentID)
	m.emit(LifecycleEvent{Type: LifecycleAgentLeft, AgentID: agentID})
	m.log.Info("agent left", "agent_id", agentID)

	m.broadcastAgents()
	m.TryAssign()
	return nil
}

// TryAssign offers the queue head to the first available agent, if both
// exist. At most one offer is sent per call.
func (m *Manager) TryAssign() (Offer, bool) {
	offer, ok := m.assigner.Next()
	if !ok {
		return Offer{}, false
	}
	m.send(offer.Conn, EventCallIncoming, CallIncoming{
		CustomerID:   offer.CustomerID,
		CustomerName: offer.CustomerName,
		CallType:     offer.CallType,
		WaitTime:     offer.WaitSeconds,
	})
	m.emit(LifecycleEvent{
		Type:        LifecycleCallOffered,
		AgentID:     offer.AgentID,
		CustomerID:  offer.CustomerID,
		CallType:    offer.CallType,
		WaitSeconds: offer.WaitSeconds,
	})
	m.log.Debug("call offered", "agent_id", offer.AgentID, "customer_id", offer.CustomerID)
	return offer, true
}

// QueueInfo returns the current queue with positions and the available-agent count.
func (m *Manager) QueueInfo() QueueInfo {
	out := QueueInfo{Queue: make([]QueueEntry, 0, m.reg.Queue().Len())}
	for e := range m.reg.QueueSnapshot(m.now()) {
		out.Queue = append(out.Queue, e)
	}
	out.Total = len(out.Queue)
	out.AvailableAgents = m.reg.AvailableAgents()
	return out
}

// Agents returns the agent roster in registration order.
func (m *Manager) Agents() []AgentView { return m.reg.Agents() }

func (m *Manager) leaveCustomer(customerID string, reason EndReason) error {
	c, ok := m.reg.Customer(customerID)
	if !ok {
		return fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	if c.Status == CustomerStatusInCall {
		if call, ok := m.reg.CallByCustomer(customerID); ok {
			if err := m.endCall(call.ID, reason, true); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
	}
	m.dequeue(customerID)
	m.reg.RemoveCustomer(customerID)
	m.emit(LifecycleEvent{Type: LifecycleCustomerLeft, CustomerID: customerID})
	m.log.Info("customer left", "customer_id", customerID)

	m.broadcastQueue()
	return nil
}

func (m *Manager) endCall(callID string, reason EndReason, assign bool) error {
	call, ok := m.reg.Call(callID)
	if !ok {
		return fmt.Errorf("%w: call %s", ErrNotFound, callID)
	}
	ended := CallEnded{CallID: call.ID}

	for _, p := range call.Agents {
		a, ok := m.reg.Agent(p.AgentID)
		if !ok || a.CurrentCall != call.ID {
			continue
		}
		a.Status = AgentStatusAvailable
		a.CurrentCall = ""
		m.send(a.Conn, EventCallEnded, ended)
	}
	if c, ok := m.reg.Customer(call.CustomerID); ok {
		m.send(c.Conn, EventCallEnded, ended)
		m.dequeue(c.ID)
		m.reg.RemoveCustomer(c.ID)
	}
	m.reg.RemoveCall(call.ID)

	m.emit(LifecycleEvent{
		Type:        LifecycleCallEnded,
		CallID:      call.ID,
		CustomerID:  call.CustomerID,
		AgentIDs:    call.agentIDs(),
		CallType:    call.Type,
		StartedAt:   call.StartedAt,
		WaitSeconds: call.WaitSeconds,
		Reason:      reason,
	})
	m.log.Info("call ended", "call_id", call.ID, "reason", reason, "participants", len(call.Agents))

	m.broadcastAgents()
	if assign {
		m.TryAssign()
	}
	return nil
}

// dequeue removes id from the queue and tells everyone behind it their new position.
func (m *Manager) dequeue(id string) {
	changes, ok := m.reg.Queue().Remove(id)
	if !ok {
		return
	}
	for _, ch := range changes {
		if c, ok := m.reg.Customer(ch.CustomerID); ok {
			m.send(c.Conn, EventQueuePosition, QueuePosition{Position: ch.Position})
		}
	}
}

func (m *Manager) broadcastQueue() {
	m.notify.Broadcast(RoomAgents, EventQueueUpdated, m.QueueInfo())
}

func (m *Manager) broadcastAgents() {
	m.notify.Broadcast(RoomAgents, EventAgentsUpdated, m.Agents())
}

func (m *Manager) send(conn ConnID, event string, payload any) {
	if err := m.notify.Send(conn, event, payload); err != nil {
		m.log.Debug("notification not delivered", "conn_id", conn, "event", event, "err", err)
	}
}

func (m *Manager) emit(e LifecycleEvent) {
	if m.observer == nil {
		return
	}
	if e.At.IsZero() {
		e.At = m.now().UTC()
	}
	m.observer.Observe(e)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
