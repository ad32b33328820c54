package dispatch

// Room is a broadcast group of connections.
type Room string

const (
	RoomAgents    Room = "agents"
	RoomCustomers Room = "customers"
)

// Notifier delivers outbound events to participants. Implementations must not
// block: the dispatcher calls them while holding its state lock.
type Notifier interface {
	// Send delivers one event to one connection. It returns ErrStaleConnection
	// when the connection no longer exists.
	Send(conn ConnID, event string, payload any) error
	// Broadcast delivers one event to every connection in room.
	Broadcast(room Room, event string, payload any)
	// Join adds conn to room.
	Join(conn ConnID, room Room)
}

// Outbound event names.
const (
	EventCustomerQueued  = "customer:queued"
	EventQueuePosition   = "queue:position"
	EventQueueUpdated    = "queue:updated"
	EventAgentsUpdated   = "agents:updated"
	EventAgentRegistered = "agent:registered"
	EventCallIncoming    = "call:incoming"
	EventCallStart       = "call:start"
	EventCallConnected   = "call:connected"
	EventCallJoin        = "call:join"
	EventCallAgentJoined = "call:agent-joined"
	EventCallEnded       = "call:ended"
)

type CustomerQueued struct {
	CustomerID    string `json:"customerId"`
	Position      int    `json:"position"`
	EstimatedWait int    `json:"estimatedWait"`
}

type QueuePosition struct {
	Position int `json:"position"`
}

// QueueInfo is the full queue view broadcast to agents and served over HTTP.
type QueueInfo struct {
	Queue           []QueueEntry `json:"queue"`
	Total           int          `json:"total"`
	AvailableAgents int          `json:"availableAgents"`
}

type AgentRegistered struct {
	AgentID string    `json:"agentId"`
	Queue   QueueInfo `json:"queue"`
}

type CallIncoming struct {
	CustomerID   string   `json:"customerId"`
	CustomerName string   `json:"customerName"`
	CallType     CallType `json:"callType"`
	WaitTime     int      `json:"waitTime"`
}

type CallStart struct {
	CallID           string   `json:"callId"`
	CustomerPeerID   string   `json:"customerPeerId"`
	CustomerName     string   `json:"customerName"`
	CallType         CallType `json:"callType"`
	CustomerHasVideo bool     `json:"customerHasVideo"`
	CustomerHasAudio bool     `json:"customerHasAudio"`
}

type CallConnected struct {
	CallID      string `json:"callId"`
	AgentPeerID string `json:"agentPeerId"`
	AgentName   string `json:"agentName"`
}

type CallJoin struct {
	CallID         string   `json:"callId"`
	CustomerPeerID string   `json:"customerPeerId"`
	ExistingAgents []string `json:"existingAgents"`
	CallType       CallType `json:"callType"`
}

type CallAgentJoined struct {
	CallID         string `json:"callId"`
	NewAgentPeerID string `json:"newAgentPeerId"`
	NewAgentName   string `json:"newAgentName"`
}

type CallEnded struct {
	CallID string `json:"callId"`
}
