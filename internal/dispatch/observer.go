package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type LifecycleEventType string

const (
	LifecycleCustomerJoined    LifecycleEventType = "customer_joined"
	LifecycleCustomerCancelled LifecycleEventType = "customer_cancelled"
	LifecycleCustomerLeft      LifecycleEventType = "customer_left"
	LifecycleAgentRegistered   LifecycleEventType = "agent_registered"
	LifecycleAgentStatus       LifecycleEventType = "agent_status_changed"
	LifecycleAgentLeft         LifecycleEventType = "agent_left"
	LifecycleCallOffered       LifecycleEventType = "call_offered"
	LifecycleCallStarted       LifecycleEventType = "call_started"
	LifecycleAgentJoined       LifecycleEventType = "call_agent_joined"
	LifecycleCallEnded         LifecycleEventType = "call_ended"
)

// EndReason says why a call was torn down.
type EndReason string

const (
	EndReasonHangup            EndReason = "hangup"
	EndReasonCustomerLeft      EndReason = "customer_disconnected"
	EndReasonAgentLeft         EndReason = "agent_disconnected"
	EndReasonAgentReregistered EndReason = "agent_reregistered"
	EndReasonCustomerRejoined  EndReason = "customer_rejoined"
)

// LifecycleEvent describes one committed state transition. Fields that do not
// apply to Type are left zero.
type LifecycleEvent struct {
	Type LifecycleEventType `json:"type"`
	At   time.Time          `json:"at"`

	CustomerID string      `json:"customer_id,omitempty"`
	AgentID    string      `json:"agent_id,omitempty"`
	AgentName  string      `json:"agent_name,omitempty"`
	Status     AgentStatus `json:"status,omitempty"`

	CallID      string    `json:"call_id,omitempty"`
	CallType    CallType  `json:"call_type,omitempty"`
	AgentIDs    []string  `json:"agent_ids,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	WaitSeconds int       `json:"wait_seconds,omitempty"`
	Reason      EndReason `json:"reason,omitempty"`
}

// Observer receives lifecycle events. Observe is called with the dispatcher
// lock held and must return quickly; wrap slow observers in an AsyncObserver.
type Observer interface {
	Observe(e LifecycleEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(LifecycleEvent)

func (f ObserverFunc) Observe(e LifecycleEvent) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Observe(e LifecycleEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

// AsyncObserver hands events to a background worker through a bounded buffer.
// Events that do not fit are dropped and logged.
type AsyncObserver struct {
	next Observer
	ch   chan LifecycleEvent
	log  *slog.Logger

	once sync.Once
	done chan struct{}
}

func NewAsyncObserver(next Observer, buffer int, log *slog.Logger) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &AsyncObserver{next: next, ch: make(chan LifecycleEvent, buffer), log: log, done: make(chan struct{})}
}

func (a *AsyncObserver) Observe(e LifecycleEvent) {
	select {
	case a.ch <- e:
	default:
		a.log.Warn("lifecycle event dropped", "type", e.Type, "call_id", e.CallID)
	}
}

// Run delivers buffered events until ctx is cancelled or Close is called,
// then drains what is left.
func (a *AsyncObserver) Run(ctx context.Context) {
	for {
		select {
		case e := <-a.ch:
			a.next.Observe(e)
		case <-ctx.Done():
			a.drain()
			return
		case <-a.done:
			a.drain()
			return
		}
	}
}

func (a *AsyncObserver) Close() {
	a.once.Do(func() { close(a.done) })
}

func (a *AsyncObserver) drain() {
	for {
		select {
		case e := <-a.ch:
			a.next.Observe(e)
		default:
			return
		}
	}
}
