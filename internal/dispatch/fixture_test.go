package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type message struct {
	Conn    ConnID
	Room    Room
	Event   string
	Payload any
}

type recordingNotifier struct {
	sent       []message
	broadcasts []message
	rooms      map[ConnID][]Room
	stale      map[ConnID]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{rooms: map[ConnID][]Room{}, stale: map[ConnID]bool{}}
}

func (n *recordingNotifier) Send(conn ConnID, event string, payload any) error {
	if n.stale[conn] {
		return ErrStaleConnection
	}
	n.sent = append(n.sent, message{Conn: conn, Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) Broadcast(room Room, event string, payload any) {
	n.broadcasts = append(n.broadcasts, message{Room: room, Event: event, Payload: payload})
}

func (n *recordingNotifier) Join(conn ConnID, room Room) {
	n.rooms[conn] = append(n.rooms[conn], room)
}

// to returns every message sent to conn with the given event name.
func (n *recordingNotifier) to(conn ConnID, event string) []any {
	var out []any
	for _, m := range n.sent {
		if m.Conn == conn && m.Event == event {
			out = append(out, m.Payload)
		}
	}
	return out
}

func (n *recordingNotifier) lastBroadcast(event string) (any, bool) {
	for i := len(n.broadcasts) - 1; i >= 0; i-- {
		if n.broadcasts[i].Event == event {
			return n.broadcasts[i].Payload, true
		}
	}
	return nil, false
}

func (n *recordingNotifier) reset() {
	n.sent = nil
	n.broadcasts = nil
}

type fixture struct {
	reg    *Registry
	mgr    *Manager
	notify *recordingNotifier
	events []LifecycleEvent
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:    NewRegistry(),
		notify: newRecordingNotifier(),
		now:    time.Unix(1700000000, 0).UTC(),
	}
	seq := 0
	f.mgr = NewManager(f.reg, f.notify, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: ObserverFunc(func(e LifecycleEvent) { f.events = append(f.events, e) }),
		Now:      func() time.Time { return f.now },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) join(t *testing.T, conn ConnID, name string) *Customer {
	t.Helper()
	c, err := f.mgr.Join(JoinRequest{Conn: conn, PeerID: "peer-" + string(conn), Name: name, CallType: "video"})
	require.NoError(t, err)
	return c
}

func (f *fixture) register(t *testing.T, conn ConnID, agentID string) *Agent {
	t.Helper()
	a, err := f.mgr.RegisterAgent(RegisterRequest{Conn: conn, AgentID: agentID, PeerID: "peer-" + string(conn), Name: agentID})
	require.NoError(t, err)
	return a
}

func (f *fixture) eventTypes() []LifecycleEventType {
	out := make([]LifecycleEventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// requireConsistent checks every cross-structure invariant of the registry.
func requireConsistent(t *testing.T, reg *Registry) {
	t.Helper()

	queued := map[string]bool{}
	for _, id := range reg.Queue().IDs() {
		require.False(t, queued[id], "customer %s queued twice", id)
		queued[id] = true
		c, ok := reg.Customer(id)
		require.True(t, ok, "queued customer %s has no record", id)
		require.Equal(t, CustomerStatusWaiting, c.Status)
	}
	for id, c := range reg.customers {
		if c.Status == CustomerStatusWaiting {
			require.True(t, queued[id], "waiting customer %s not queued", id)
			continue
		}
		_, ok := reg.CallByCustomer(id)
		require.True(t, ok, "in-call customer %s has no call", id)
	}

	for id, a := range reg.agents {
		if a.Status == AgentStatusBusy {
			require.NotEmpty(t, a.CurrentCall, "busy agent %s without call", id)
			call, ok := reg.Call(a.CurrentCall)
			require.True(t, ok, "agent %s points at missing call", id)
			require.True(t, call.hasAgent(id))
		} else {
			require.Empty(t, a.CurrentCall, "idle agent %s still has a call", id)
		}
	}
	for id, call := range reg.calls {
		require.NotEmpty(t, call.Agents, "call %s has no agents", id)
		for _, p := range call.Agents {
			a, ok := reg.Agent(p.AgentID)
			require.True(t, ok)
			require.Equal(t, AgentStatusBusy, a.Status)
			require.Equal(t, id, a.CurrentCall)
		}
	}
}
