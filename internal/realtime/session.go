package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

const tracerName = "github.com/marketingkamdi24/Videoberatung-kamdi24/internal/realtime"

// Close codes sent to the client when a session is refused.
const (
	closeTooManySessions = 4029
)

// EventHandler consumes inbound frames. *dispatch.Dispatcher satisfies it.
type EventHandler interface {
	Handle(ctx context.Context, conn dispatch.ConnID, event string, data json.RawMessage) error
	Disconnect(ctx context.Context, conn dispatch.ConnID) error
}

// SessionLimiter caps concurrent sessions per remote address.
type SessionLimiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Session is the part of a SockJS session the server relies on.
type Session interface {
	Request() *http.Request
	Recv() (string, error)
	Send(string) error
	Close(status uint32, reason string) error
}

type Options struct {
	Limiter SessionLimiter
	Logger  *slog.Logger
	Tracer  trace.Tracer
	NewID   func() string
}

// Server bridges SockJS sessions to an EventHandler.
type Server struct {
	hub     *Hub
	events  EventHandler
	limiter SessionLimiter
	log     *slog.Logger
	tracer  trace.Tracer
	newID   func() string
}

func NewServer(hub *Hub, events EventHandler, opts Options) *Server {
	s := &Server{
		hub:     hub,
		events:  events,
		limiter: opts.Limiter,
		log:     opts.Logger,
		tracer:  opts.Tracer,
		newID:   opts.NewID,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Handler returns the SockJS endpoint mounted at prefix, e.g. "/realtime".
func (s *Server) Handler(prefix string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		s.Serve(session)
	})
}

// Serve runs one session until the client goes away.
func (s *Server) Serve(session Session) {
	ctx := context.Background()
	ip := clientIP(session.Request())

	if s.limiter != nil && ip != "" {
		ok, err := s.limiter.Acquire(ctx, ip)
		switch {
		case err != nil:
			// Redis trouble must not lock everyone out.
			s.log.Warn("session limiter unavailable", "remote_ip", ip, "err", err)
		case !ok:
			_ = session.Close(closeTooManySessions, "too many sessions")
			return
		default:
			defer func() {
				if err := s.limiter.Release(context.Background(), ip); err != nil {
					s.log.Warn("session limiter release", "remote_ip", ip, "err", err)
				}
			}()
		}
	}

	conn := dispatch.ConnID(s.newID())
	log := s.log.With("conn_id", conn, "remote_ip", ip)
	client := s.hub.Register(conn)
	log.Debug("session opened")

	go func() {
		for frame := range client.Send {
			if err := session.Send(string(frame)); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.hub.Unregister(conn)
		if err := s.events.Disconnect(ctx, conn); err != nil {
			log.Warn("disconnect", "err", err)
		}
		log.Debug("session closed")
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		s.handle(ctx, log, conn, msg)
	}
}

func (s *Server) handle(ctx context.Context, log *slog.Logger, conn dispatch.ConnID, msg string) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg), &env); err != nil || env.Event == "" {
		log.Debug("ignore malformed frame")
		return
	}

	ctx, span := s.tracer.Start(ctx, env.Event, trace.WithAttributes(
		attribute.String("dispatch.conn_id", string(conn)),
		attribute.String("dispatch.event", env.Event),
	))
	defer span.End()

	err := s.events.Handle(ctx, conn, env.Event, env.Data)
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	// Rejected requests are dropped silently towards the client.
	switch {
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrInvalidArgument):
		log.Debug("event rejected", "event", env.Event, "err", err)
	default:
		log.Error("event failed", "event", env.Event, "err", err)
	}
}
