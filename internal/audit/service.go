package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

// Repository is the persistence contract for audit events.
// It MUST be append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information.
// Audit is internal-only; callers treat it as best-effort.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Observe makes Service a dispatch.Observer. Every lifecycle event is stored with
// its full payload as metadata. It performs I/O and should run behind a
// dispatch.AsyncObserver.
func (s *Service) Observe(le dispatch.LifecycleEvent) {
	meta, err := json.Marshal(le)
	if err != nil {
		s.log.Error("audit: encode lifecycle event", "type", le.Type, "err", err)
		return
	}
	e := Event{
		Type:       EventType(le.Type),
		CustomerID: le.CustomerID,
		AgentID:    le.AgentID,
		CallID:     le.CallID,
		Message:    describe(le),
		Metadata:   string(meta),
		CreatedAt:  le.At,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Append(ctx, e); err != nil {
		s.log.Error("audit: append", "type", le.Type, "err", err)
	}
}

func describe(e dispatch.LifecycleEvent) string {
	switch e.Type {
	case dispatch.LifecycleAgentStatus:
		return fmt.Sprintf("agent %s is now %s", e.AgentID, e.Status)
	case dispatch.LifecycleCallStarted:
		return fmt.Sprintf("agent %s accepted customer %s after %ds", e.AgentID, e.CustomerID, e.WaitSeconds)
	case dispatch.LifecycleAgentJoined:
		return fmt.Sprintf("agent %s joined call (%d agents)", e.AgentID, len(e.AgentIDs))
	case dispatch.LifecycleCallEnded:
		return fmt.Sprintf("call ended: %s", e.Reason)
	default:
		return string(e.Type)
	}
}
