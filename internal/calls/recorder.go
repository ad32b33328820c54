package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

// Repository is the persistence contract for call records. Append-only.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	List(ctx context.Context, from, to time.Time) ([]Record, error)
}

// Recorder is a dispatch.Observer that stores a Record for every ended call.
// It performs I/O and should run behind a dispatch.AsyncObserver.
type Recorder struct {
	repo    Repository
	log     *slog.Logger
	timeout time.Duration
}

func NewRecorder(repo Repository, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{repo: repo, log: log, timeout: 5 * time.Second}
}

func (r *Recorder) Observe(e dispatch.LifecycleEvent) {
	if e.Type != dispatch.LifecycleCallEnded {
		return
	}
	rec := FromEvent(e)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.repo.Save(ctx, rec); err != nil {
		r.log.Error("save call record", "call_id", rec.CallID, "err", err)
	}
}
