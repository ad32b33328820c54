package reporting

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// Implementations query the immutable call records; calls.Repository satisfies it.
type Repository interface {
	List(ctx context.Context, from, to time.Time) ([]calls.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !validRange(req.Range) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		AgentID:     req.AgentID,
		ByType:      map[string]int{},
		ByEndReason: map[string]int{},
	}
	for _, r := range rows {
		if req.AgentID != "" && !slices.Contains(r.AgentIDs, req.AgentID) {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += r.DurationSeconds
		out.TotalWaitSeconds += r.WaitSeconds
		if r.WaitSeconds > out.MaxWaitSeconds {
			out.MaxWaitSeconds = r.WaitSeconds
		}
		if r.Conference() {
			out.ConferenceCalls++
		}
		out.ByType[string(r.Type)]++
		out.ByEndReason[string(r.EndReason)]++
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.AverageWaitSeconds = out.TotalWaitSeconds / out.TotalCalls
	}
	return out, nil
}

// AgentLoads reports how many calls each agent took part in, busiest first.
// A conferenced call counts once for every participating agent.
func (s *Service) AgentLoads(ctx context.Context, rng TimeRange) ([]AgentLoad, error) {
	if !validRange(rng) {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, rng.From, rng.To)
	if err != nil {
		return nil, err
	}

	byAgent := map[string]*AgentLoad{}
	for _, r := range rows {
		for _, id := range r.AgentIDs {
			l, ok := byAgent[id]
			if !ok {
				l = &AgentLoad{AgentID: id}
				byAgent[id] = l
			}
			l.Calls++
			l.DurationSeconds += r.DurationSeconds
			if r.Conference() {
				l.ConferenceCalls++
			}
		}
	}

	out := make([]AgentLoad, 0, len(byAgent))
	for _, l := range byAgent {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}
