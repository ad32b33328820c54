package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics over ended calls.
// AgentID optionally narrows the summary to calls an agent took part in.
type CallsSummaryRequest struct {
	Range   TimeRange `json:"range"`
	AgentID string    `json:"agent_id,omitempty"`
}

type CallsSummary struct {
	AgentID string `json:"agent_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	ConferenceCalls int `json:"conference_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalWaitSeconds   int `json:"total_wait_seconds"`
	AverageWaitSeconds int `json:"average_wait_seconds"`
	MaxWaitSeconds     int `json:"max_wait_seconds"`

	ByType      map[string]int `json:"by_type"`
	ByEndReason map[string]int `json:"by_end_reason"`
}

// AgentLoad is the per-agent share of handled calls.
type AgentLoad struct {
	AgentID         string `json:"agent_id"`
	Calls           int    `json:"calls"`
	ConferenceCalls int    `json:"conference_calls"`
	DurationSeconds int    `json:"duration_seconds"`
}
