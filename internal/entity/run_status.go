package entity

import "time"

// RunState is the lifecycle state of a harvest run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// RunStats counts what happened during a run.
type RunStats struct {
	Regions             int `json:"regions"`
	RegionsSkipped      int `json:"regions_skipped"`
	Discovered          int `json:"discovered"`
	Known               int `json:"known"`
	SecuritySkipped     int `json:"security_skipped"`
	Saved               int `json:"saved"`
	RejectedTooOld      int `json:"rejected_too_old"`
	RejectedNoTimestamp int `json:"rejected_no_timestamp"`
	RejectedPrice       int `json:"rejected_price"`
	Interstitials       int `json:"interstitials"`
	Failures            int `json:"failures"`
}

// Add folds other into s.
func (s *RunStats) Add(other RunStats) {
	s.Regions += other.Regions
	s.RegionsSkipped += other.RegionsSkipped
	s.Discovered += other.Discovered
	s.Known += other.Known
	s.SecuritySkipped += other.SecuritySkipped
	s.Saved += other.Saved
	s.RejectedTooOld += other.RejectedTooOld
	s.RejectedNoTimestamp += other.RejectedNoTimestamp
	s.RejectedPrice += other.RejectedPrice
	s.Interstitials += other.Interstitials
	s.Failures += other.Failures
}

// RunStatus mirrors the `harvest_runs` table and is what the status API returns.
type RunStatus struct {
	ID         string     `json:"id"`
	State      RunState   `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Stats      RunStats   `json:"stats"`
}
