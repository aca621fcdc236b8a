package models

import "time"

// RunStatus is the lifecycle state of one ingestion run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunCounters classifies every fetched record into exactly one outcome.
// Invariant: Inserted + Updated + Skipped + Failed == Fetched at run end.
type RunCounters struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// IngestRun is one row of the run ledger.
type IngestRun struct {
	ID          string
	Source      Source
	Status      RunStatus
	Counters    RunCounters
	Errors      []string // capped; see ingest.errorCap
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SourceMeta is the per-source sync metadata row.
type SourceMeta struct {
	Source                 Source
	IsActive               bool
	PollingIntervalMinutes int
	LastFetchedAt          *time.Time
	LastSuccessAt          *time.Time
	LastErrorMessage       *string
	TotalRecordsFetched    int64
}

// SourceSummary is the per-source result returned to whatever surface
// triggered the run.
type SourceSummary struct {
	Source     Source      `json:"source"`
	RunID      string      `json:"runId"`
	Status     RunStatus   `json:"status"`
	Counters   RunCounters `json:"counters"`
	DurationMs int64       `json:"durationMs"`
	Purged     int         `json:"purged,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
}

// RunReport aggregates the summaries of one orchestrated run.
type RunReport struct {
	Summaries []SourceSummary `json:"summaries"`
}

// AllFailed reports whether every requested source ended in failure.
func (r RunReport) AllFailed() bool {
	if len(r.Summaries) == 0 {
		return false
	}
	for _, s := range r.Summaries {
		if s.Status != RunFailed {
			return false
		}
	}
	return true
}
