package contracts

import "time"

// RunStatus is the terminal status of a pipeline run
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// IngestResult reports one source's ingestion outcome.
type IngestResult struct {
	Source       SourceID  `json:"source"`
	RowsWritten  int       `json:"rows_written"`
	NewWatermark time.Time `json:"new_watermark"`

	// Degraded is set when the source's connector failed; the watermark
	// is untouched and the rest of the run proceeds without this source.
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// StageResult records one stage's execution inside a run.
type StageResult struct {
	Stage      Stage  `json:"stage"`
	Success    bool   `json:"success"`
	RowsOut    int64  `json:"rows_out"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunSummary is the structured record produced for every pipeline run.
// Persisted to the runs table and returned by the status surface.
type RunSummary struct {
	RunID      string                    `json:"run_id"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Status     RunStatus                 `json:"status"`
	LastStage  Stage                     `json:"last_stage"`
	Window     RunWindow                 `json:"window"`
	Sources    map[SourceID]IngestResult `json:"sources"`
	Stages     []StageResult             `json:"stages"`
	Findings   []Finding                 `json:"findings"`
	Error      string                    `json:"error,omitempty"`
}

// RunWindow is the date range a run ingested.
type RunWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DegradedSources lists the sources whose ingestion failed this run.
func (s *RunSummary) DegradedSources() []SourceID {
	var out []SourceID
	for _, src := range AllSources() {
		if r, ok := s.Sources[src]; ok && r.Degraded {
			out = append(out, src)
		}
	}
	return out
}

// Duration returns the total run duration.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
