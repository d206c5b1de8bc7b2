package model

import "time"

// RunStatus represents the current state of a geocoding run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RowStatus is the recorded outcome of a single row.
type RowStatus string

const (
	RowStatusOK     RowStatus = "ok"
	RowStatusFailed RowStatus = "failed"
)

// Summary aggregates per-row outcomes for a run.
type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Run is the ledger entry for a single invocation of the pipeline.
type Run struct {
	ID         string    `json:"id"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Provider   string    `json:"provider"`
	Status     RunStatus `json:"status"`
	RowLimit   int       `json:"row_limit"`
	Summary    Summary   `json:"summary"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RowResult is the ledger entry for one processed row. Lat and Lon are
// only meaningful when Status is RowStatusOK.
type RowResult struct {
	RunID     string    `json:"run_id"`
	Row       int       `json:"row"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Status    RowStatus `json:"status"`
	MatchAddr string    `json:"match_addr,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
