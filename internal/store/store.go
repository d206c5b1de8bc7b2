// Package store persists the run ledger: one row per pipeline
// invocation plus per-row geocoding outcomes. SQLite is the default
// backend; PostgreSQL is available for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/geocode-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.Summary, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Row outcomes
	RecordRows(ctx context.Context, runID string, rows []model.RowResult) error
	ListRows(ctx context.Context, runID string) ([]model.RowResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
