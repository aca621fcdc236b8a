package repository

import (
	"context"
	"errors"

	"github.com/TorusGroup/reunia/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// RunsRepository persists the run ledger and per-source sync metadata.
type RunsRepository interface {
	// CreateRun inserts a ledger row in 'running' state and returns its id.
	CreateRun(ctx context.Context, source models.Source) (string, error)

	// FinalizeRun records final counts, errors and status. It is called
	// exactly once per run, on success and on failure alike.
	FinalizeRun(ctx context.Context, runID string, status models.RunStatus, counters models.RunCounters, errs []string) error

	// FailStaleRuns marks ledger rows left 'running' by a crashed process as
	// failed. Returns the number of rows swept.
	FailStaleRuns(ctx context.Context) (int64, error)

	// GetRun returns one ledger row.
	GetRun(ctx context.Context, runID string) (*models.IngestRun, error)

	// GetSourceMeta returns the sync metadata for one source, or nil when
	// the source has never been synced.
	GetSourceMeta(ctx context.Context, source models.Source) (*models.SourceMeta, error)

	// RecordSourceSuccess updates last_fetched_at/last_success_at, clears the
	// error message and adds fetched to the running total. The increment is
	// additive in the store so overlapping runs accumulate correctly.
	RecordSourceSuccess(ctx context.Context, source models.Source, fetched int) error

	// RecordSourceError updates last_fetched_at and the error message; the
	// fetched count (possibly partial) is still added to the running total.
	RecordSourceError(ctx context.Context, source models.Source, fetched int, errMsg string) error
}
