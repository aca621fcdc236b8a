package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
)

// staleRunAge is how old a 'running' ledger row must be before the startup
// sweep considers its process dead.
const staleRunAge = 6 * time.Hour

type PostgresRunsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresRunsRepo(db *sql.DB, logger *zap.Logger) *PostgresRunsRepo {
	return &PostgresRunsRepo{db: db, logger: logger}
}

func (r *PostgresRunsRepo) CreateRun(ctx context.Context, source models.Source) (string, error) {
	runID := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, source, status, started_at)
		VALUES ($1, $2, $3, $4)`,
		runID, string(source), string(models.RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return runID, nil
}

func (r *PostgresRunsRepo) FinalizeRun(ctx context.Context, runID string, status models.RunStatus, c models.RunCounters, errs []string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET status = $2, fetched = $3, inserted = $4, updated = $5, skipped = $6, failed = $7,
		    errors = $8, completed_at = $9
		WHERE run_id = $1 AND status = $10`,
		runID, string(status), c.Fetched, c.Inserted, c.Updated, c.Skipped, c.Failed,
		pq.Array(errs), time.Now().UTC(), string(models.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		// already finalized (crash sweep raced us); keep the first outcome
		r.logger.Warn("run already finalized", zap.String("run_id", runID))
	}
	return nil
}

func (r *PostgresRunsRepo) FailStaleRuns(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET status = $1, completed_at = $2, errors = ARRAY['marked failed by startup sweep']
		WHERE status = $3 AND started_at < $4`,
		string(models.RunFailed), time.Now().UTC(), string(models.RunRunning),
		time.Now().UTC().Add(-staleRunAge),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale runs: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRunsRepo) GetRun(ctx context.Context, runID string) (*models.IngestRun, error) {
	q := `
		SELECT run_id::text, source, status, fetched, inserted, updated, skipped, failed,
		       COALESCE(errors, '{}'), started_at, completed_at
		FROM ingest_runs WHERE run_id = $1`

	var run models.IngestRun
	var source, status string
	var errs pq.StringArray
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, runID).Scan(
		&run.ID, &source, &status,
		&run.Counters.Fetched, &run.Counters.Inserted, &run.Counters.Updated,
		&run.Counters.Skipped, &run.Counters.Failed,
		&errs, &run.StartedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.Source = models.Source(source)
	run.Status = models.RunStatus(status)
	run.Errors = []string(errs)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func (r *PostgresRunsRepo) GetSourceMeta(ctx context.Context, source models.Source) (*models.SourceMeta, error) {
	q := `
		SELECT source, is_active, polling_interval_minutes,
		       last_fetched_at, last_success_at, last_error_message, total_records_fetched
		FROM ingest_sources WHERE source = $1`

	var meta models.SourceMeta
	var src string
	var lastFetched, lastSuccess sql.NullTime
	var lastErr sql.NullString
	err := r.db.QueryRowContext(ctx, q, string(source)).Scan(
		&src, &meta.IsActive, &meta.PollingIntervalMinutes,
		&lastFetched, &lastSuccess, &lastErr, &meta.TotalRecordsFetched,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source meta %s: %w", source, err)
	}
	meta.Source = models.Source(src)
	if lastFetched.Valid {
		t := lastFetched.Time
		meta.LastFetchedAt = &t
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		meta.LastSuccessAt = &t
	}
	if lastErr.Valid {
		s := lastErr.String
		meta.LastErrorMessage = &s
	}
	return &meta, nil
}

// RecordSourceSuccess upserts the source row; total_records_fetched is an
// atomic in-store increment, never a read-modify-write.
func (r *PostgresRunsRepo) RecordSourceSuccess(ctx context.Context, source models.Source, fetched int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_sources (source, is_active, polling_interval_minutes, last_fetched_at, last_success_at, last_error_message, total_records_fetched)
		VALUES ($1, TRUE, 1440, $2, $2, NULL, $3)
		ON CONFLICT (source) DO UPDATE SET
			last_fetched_at = EXCLUDED.last_fetched_at,
			last_success_at = EXCLUDED.last_success_at,
			last_error_message = NULL,
			total_records_fetched = ingest_sources.total_records_fetched + EXCLUDED.total_records_fetched`,
		string(source), time.Now().UTC(), fetched,
	)
	if err != nil {
		return fmt.Errorf("record source success %s: %w", source, err)
	}
	return nil
}

func (r *PostgresRunsRepo) RecordSourceError(ctx context.Context, source models.Source, fetched int, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_sources (source, is_active, polling_interval_minutes, last_fetched_at, last_success_at, last_error_message, total_records_fetched)
		VALUES ($1, TRUE, 1440, $2, NULL, $3, $4)
		ON CONFLICT (source) DO UPDATE SET
			last_fetched_at = EXCLUDED.last_fetched_at,
			last_error_message = EXCLUDED.last_error_message,
			total_records_fetched = ingest_sources.total_records_fetched + EXCLUDED.total_records_fetched`,
		string(source), time.Now().UTC(), errMsg, fetched,
	)
	if err != nil {
		return fmt.Errorf("record source error %s: %w", source, err)
	}
	return nil
}
