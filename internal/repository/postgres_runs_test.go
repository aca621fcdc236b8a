package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
)

func setupRunsMock(t *testing.T) (*PostgresRunsRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRunsRepo(db, zap.NewNop()), mock
}

func TestCreateRun(t *testing.T) {
	repo, mock := setupRunsMock(t)

	mock.ExpectExec(`INSERT INTO ingest_runs`).
		WithArgs(sqlmock.AnyArg(), "ncmec", "running", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	runID, err := repo.CreateRun(context.Background(), models.SourceNCMEC)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRun(t *testing.T) {
	repo, mock := setupRunsMock(t)
	counters := models.RunCounters{Fetched: 10, Inserted: 6, Updated: 3, Skipped: 0, Failed: 1}

	// the WHERE status='running' guard makes finalization exactly-once
	mock.ExpectExec(`UPDATE ingest_runs`).
		WithArgs("run-1", "success", 10, 6, 3, 0, 1, sqlmock.AnyArg(), sqlmock.AnyArg(), "running").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.FinalizeRun(context.Background(), "run-1", models.RunSuccess, counters, []string{"record x: insert: boom"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRunAlreadyFinalized(t *testing.T) {
	repo, mock := setupRunsMock(t)

	mock.ExpectExec(`UPDATE ingest_runs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// zero rows means someone else finalized first; that is not an error
	err := repo.FinalizeRun(context.Background(), "run-1", models.RunFailed, models.RunCounters{}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailStaleRuns(t *testing.T) {
	repo, mock := setupRunsMock(t)

	mock.ExpectExec(`marked failed by startup sweep`).
		WithArgs("failed", sqlmock.AnyArg(), "running", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.FailStaleRuns(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	repo, mock := setupRunsMock(t)
	started := time.Now().UTC().Add(-time.Minute)
	completed := time.Now().UTC()

	mock.ExpectQuery(`FROM ingest_runs WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "source", "status", "fetched", "inserted", "updated", "skipped", "failed",
			"errors", "started_at", "completed_at",
		}).AddRow("run-1", "namus", "success", 5, 5, 0, 0, 0, []byte(`{"page 3 fetch failed"}`), started, completed))

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceNamUs, run.Source)
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 5, run.Counters.Fetched)
	assert.Equal(t, []string{"page 3 fetch failed"}, run.Errors)
	require.NotNil(t, run.CompletedAt)

	mock.ExpectQuery(`FROM ingest_runs WHERE run_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err = repo.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSourceMeta(t *testing.T) {
	repo, mock := setupRunsMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM ingest_sources WHERE source = \$1`).
		WithArgs("ncmec").
		WillReturnRows(sqlmock.NewRows([]string{
			"source", "is_active", "polling_interval_minutes",
			"last_fetched_at", "last_success_at", "last_error_message", "total_records_fetched",
		}).AddRow("ncmec", true, 1440, now, now, nil, int64(120)))

	meta, err := repo.GetSourceMeta(context.Background(), models.SourceNCMEC)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.IsActive)
	assert.EqualValues(t, 120, meta.TotalRecordsFetched)
	assert.Nil(t, meta.LastErrorMessage)

	// unseeded source has no row yet
	mock.ExpectQuery(`FROM ingest_sources WHERE source = \$1`).
		WithArgs("charley").
		WillReturnRows(sqlmock.NewRows([]string{"source"}))

	meta, err = repo.GetSourceMeta(context.Background(), models.SourceCharley)
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSourceSuccessIncrementsInStore(t *testing.T) {
	repo, mock := setupRunsMock(t)

	// the increment happens in SQL, never as read-modify-write in Go
	mock.ExpectExec(`total_records_fetched = ingest_sources.total_records_fetched \+ EXCLUDED.total_records_fetched`).
		WithArgs("ncmec", sqlmock.AnyArg(), 37).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordSourceSuccess(context.Background(), models.SourceNCMEC, 37)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSourceError(t *testing.T) {
	repo, mock := setupRunsMock(t)

	mock.ExpectExec(`INSERT INTO ingest_sources`).
		WithArgs("charley", sqlmock.AnyArg(), "feed parse failed", 12).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordSourceError(context.Background(), models.SourceCharley, 12, "feed parse failed")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
