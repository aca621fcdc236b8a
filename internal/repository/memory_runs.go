package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TorusGroup/reunia/internal/models"
)

// MemoryRunsRepo backs orchestrator tests.
type MemoryRunsRepo struct {
	mu    sync.RWMutex
	runs  map[string]*models.IngestRun
	metas map[models.Source]*models.SourceMeta
}

func NewMemoryRunsRepo() *MemoryRunsRepo {
	return &MemoryRunsRepo{
		runs:  map[string]*models.IngestRun{},
		metas: map[models.Source]*models.SourceMeta{},
	}
}

func (r *MemoryRunsRepo) CreateRun(_ context.Context, source models.Source) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID := uuid.NewString()
	r.runs[runID] = &models.IngestRun{
		ID:        runID,
		Source:    source,
		Status:    models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	return runID, nil
}

func (r *MemoryRunsRepo) FinalizeRun(_ context.Context, runID string, status models.RunStatus, c models.RunCounters, errs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if run.Status != models.RunRunning {
		return nil
	}
	now := time.Now().UTC()
	run.Status = status
	run.Counters = c
	run.Errors = append([]string{}, errs...)
	run.CompletedAt = &now
	return nil
}

func (r *MemoryRunsRepo) FailStaleRuns(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for _, run := range r.runs {
		if run.Status == models.RunRunning && now.Sub(run.StartedAt) > staleRunAge {
			run.Status = models.RunFailed
			run.CompletedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *MemoryRunsRepo) GetRun(_ context.Context, runID string) (*models.IngestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryRunsRepo) GetSourceMeta(_ context.Context, source models.Source) (*models.SourceMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.metas[source]
	if !ok {
		return nil, nil
	}
	cp := *meta
	return &cp, nil
}

func (r *MemoryRunsRepo) RecordSourceSuccess(_ context.Context, source models.Source, fetched int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := r.ensureMeta(source)
	now := time.Now().UTC()
	meta.LastFetchedAt = &now
	meta.LastSuccessAt = &now
	meta.LastErrorMessage = nil
	meta.TotalRecordsFetched += int64(fetched)
	return nil
}

func (r *MemoryRunsRepo) RecordSourceError(_ context.Context, source models.Source, fetched int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := r.ensureMeta(source)
	now := time.Now().UTC()
	meta.LastFetchedAt = &now
	meta.LastErrorMessage = &errMsg
	meta.TotalRecordsFetched += int64(fetched)
	return nil
}

func (r *MemoryRunsRepo) ensureMeta(source models.Source) *models.SourceMeta {
	meta, ok := r.metas[source]
	if !ok {
		meta = &models.SourceMeta{Source: source, IsActive: true, PollingIntervalMinutes: 1440}
		r.metas[source] = meta
	}
	return meta
}
