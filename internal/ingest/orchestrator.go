package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
	"github.com/TorusGroup/reunia/internal/repository"
	"github.com/TorusGroup/reunia/internal/resolver"
	"github.com/TorusGroup/reunia/internal/sources"
)

const (
	// errorCap bounds how many per-record errors are kept on the ledger row;
	// every failure is still counted in the run totals.
	errorCap = 10

	defaultMaxPages = 50
)

// Pacing controls request volume toward the sources. Zero values are
// replaced by DefaultPacing; tests use a zeroed-delay Pacing.
type Pacing struct {
	PageDelay         time.Duration // between successive pages
	BatchSize         int           // pages per batch
	BatchPause        time.Duration // between batches
	RateLimitCooldown time.Duration // single long cooldown after a 429
}

// DefaultPacing stays within the tolerance of the slowest source.
func DefaultPacing() Pacing {
	return Pacing{
		PageDelay:         time.Second,
		BatchSize:         5,
		BatchPause:        10 * time.Second,
		RateLimitCooldown: 45 * time.Second,
	}
}

// RunRequest is the operator-facing trigger contract.
type RunRequest struct {
	Source            string `json:"source"` // a source name or "all"
	MaxPages          int    `json:"maxPages"`
	Purge             bool   `json:"purge"`
	PurgeConfirmation string `json:"purgeConfirmation"`
}

// PurgeConfirmation is the exact token required to purge one source.
func PurgeConfirmation(source models.Source) string {
	return "DELETE-ALL-" + string(source)
}

// Orchestrator drives adapters end to end: fetch, normalize, resolve, write.
// Sources run strictly sequentially; per-record failures never abort a run.
type Orchestrator struct {
	registry *sources.Registry
	cases    repository.CasesRepository
	runs     repository.RunsRepository
	resolver *resolver.Resolver
	lock     *SourceLock
	pacing   Pacing
	logger   *zap.Logger
}

func NewOrchestrator(
	registry *sources.Registry,
	cases repository.CasesRepository,
	runs repository.RunsRepository,
	res *resolver.Resolver,
	lock *SourceLock,
	pacing Pacing,
	logger *zap.Logger,
) *Orchestrator {
	if pacing.BatchSize <= 0 {
		pacing.BatchSize = DefaultPacing().BatchSize
	}
	return &Orchestrator{
		registry: registry,
		cases:    cases,
		runs:     runs,
		resolver: res,
		lock:     lock,
		pacing:   pacing,
		logger:   logger,
	}
}

// Run executes one orchestrated run over the requested source(s) and always
// returns a structured report; a bad source never hides the results of the
// sources that succeeded.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) models.RunReport {
	var adapters []sources.Adapter
	if req.Source == "all" || req.Source == "" {
		adapters = o.registry.All()
	} else {
		src, ok := models.ParseSource(req.Source)
		if ok {
			if a, err := o.registry.Get(src); err == nil {
				adapters = []sources.Adapter{a}
			}
		}
		if len(adapters) == 0 {
			return models.RunReport{Summaries: []models.SourceSummary{{
				Source: models.Source(req.Source),
				Status: models.RunFailed,
				Errors: []string{fmt.Sprintf("unknown or disabled source %q", req.Source)},
			}}}
		}
	}

	report := models.RunReport{}
	for _, adapter := range adapters {
		report.Summaries = append(report.Summaries, o.runSource(ctx, adapter, req))
	}
	return report
}

// runSource executes the full pipeline for one source and finalizes its
// ledger row exactly once, on every exit path.
func (o *Orchestrator) runSource(ctx context.Context, adapter sources.Adapter, req RunRequest) models.SourceSummary {
	source := adapter.Source()
	log := o.logger.With(zap.String("source", string(source)))
	start := time.Now()

	summary := models.SourceSummary{Source: source, Status: models.RunFailed}

	release, acquired := o.lock.Acquire(ctx, source)
	if !acquired {
		summary.Errors = []string{"another ingestion run holds the source lock"}
		summary.DurationMs = time.Since(start).Milliseconds()
		log.Warn("source locked by another run, skipping")
		return summary
	}
	defer release()

	if req.Purge {
		purged, err := o.purge(ctx, source, req.PurgeConfirmation, log)
		if err != nil {
			summary.Errors = []string{err.Error()}
			summary.DurationMs = time.Since(start).Milliseconds()
			return summary
		}
		summary.Purged = int(purged)
	}

	runID, err := o.runs.CreateRun(ctx, source)
	if err != nil {
		// ledger unavailable is a run-scoping condition
		summary.Errors = []string{fmt.Sprintf("create run ledger entry: %v", err)}
		summary.DurationMs = time.Since(start).Milliseconds()
		log.Error("cannot create run ledger entry", zap.Error(err))
		return summary
	}
	summary.RunID = runID

	var counters models.RunCounters
	var recordErrors []string
	status := models.RunFailed

	finalized := false
	finalize := func() {
		if finalized {
			return
		}
		finalized = true
		if err := o.runs.FinalizeRun(context.WithoutCancel(ctx), runID, status, counters, recordErrors); err != nil {
			log.Error("finalize run failed", zap.String("run_id", runID), zap.Error(err))
		}
		o.updateSourceMeta(context.WithoutCancel(ctx), source, status, counters, recordErrors, log)
	}
	defer finalize()

	log.Info("ingestion run started", zap.String("run_id", runID), zap.Int("max_pages", req.MaxPages))

	// discovery: first page teaches us the source-reported page count
	firstPage, err := o.fetchPage(ctx, adapter, 1, log)
	if err != nil {
		recordErrors = append(recordErrors, fmt.Sprintf("discovery fetch failed: %v", err))
		log.Error("discovery fetch failed, aborting run", zap.Error(err))
		summary.Status = models.RunFailed
		summary.Counters = counters
		summary.Errors = recordErrors
		summary.DurationMs = time.Since(start).Milliseconds()
		return summary
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	pageCeiling := maxPages
	if firstPage.TotalPages > 0 && firstPage.TotalPages < pageCeiling {
		pageCeiling = firstPage.TotalPages
	}

	pagesDone := 0
	page := firstPage
	pageNum := 1
	for {
		if len(page.Items) == 0 {
			// end-of-data signal, not an error
			log.Info("empty page, stopping pagination", zap.Int("page", pageNum))
			break
		}

		o.processPage(ctx, adapter, page, &counters, &recordErrors, log)
		pagesDone++

		if ctx.Err() != nil {
			// wall-clock budget exhausted: finalize failed with partial counts
			recordErrors = capAppend(recordErrors, fmt.Sprintf("run budget exhausted: %v", ctx.Err()))
			log.Warn("context done mid-run, finalizing with partial counts", zap.Error(ctx.Err()))
			status = models.RunFailed
			summary.Status = status
			summary.Counters = counters
			summary.Errors = recordErrors
			summary.DurationMs = time.Since(start).Milliseconds()
			finalize()
			return summary
		}

		if !page.HasMore || pageNum >= pageCeiling {
			break
		}
		pageNum++

		o.pause(ctx, pagesDone)

		page, err = o.fetchPage(ctx, adapter, pageNum, log)
		if err != nil {
			// page-level failure stops pagination for this source only
			recordErrors = capAppend(recordErrors, fmt.Sprintf("page %d fetch failed: %v", pageNum, err))
			log.Warn("page fetch failed, stopping pagination", zap.Int("page", pageNum), zap.Error(err))
			break
		}
	}

	status = models.RunSuccess
	finalize()

	summary.Status = status
	summary.Counters = counters
	summary.Errors = recordErrors
	summary.DurationMs = time.Since(start).Milliseconds()

	log.Info("ingestion run finished",
		zap.String("run_id", runID),
		zap.Int("fetched", counters.Fetched),
		zap.Int("inserted", counters.Inserted),
		zap.Int("updated", counters.Updated),
		zap.Int("skipped", counters.Skipped),
		zap.Int("failed", counters.Failed),
		zap.Int64("duration_ms", summary.DurationMs),
	)
	return summary
}

// fetchPage fetches one page, applying the single long cooldown (instead of
// the normal retry budget) when the source signals a rate limit.
func (o *Orchestrator) fetchPage(ctx context.Context, adapter sources.Adapter, pageNum int, log *zap.Logger) (sources.Page, error) {
	page, err := adapter.Fetch(ctx, sources.FetchOptions{Page: pageNum})
	if errors.Is(err, sources.ErrRateLimited) {
		cooldown := o.pacing.RateLimitCooldown
		log.Warn("source rate limit hit, cooling down",
			zap.Int("page", pageNum), zap.Duration("cooldown", cooldown))
		select {
		case <-time.After(cooldown):
		case <-ctx.Done():
			return sources.Page{}, ctx.Err()
		}
		page, err = adapter.Fetch(ctx, sources.FetchOptions{Page: pageNum})
	}
	return page, err
}

// processPage runs normalize -> resolve -> write for every record on the
// page, in source order, classifying each into exactly one outcome.
func (o *Orchestrator) processPage(ctx context.Context, adapter sources.Adapter, page sources.Page, counters *models.RunCounters, recordErrors *[]string, log *zap.Logger) {
	for _, raw := range page.Items {
		counters.Fetched++

		rec, err := adapter.Normalize(raw)
		if err != nil {
			counters.Failed++
			*recordErrors = capAppend(*recordErrors, fmt.Sprintf("record %s: normalize: %v", raw.ID, err))
			continue
		}

		decision := o.resolver.Resolve(ctx, rec)
		switch decision.Action {
		case resolver.ActionCreate:
			if _, err := o.cases.CreateCase(ctx, rec); err != nil {
				counters.Failed++
				*recordErrors = capAppend(*recordErrors, fmt.Sprintf("record %s: insert: %v", raw.ID, err))
				continue
			}
			counters.Inserted++
		case resolver.ActionUpdate:
			if err := o.cases.UpdateCase(ctx, decision.CaseID, rec); err != nil {
				counters.Failed++
				*recordErrors = capAppend(*recordErrors, fmt.Sprintf("record %s: update: %v", raw.ID, err))
				continue
			}
			counters.Updated++
		default:
			counters.Skipped++
		}
	}
}

// pause applies inter-page pacing: a short delay between pages and a longer
// one at every batch boundary.
func (o *Orchestrator) pause(ctx context.Context, pagesDone int) {
	delay := o.pacing.PageDelay
	if o.pacing.BatchSize > 0 && pagesDone%o.pacing.BatchSize == 0 {
		delay = o.pacing.BatchPause
	}
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// purge deletes every stored case for one source. The confirmation token
// must be exactly PurgeConfirmation(source); anything else is rejected
// before any deletion happens.
func (o *Orchestrator) purge(ctx context.Context, source models.Source, confirmation string, log *zap.Logger) (int64, error) {
	expected := PurgeConfirmation(source)
	if confirmation != expected {
		return 0, fmt.Errorf("purge rejected: confirmation token mismatch for source %s", source)
	}

	count, err := o.cases.CountBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("purge aborted: counting existing cases: %w", err)
	}

	// destructive action is logged before it executes
	log.Warn("purging all cases for source",
		zap.String("source", string(source)),
		zap.Int64("existing_cases", count),
		zap.Time("requested_at", time.Now().UTC()),
	)

	purged, err := o.cases.PurgeSource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("purge failed: %w", err)
	}
	log.Info("purge complete", zap.String("source", string(source)), zap.Int64("purged", purged))
	return purged, nil
}

func (o *Orchestrator) updateSourceMeta(ctx context.Context, source models.Source, status models.RunStatus, counters models.RunCounters, errs []string, log *zap.Logger) {
	// keyed on run status: a partially successful run still advances
	// last_success_at, its page errors live in the run record
	var err error
	if status == models.RunSuccess {
		err = o.runs.RecordSourceSuccess(ctx, source, counters.Fetched)
	} else {
		msg := string(status)
		if len(errs) > 0 {
			msg = errs[len(errs)-1]
		}
		err = o.runs.RecordSourceError(ctx, source, counters.Fetched, msg)
	}
	if err != nil {
		log.Error("source metadata update failed", zap.Error(err))
	}
}

// capAppend appends an error description unless the cap is reached; the
// counters still count every failure.
func capAppend(errs []string, msg string) []string {
	if len(errs) >= errorCap {
		return errs
	}
	return append(errs, msg)
}
