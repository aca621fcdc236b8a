package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
	"github.com/TorusGroup/reunia/internal/repository"
)

// Scoring constants. These are kept verbatim from the production tuning;
// the threshold is deliberately not configurable here.
const (
	// MatchThreshold is the minimum final score for a cross-source merge.
	MatchThreshold = 0.85
	// DOBBoost is added when both records carry the same date of birth.
	DOBBoost = 0.10
	// GenderBoost is added when both records carry the same known gender.
	GenderBoost = 0.05
	// MinNameLength below which fuzzy matching is skipped entirely;
	// degenerate names produce unacceptable false-positive rates.
	MinNameLength = 3

	candidateLimit = 1000
)

// Action is what the orchestrator should do with a record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Decision is the resolver output for one canonical record.
type Decision struct {
	Action   Action
	CaseID   string // set when Action == ActionUpdate
	PersonID string // set when the matched case has a primary person
	Score    float64
	Reason   string
}

// Resolver decides, for each incoming record, whether it is a new entity,
// a re-ingestion of the same source's record, or a cross-source duplicate.
// It only reads; the orchestrator owns all writes.
type Resolver struct {
	cases  repository.CasesRepository
	metric strutil.StringMetric
	logger *zap.Logger
}

func New(cases repository.CasesRepository, logger *zap.Logger) *Resolver {
	return &Resolver{
		cases:  cases,
		metric: metrics.NewSorensenDice(),
		logger: logger,
	}
}

// Resolve runs the two matching stages. Stage 1, exact (source, externalId)
// lookup, is authoritative and always checked first; stage 2 is the fuzzy
// cross-source match. A candidate-lookup failure fails open to create so a
// dedup outage never blocks ingestion.
func (r *Resolver) Resolve(ctx context.Context, rec models.CanonicalRecord) Decision {
	if ref, err := r.cases.FindBySourceExternalID(ctx, rec.Source, rec.ExternalID); err != nil {
		r.logger.Warn("exact-match lookup failed, falling through to fuzzy match",
			zap.String("source", string(rec.Source)),
			zap.String("external_id", rec.ExternalID),
			zap.Error(err))
	} else if ref != nil && ref.PersonID != nil {
		return Decision{
			Action:   ActionUpdate,
			CaseID:   ref.CaseID,
			PersonID: *ref.PersonID,
			Score:    1.0,
			Reason:   "exact match on (source, external_id)",
		}
	}

	return r.fuzzyMatch(ctx, rec)
}

func (r *Resolver) fuzzyMatch(ctx context.Context, rec models.CanonicalRecord) Decision {
	if len(rec.NameNormalized) < MinNameLength {
		return Decision{Action: ActionCreate, Reason: "insufficient name data"}
	}

	candidates, err := r.cases.FindCandidates(ctx, rec.NameNormalized, candidateLimit)
	if err != nil {
		// fail open: an occasional duplicate is cheaper than blocked ingestion
		r.logger.Error("candidate lookup failed, creating without dedup",
			zap.String("name", rec.NameNormalized),
			zap.Error(err))
		return Decision{
			Action: ActionCreate,
			Reason: fmt.Sprintf("dedup lookup failed: %v", err),
		}
	}
	if len(candidates) == 0 {
		return Decision{Action: ActionCreate, Score: 0, Reason: "no candidates found"}
	}

	var best repository.Candidate
	bestScore := -1.0
	for _, cand := range candidates {
		score := strutil.Similarity(rec.NameNormalized, cand.NameNormalized, r.metric)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}

	score := bestScore
	if rec.DateOfBirth != nil && best.DateOfBirth != nil &&
		sameDay(*rec.DateOfBirth, *best.DateOfBirth) {
		score += DOBBoost
	}
	if rec.Gender != models.GenderUnknown && best.Gender != models.GenderUnknown &&
		rec.Gender == best.Gender {
		score += GenderBoost
	}
	if score > 1.0 {
		score = 1.0
	}

	if score >= MatchThreshold {
		return Decision{
			Action:   ActionUpdate,
			CaseID:   best.CaseID,
			PersonID: best.PersonID,
			Score:    score,
			Reason:   fmt.Sprintf("fuzzy match %q score %.2f", best.NameNormalized, score),
		}
	}
	return Decision{
		Action: ActionCreate,
		Score:  score,
		Reason: fmt.Sprintf("best candidate %q score %.2f below threshold", best.NameNormalized, score),
	}
}

// sameDay compares dates of birth at day precision; feeds disagree on the
// time-of-day component they attach.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
