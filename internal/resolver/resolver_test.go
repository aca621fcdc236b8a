package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
	"github.com/TorusGroup/reunia/internal/repository"
)

// fixedMetric scores each candidate name with a preset value, so the
// threshold arithmetic can be tested at exact boundaries.
type fixedMetric struct {
	scores map[string]float64
}

func (m fixedMetric) Compare(_, b string) float64 { return m.scores[b] }

func newTestResolver(t *testing.T) (*Resolver, *repository.MemoryCasesRepo) {
	t.Helper()
	repo := repository.NewMemoryCasesRepo()
	return New(repo, zap.NewNop()), repo
}

func record(source models.Source, externalID, first, last string) models.CanonicalRecord {
	return models.CanonicalRecord{
		ExternalID:     externalID,
		Source:         source,
		FirstName:      &first,
		LastName:       &last,
		NameNormalized: nameKey(first, last),
		Gender:         models.GenderUnknown,
		Status:         models.StatusMissing,
	}
}

// nameKey mirrors the adapters' normalization for plain ASCII names.
func nameKey(first, last string) string {
	if last == "" {
		return lower(first)
	}
	return lower(first) + " " + lower(last)
}

func lower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + 32
		}
	}
	return string(out)
}

func TestExactMatchPrecedence(t *testing.T) {
	res, repo := newTestResolver(t)
	ctx := context.Background()

	_, err := repo.CreateCase(ctx, record(models.SourceNCMEC, "CASE-1", "Jane", "Doe"))
	require.NoError(t, err)

	// wildly dissimilar name, same (source, externalId): source+id wins
	incoming := record(models.SourceNCMEC, "CASE-1", "Zyx", "Qwerty")
	decision := res.Resolve(ctx, incoming)

	assert.Equal(t, ActionUpdate, decision.Action)
	assert.NotEmpty(t, decision.CaseID)
	assert.NotEmpty(t, decision.PersonID)
	assert.Equal(t, 1.0, decision.Score)
}

func TestInsufficientNameSkipsFuzzy(t *testing.T) {
	res, repo := newTestResolver(t)
	ctx := context.Background()

	// a perfect candidate exists, but the incoming name is too short to trust
	_, err := repo.CreateCase(ctx, record(models.SourceNCMEC, "CASE-1", "Al", ""))
	require.NoError(t, err)

	incoming := record(models.SourceNamUs, "MP1", "Al", "")
	require.Less(t, len(incoming.NameNormalized), MinNameLength)

	decision := res.Resolve(ctx, incoming)
	assert.Equal(t, ActionCreate, decision.Action)
	assert.Equal(t, "insufficient name data", decision.Reason)
}

func TestNoCandidates(t *testing.T) {
	res, _ := newTestResolver(t)

	decision := res.Resolve(context.Background(), record(models.SourceNamUs, "MP1", "Jane", "Doe"))
	assert.Equal(t, ActionCreate, decision.Action)
	assert.Zero(t, decision.Score)
	assert.Equal(t, "no candidates found", decision.Reason)
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		baseScore float64
		dobMatch  bool
		gender    models.Gender
		expected  Action
		score     float64
	}{
		{"at threshold", 0.85, false, models.GenderUnknown, ActionUpdate, 0.85},
		{"below threshold", 0.84, false, models.GenderUnknown, ActionCreate, 0.84},
		{"boosts lift over threshold", 0.80, true, models.GenderFemale, ActionUpdate, 0.95},
		{"boosts capped at one", 1.0, true, models.GenderFemale, ActionUpdate, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, repo := newTestResolver(t)
			ctx := context.Background()

			dob := time.Date(2010, 3, 15, 0, 0, 0, 0, time.UTC)
			existing := record(models.SourceNCMEC, "CASE-1", "Jane", "Doe")
			existing.Gender = tt.gender
			if tt.dobMatch {
				existing.DateOfBirth = &dob
			}
			_, err := repo.CreateCase(ctx, existing)
			require.NoError(t, err)

			res.metric = fixedMetric{scores: map[string]float64{"jane doe": tt.baseScore}}

			incoming := record(models.SourceNamUs, "MP1", "Jane", "Doh")
			incoming.Gender = tt.gender
			if tt.dobMatch {
				incoming.DateOfBirth = &dob
			}

			decision := res.Resolve(ctx, incoming)
			assert.Equal(t, tt.expected, decision.Action)
			assert.InDelta(t, tt.score, decision.Score, 1e-9)
		})
	}
}

func TestGenderUnknownNeverBoosts(t *testing.T) {
	res, repo := newTestResolver(t)
	ctx := context.Background()

	existing := record(models.SourceNCMEC, "CASE-1", "Jane", "Doe")
	existing.Gender = models.GenderUnknown
	_, err := repo.CreateCase(ctx, existing)
	require.NoError(t, err)

	res.metric = fixedMetric{scores: map[string]float64{"jane doe": 0.82}}

	incoming := record(models.SourceNamUs, "MP1", "Jane", "Doh")
	incoming.Gender = models.GenderUnknown

	decision := res.Resolve(ctx, incoming)
	assert.Equal(t, ActionCreate, decision.Action)
	assert.InDelta(t, 0.82, decision.Score, 1e-9)
}

func TestFailOpenOnLookupError(t *testing.T) {
	res, repo := newTestResolver(t)
	repo.FailCandidates = errors.New("connection refused")

	decision := res.Resolve(context.Background(), record(models.SourceNamUs, "MP1", "Jane", "Doe"))
	assert.Equal(t, ActionCreate, decision.Action)
	assert.Contains(t, decision.Reason, "connection refused")
}

func TestIdenticalNamesMatchWithRealMetric(t *testing.T) {
	res, repo := newTestResolver(t)
	ctx := context.Background()

	_, err := repo.CreateCase(ctx, record(models.SourceNCMEC, "CASE-1", "Maria", "Gonzalez"))
	require.NoError(t, err)

	// different source, no shared external id, same person
	decision := res.Resolve(ctx, record(models.SourceNamUs, "MP1", "Maria", "Gonzalez"))
	assert.Equal(t, ActionUpdate, decision.Action)
	assert.GreaterOrEqual(t, decision.Score, MatchThreshold)
}
