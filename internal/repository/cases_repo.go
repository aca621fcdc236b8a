package repository

import (
	"context"
	"time"

	"github.com/TorusGroup/reunia/internal/models"
)

// CaseRef points at an existing case and its primary person. PersonID is nil
// for legacy rows that never got a person attached.
type CaseRef struct {
	CaseID   string
	PersonID *string
}

// Candidate is the slim projection used for fuzzy matching.
type Candidate struct {
	PersonID       string
	CaseID         string
	NameNormalized string
	DateOfBirth    *time.Time
	Gender         models.Gender
}

// Case is the provenance row; the primary person and images hang off it.
type Case struct {
	ID           string
	Source       models.Source
	ExternalID   *string
	SourceURL    *string
	Status       models.CaseStatus
	RawData      []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt time.Time
}

// CasesRepository is the store contract the resolver and orchestrator need:
// exact lookup by (source, external_id), candidate retrieval by normalized
// name, transactional create/update, and the confirmation-gated purge.
type CasesRepository interface {
	// FindBySourceExternalID returns nil (no error) when no case matches.
	FindBySourceExternalID(ctx context.Context, source models.Source, externalID string) (*CaseRef, error)

	// FindCandidates returns persons whose normalized name could plausibly
	// match the given one. The result is a bounded superset; scoring happens
	// in the resolver.
	FindCandidates(ctx context.Context, nameNormalized string, limit int) ([]Candidate, error)

	// CreateCase inserts the case, its primary person and any photo records
	// in one transaction. The first photo is marked primary.
	CreateCase(ctx context.Context, rec models.CanonicalRecord) (caseID string, err error)

	// UpdateCase updates mutable fields only; identity fields (name, source,
	// external_id) that anchor future exact matches are never overwritten.
	UpdateCase(ctx context.Context, caseID string, rec models.CanonicalRecord) error

	// PurgeSource deletes every case attributed to one source and returns
	// the number of cases removed. Confirmation is checked by the caller.
	PurgeSource(ctx context.Context, source models.Source) (int64, error)

	// CountBySource returns the number of stored cases for a source.
	CountBySource(ctx context.Context, source models.Source) (int64, error)
}
