package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TorusGroup/reunia/internal/models"
)

// MemoryCasesRepo backs orchestrator and resolver tests.
type MemoryCasesRepo struct {
	mu      sync.RWMutex
	cases   map[string]*Case         // caseID -> case
	persons map[string]*memoryPerson // personID -> person
	byKey   map[string]string        // source + "\x00" + externalID -> caseID
	images  map[string][]string      // caseID -> urls

	// FailCandidates makes FindCandidates return this error, for testing
	// the resolver's fail-open path.
	FailCandidates error
}

type memoryPerson struct {
	ID             string
	CaseID         string
	FirstName      *string
	LastName       *string
	NameNormalized string
	DateOfBirth    *time.Time
	Gender         models.Gender
}

func NewMemoryCasesRepo() *MemoryCasesRepo {
	return &MemoryCasesRepo{
		cases:   map[string]*Case{},
		persons: map[string]*memoryPerson{},
		byKey:   map[string]string{},
		images:  map[string][]string{},
	}
}

func key(source models.Source, externalID string) string {
	return string(source) + "\x00" + externalID
}

func (r *MemoryCasesRepo) FindBySourceExternalID(_ context.Context, source models.Source, externalID string) (*CaseRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caseID, ok := r.byKey[key(source, externalID)]
	if !ok {
		return nil, nil
	}
	ref := &CaseRef{CaseID: caseID}
	for _, p := range r.persons {
		if p.CaseID == caseID {
			id := p.ID
			ref.PersonID = &id
			break
		}
	}
	return ref, nil
}

func (r *MemoryCasesRepo) FindCandidates(_ context.Context, nameNormalized string, limit int) ([]Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.FailCandidates != nil {
		return nil, r.FailCandidates
	}
	if limit <= 0 {
		limit = 1000
	}

	out := []Candidate{}
	for _, p := range r.persons {
		if p.NameNormalized == "" {
			continue
		}
		if nameNormalized != "" && !strings.HasPrefix(p.NameNormalized[:1], nameNormalized[:1]) {
			continue
		}
		out = append(out, Candidate{
			PersonID:       p.ID,
			CaseID:         p.CaseID,
			NameNormalized: p.NameNormalized,
			DateOfBirth:    p.DateOfBirth,
			Gender:         p.Gender,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryCasesRepo) CreateCase(_ context.Context, rec models.CanonicalRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	caseID := uuid.NewString()
	extID := rec.ExternalID

	c := &Case{
		ID:           caseID,
		Source:       rec.Source,
		Status:       rec.Status,
		RawData:      rec.RawData,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
	}
	if extID != "" {
		c.ExternalID = &extID
		r.byKey[key(rec.Source, extID)] = caseID
	}
	c.SourceURL = rec.SourceURL
	r.cases[caseID] = c

	personID := uuid.NewString()
	r.persons[personID] = &memoryPerson{
		ID:             personID,
		CaseID:         caseID,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		NameNormalized: rec.NameNormalized,
		DateOfBirth:    rec.DateOfBirth,
		Gender:         rec.Gender,
	}

	r.images[caseID] = append([]string{}, rec.PhotoURLs...)
	return caseID, nil
}

func (r *MemoryCasesRepo) UpdateCase(_ context.Context, caseID string, rec models.CanonicalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = rec.Status
	c.RawData = rec.RawData
	c.UpdatedAt = now
	c.LastSyncedAt = now
	return nil
}

func (r *MemoryCasesRepo) PurgeSource(_ context.Context, source models.Source) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.cases {
		if c.Source != source {
			continue
		}
		n++
		delete(r.cases, id)
		delete(r.images, id)
		if c.ExternalID != nil {
			delete(r.byKey, key(source, *c.ExternalID))
		}
		for pid, p := range r.persons {
			if p.CaseID == id {
				delete(r.persons, pid)
			}
		}
	}
	return n, nil
}

func (r *MemoryCasesRepo) CountBySource(_ context.Context, source models.Source) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, c := range r.cases {
		if c.Source == source {
			n++
		}
	}
	return n, nil
}

// GetCase is a test helper.
func (r *MemoryCasesRepo) GetCase(caseID string) *Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cases[caseID]
}
