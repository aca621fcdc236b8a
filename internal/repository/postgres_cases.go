package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
)

type PostgresCasesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresCasesRepo(db *sql.DB, logger *zap.Logger) *PostgresCasesRepo {
	return &PostgresCasesRepo{db: db, logger: logger}
}

func (r *PostgresCasesRepo) FindBySourceExternalID(ctx context.Context, source models.Source, externalID string) (*CaseRef, error) {
	if externalID == "" {
		return nil, nil
	}

	q := `
		SELECT c.case_id::text, p.person_id::text
		FROM cases c
		LEFT JOIN persons p ON p.case_id = c.case_id AND p.role = 'missing_child'
		WHERE c.source = $1 AND c.external_id = $2`

	var ref CaseRef
	var personID sql.NullString
	err := r.db.QueryRowContext(ctx, q, string(source), externalID).Scan(&ref.CaseID, &personID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup case by (source, external_id): %w", err)
	}
	if personID.Valid {
		ref.PersonID = &personID.String
	}
	return &ref, nil
}

func (r *PostgresCasesRepo) FindCandidates(ctx context.Context, nameNormalized string, limit int) ([]Candidate, error) {
	if nameNormalized == "" {
		return []Candidate{}, nil
	}
	if limit <= 0 {
		limit = 1000
	}

	// Candidates share the first letter of the normalized name; exact scoring
	// is done in the resolver. Keeps the store contract at plain lookups.
	q := `
		SELECT p.person_id::text, p.case_id::text, p.name_normalized, p.date_of_birth, p.gender
		FROM persons p
		WHERE p.role = 'missing_child'
		  AND p.name_normalized <> ''
		  AND left(p.name_normalized, 1) = left($1, 1)
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, nameNormalized, limit)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	out := []Candidate{}
	for rows.Next() {
		var c Candidate
		var dob sql.NullTime
		var gender sql.NullString
		if err := rows.Scan(&c.PersonID, &c.CaseID, &c.NameNormalized, &dob, &gender); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if dob.Valid {
			t := dob.Time
			c.DateOfBirth = &t
		}
		if gender.Valid {
			c.Gender = models.Gender(gender.String)
		} else {
			c.Gender = models.GenderUnknown
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCasesRepo) CreateCase(ctx context.Context, rec models.CanonicalRecord) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create case tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	caseID := uuid.NewString()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cases (case_id, source, external_id, source_url, status, raw_data, created_at, updated_at, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7)`,
		caseID, string(rec.Source), nullString(rec.ExternalID), rec.SourceURL, string(rec.Status), []byte(rec.RawData), now,
	)
	if err != nil {
		return "", fmt.Errorf("insert case: %w", err)
	}

	personID := uuid.NewString()
	var ageMin, ageMax *int
	if rec.AgeRange != nil {
		ageMin, ageMax = &rec.AgeRange.Min, &rec.AgeRange.Max
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO persons (
			person_id, case_id, role, first_name, last_name, name_normalized,
			date_of_birth, missing_date, gender, race, age, age_min, age_max,
			height_cm, weight_kg, last_seen_location, last_seen_lat, last_seen_lng, last_seen_country,
			created_at, updated_at
		) VALUES ($1, $2, 'missing_child', $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)`,
		personID, caseID, rec.FirstName, rec.LastName, rec.NameNormalized,
		rec.DateOfBirth, rec.MissingDate, string(rec.Gender), rec.Race, rec.Age, ageMin, ageMax,
		rec.HeightCm, rec.WeightKg, rec.LastSeenLocation, rec.LastSeenLat, rec.LastSeenLng, rec.LastSeenCountry,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("insert person: %w", err)
	}

	for i, url := range rec.PhotoURLs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO case_images (image_id, case_id, url, is_primary, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), caseID, url, i == 0, i, now,
		)
		if err != nil {
			return "", fmt.Errorf("insert case image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create case: %w", err)
	}
	return caseID, nil
}

func (r *PostgresCasesRepo) UpdateCase(ctx context.Context, caseID string, rec models.CanonicalRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update case tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE cases
		SET status = $2, raw_data = $3, updated_at = $4, last_synced_at = $4
		WHERE case_id = $1`,
		caseID, string(rec.Status), []byte(rec.RawData), now,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}

	var ageMin, ageMax *int
	if rec.AgeRange != nil {
		ageMin, ageMax = &rec.AgeRange.Min, &rec.AgeRange.Max
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE persons
		SET missing_date       = COALESCE($2, missing_date),
		    age                = COALESCE($3, age),
		    age_min            = COALESCE($4, age_min),
		    age_max            = COALESCE($5, age_max),
		    height_cm          = COALESCE($6, height_cm),
		    weight_kg          = COALESCE($7, weight_kg),
		    last_seen_location = COALESCE($8, last_seen_location),
		    last_seen_lat      = COALESCE($9, last_seen_lat),
		    last_seen_lng      = COALESCE($10, last_seen_lng),
		    last_seen_country  = COALESCE($11, last_seen_country),
		    updated_at         = $12
		WHERE case_id = $1 AND role = 'missing_child'`,
		caseID, rec.MissingDate, rec.Age, ageMin, ageMax,
		rec.HeightCm, rec.WeightKg, rec.LastSeenLocation, rec.LastSeenLat, rec.LastSeenLng, rec.LastSeenCountry,
		now,
	)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}

	for i, url := range rec.PhotoURLs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO case_images (image_id, case_id, url, is_primary, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (case_id, url) DO NOTHING`,
			uuid.NewString(), caseID, url, i == 0, i, now,
		)
		if err != nil {
			return fmt.Errorf("upsert case image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update case: %w", err)
	}
	return nil
}

func (r *PostgresCasesRepo) PurgeSource(ctx context.Context, source models.Source) (int64, error) {
	// persons and case_images cascade from cases
	res, err := r.db.ExecContext(ctx, `DELETE FROM cases WHERE source = $1`, string(source))
	if err != nil {
		return 0, fmt.Errorf("purge source %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresCasesRepo) CountBySource(ctx context.Context, source models.Source) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases WHERE source = $1`, string(source)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cases for source %s: %w", source, err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
