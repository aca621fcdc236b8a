package models

import (
	"encoding/json"
	"time"
)

// Source identifies which adapter produced a record.
type Source string

const (
	SourceNCMEC    Source = "ncmec"
	SourceNamUs    Source = "namus"
	SourceInterpol Source = "interpol"
	SourceCharley  Source = "charley"
	SourceBulkFile Source = "bulkfile"
)

// AllSources lists every registered source in a stable order.
func AllSources() []Source {
	return []Source{SourceNCMEC, SourceNamUs, SourceInterpol, SourceCharley, SourceBulkFile}
}

// ParseSource maps a user-supplied source name to a Source.
func ParseSource(s string) (Source, bool) {
	for _, src := range AllSources() {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// Gender is always one of the four values below; adapters map unknown
// source strings to GenderUnknown rather than leaving the field empty so
// that matching logic stays total.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// CaseStatus is the disposition of a case as reported by its source.
type CaseStatus string

const (
	StatusMissing CaseStatus = "missing"
	StatusFound   CaseStatus = "found"
	StatusUnknown CaseStatus = "unknown"
)

// AgeRange is used by sources that report an age bracket instead of an
// exact age (e.g. Interpol "20-25").
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// CanonicalRecord is the normalized, source-agnostic shape every adapter
// produces. Every field except ExternalID and Source is optional.
//
// NameNormalized is always derived via sources.NormalizeName, never supplied
// directly, so that every adapter computes it identically.
type CanonicalRecord struct {
	ExternalID string `json:"external_id"`
	Source     Source `json:"source"`

	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	NameNormalized string  `json:"name_normalized"`

	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	MissingDate *time.Time `json:"missing_date,omitempty"`

	LastSeenLocation *string  `json:"last_seen_location,omitempty"`
	LastSeenLat      *float64 `json:"last_seen_lat,omitempty"`
	LastSeenLng      *float64 `json:"last_seen_lng,omitempty"`
	LastSeenCountry  *string  `json:"last_seen_country,omitempty"` // ISO 3166-1 alpha-2

	Gender   Gender    `json:"gender"`
	Race     *string   `json:"race,omitempty"`
	Age      *int      `json:"age,omitempty"`
	AgeRange *AgeRange `json:"age_range,omitempty"`

	HeightCm *int `json:"height_cm,omitempty"`
	WeightKg *int `json:"weight_kg,omitempty"`

	PhotoURLs []string `json:"photo_urls,omitempty"`

	Status    CaseStatus      `json:"status"`
	SourceURL *string         `json:"source_url,omitempty"`
	RawData   json.RawMessage `json:"raw_data,omitempty"` // retained for audit, never interpreted downstream
}
