package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

const bulkDefaultPageSize = 200

// BulkFileAdapter ingests clearinghouse dump files, CSV or XLSX, from a
// local path or an http(s) URL. The file is read once per run and sliced
// into pages so the orchestrator's page loop works the same as for API
// sources. Rows are keyed by header name; column order does not matter.
type BulkFileAdapter struct {
	cfg    config.BulkFileConfig
	logger *zap.Logger

	mu   sync.Mutex
	rows []map[string]string // loaded lazily on first Fetch
}

func NewBulkFileAdapter(cfg config.BulkFileConfig, logger *zap.Logger) *BulkFileAdapter {
	return &BulkFileAdapter{
		cfg:    cfg,
		logger: logger.With(zap.String("source", string(models.SourceBulkFile))),
	}
}

func (a *BulkFileAdapter) Source() models.Source { return models.SourceBulkFile }

func (a *BulkFileAdapter) Fetch(ctx context.Context, opts FetchOptions) (Page, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rows == nil {
		rows, err := a.load(ctx)
		if err != nil {
			return Page{}, err
		}
		a.rows = rows
	}

	size := opts.PageSize
	if size <= 0 {
		size = bulkDefaultPageSize
	}
	start := (opts.Page - 1) * size
	if start >= len(a.rows) {
		return Page{HasMore: false}, nil
	}
	end := start + size
	if end > len(a.rows) {
		end = len(a.rows)
	}

	items := make([]RawItem, 0, end-start)
	for _, row := range a.rows[start:end] {
		payload, err := json.Marshal(row)
		if err != nil {
			continue
		}
		items = append(items, RawItem{ID: bulkExternalID(row), Payload: payload})
	}

	totalPages := (len(a.rows) + size - 1) / size
	return Page{Items: items, TotalPages: totalPages, HasMore: opts.Page < totalPages}, nil
}

func (a *BulkFileAdapter) load(ctx context.Context) ([]map[string]string, error) {
	if a.cfg.Path == "" {
		return nil, fmt.Errorf("bulk file path not configured")
	}

	data, err := a.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read bulk file %s: %w", a.cfg.Path, err)
	}

	var records [][]string
	if strings.HasSuffix(strings.ToLower(a.cfg.Path), ".xlsx") {
		records, err = readXLSX(data)
	} else {
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse bulk file %s: %w", a.cfg.Path, err)
	}
	if len(records) < 1 {
		return nil, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}

	a.logger.Info("bulk file loaded", zap.String("path", a.cfg.Path), zap.Int("rows", len(rows)))
	return rows, nil
}

func (a *BulkFileAdapter) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(a.cfg.Path, "http://") || strings.HasPrefix(a.cfg.Path, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		client := &http.Client{Timeout: requestTimeout}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(a.cfg.Path)
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // dumps from some states pad trailing columns inconsistently
	r.LazyQuotes = true    // and leave stray quotes in height fields like 5'2"
	return r.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func bulkExternalID(row map[string]string) string {
	if v := firstNonEmpty(row, "case_number", "casenumber", "case_no", "id"); v != "" {
		return v
	}
	return "bulk-synth-" + uuid.NewString()
}

func firstNonEmpty(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func (a *BulkFileAdapter) Normalize(raw RawItem) (models.CanonicalRecord, error) {
	var row map[string]string
	if err := json.Unmarshal(raw.Payload, &row); err != nil {
		return models.CanonicalRecord{}, fmt.Errorf("bulk payload: %w", err)
	}

	firstName := optional(firstNonEmpty(row, "first_name", "firstname", "given_name"))
	lastName := optional(firstNonEmpty(row, "last_name", "lastname", "surname", "family_name"))

	rec := models.CanonicalRecord{
		ExternalID:     raw.ID,
		Source:         models.SourceBulkFile,
		FirstName:      firstName,
		LastName:       lastName,
		NameNormalized: NormalizeName(firstName, lastName),
		DateOfBirth:    ParseDate(firstNonEmpty(row, "date_of_birth", "dob", "birth_date")),
		MissingDate:    ParseDate(firstNonEmpty(row, "missing_date", "date_missing", "last_seen_date")),
		Gender:         NormalizeGender(firstNonEmpty(row, "gender", "sex")),
		Race:           optional(firstNonEmpty(row, "race", "ethnicity")),
		HeightCm:       ParseHeightCm(firstNonEmpty(row, "height")),
		WeightKg:       ParseWeightKg(firstNonEmpty(row, "weight")),
		Status:         bulkStatus(firstNonEmpty(row, "status", "case_status")),
		RawData:        raw.Payload,
	}

	if v := firstNonEmpty(row, "age"); v != "" {
		if age, err := strconv.Atoi(v); err == nil && age > 0 && age < 120 {
			rec.Age = &age
		}
	}

	if loc := joinLocation(row["city"], row["state"], row["country"]); loc != "" {
		rec.LastSeenLocation = &loc
	}
	rec.LastSeenCountry = NormalizeCountry(row["country"])

	if v := firstNonEmpty(row, "photo_url", "image_url", "photo"); v != "" {
		rec.PhotoURLs = []string{v}
	}
	if v := firstNonEmpty(row, "url", "source_url", "link"); v != "" {
		rec.SourceURL = &v
	}

	return rec, nil
}

func bulkStatus(s string) models.CaseStatus {
	switch strings.ToLower(s) {
	case "missing", "open", "active":
		return models.StatusMissing
	case "found", "located", "recovered", "closed":
		return models.StatusFound
	default:
		return models.StatusUnknown
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Status for the bulk adapter checks the file is readable instead of doing
// a full page fetch; large dumps make the default probe too expensive.
func (a *BulkFileAdapter) Status(ctx context.Context) Status {
	start := time.Now()
	if a.cfg.Path == "" {
		return Status{IsAvailable: false, Error: "bulk file path not configured"}
	}
	if strings.HasPrefix(a.cfg.Path, "http://") || strings.HasPrefix(a.cfg.Path, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.cfg.Path, nil)
		if err != nil {
			return Status{IsAvailable: false, Error: err.Error()}
		}
		client := &http.Client{Timeout: requestTimeout}
		resp, err := client.Do(req)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return Status{IsAvailable: false, LatencyMs: latency, Error: err.Error()}
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return Status{IsAvailable: false, LatencyMs: latency, Error: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return Status{IsAvailable: true, LatencyMs: latency}
	}
	if _, err := os.Stat(a.cfg.Path); err != nil {
		return Status{IsAvailable: false, LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
	}
	return Status{IsAvailable: true, LatencyMs: time.Since(start).Milliseconds()}
}
