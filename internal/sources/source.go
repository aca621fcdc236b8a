package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

// RawItem is one item as returned by a source, before normalization.
// ID is the source-local identifier (possibly synthesized by the adapter);
// Payload is the raw source payload, retained verbatim for audit.
type RawItem struct {
	ID      string
	Payload json.RawMessage
}

// FetchOptions parameterizes one page fetch.
type FetchOptions struct {
	Page     int        // 1-based
	PageSize int        // 0 means the adapter default
	Since    *time.Time // only records updated after this instant, when the source supports it
}

// Page is the result of fetching one page from a source.
type Page struct {
	Items []RawItem
	// TotalPages is the source-reported page count, 0 when unknown.
	TotalPages int
	// HasMore is false when the source signals no further pages.
	HasMore bool
}

// Status is a lightweight liveness probe result.
type Status struct {
	IsAvailable bool   `json:"isAvailable"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
}

// Adapter is implemented once per external source. Fetch performs network
// I/O for a single page; Normalize is pure and must tolerate partially
// missing fields. Implementations never write to the store.
type Adapter interface {
	Source() models.Source
	Fetch(ctx context.Context, opts FetchOptions) (Page, error)
	Normalize(raw RawItem) (models.CanonicalRecord, error)
	Status(ctx context.Context) Status
}

// probeStatus is the default Status implementation: a timed 1-page fetch.
// Adapters with a cheaper health endpoint override Status instead.
func probeStatus(ctx context.Context, a Adapter) Status {
	start := time.Now()
	_, err := a.Fetch(ctx, FetchOptions{Page: 1, PageSize: 1})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Status{IsAvailable: false, LatencyMs: latency, Error: err.Error()}
	}
	return Status{IsAvailable: true, LatencyMs: latency}
}

// Registry builds the configured adapters. Selection is a static map from
// source identifier to constructor; unknown sources are a caller error.
type Registry struct {
	adapters map[models.Source]Adapter
}

// NewRegistry wires every enabled adapter from config.
func NewRegistry(cfg *config.SourcesConfig, logger *zap.Logger) *Registry {
	r := &Registry{adapters: map[models.Source]Adapter{}}

	if cfg.NCMEC.Enabled {
		r.adapters[models.SourceNCMEC] = NewNCMECAdapter(cfg.NCMEC, cfg, logger)
	}
	if cfg.NamUs.Enabled {
		r.adapters[models.SourceNamUs] = NewNamUsAdapter(cfg.NamUs, cfg, logger)
	}
	if cfg.Interpol.Enabled {
		r.adapters[models.SourceInterpol] = NewInterpolAdapter(cfg.Interpol, cfg, logger)
	}
	if cfg.Charley.Enabled {
		r.adapters[models.SourceCharley] = NewCharleyAdapter(cfg.Charley, cfg, logger)
	}
	if cfg.BulkFile.Enabled {
		r.adapters[models.SourceBulkFile] = NewBulkFileAdapter(cfg.BulkFile, logger)
	}

	return r
}

// Get returns the adapter for one source.
func (r *Registry) Get(source models.Source) (Adapter, error) {
	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q", source)
	}
	return a, nil
}

// All returns every registered adapter in the stable source order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, src := range models.AllSources() {
		if a, ok := r.adapters[src]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Register replaces or adds an adapter. Used by tests to install fakes.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Source()] = a
}
