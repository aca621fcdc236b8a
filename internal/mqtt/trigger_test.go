package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/ingest"
	"github.com/TorusGroup/reunia/internal/models"
	"github.com/TorusGroup/reunia/internal/repository"
	"github.com/TorusGroup/reunia/internal/resolver"
	"github.com/TorusGroup/reunia/internal/sources"
)

type stubAdapter struct{}

func (stubAdapter) Source() models.Source { return models.SourceNCMEC }

func (stubAdapter) Fetch(_ context.Context, opts sources.FetchOptions) (sources.Page, error) {
	if opts.Page > 1 {
		return sources.Page{}, nil
	}
	return sources.Page{Items: []sources.RawItem{{ID: "TRIG-1", Payload: []byte(`{}`)}}}, nil
}

func (stubAdapter) Normalize(raw sources.RawItem) (models.CanonicalRecord, error) {
	name := "trigger test"
	return models.CanonicalRecord{
		ExternalID:     raw.ID,
		Source:         models.SourceNCMEC,
		FirstName:      &name,
		NameNormalized: name,
		Gender:         models.GenderUnknown,
		Status:         models.StatusMissing,
	}, nil
}

func (stubAdapter) Status(context.Context) sources.Status {
	return sources.Status{IsAvailable: true}
}

func newTestTrigger(t *testing.T) (*Trigger, *repository.MemoryCasesRepo) {
	t.Helper()
	logger := zap.NewNop()

	registry := sources.NewRegistry(&config.SourcesConfig{}, logger)
	registry.Register(stubAdapter{})

	cases := repository.NewMemoryCasesRepo()
	runs := repository.NewMemoryRunsRepo()
	orch := ingest.NewOrchestrator(
		registry, cases, runs,
		resolver.New(cases, logger),
		ingest.NewSourceLock(nil, logger),
		ingest.Pacing{RateLimitCooldown: time.Millisecond},
		logger,
	)

	// broker connection is not needed to exercise message handling
	return &Trigger{orchestrator: orch, topic: "reunia/ingest/run", logger: logger}, cases
}

func TestHandleMessageRunsIngestion(t *testing.T) {
	trigger, cases := newTestTrigger(t)

	trigger.handleMessage("reunia/ingest/run", []byte(`{"source":"ncmec","maxPages":1}`))

	n, err := cases.CountBySource(context.Background(), models.SourceNCMEC)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHandleMessageDropsMalformedPayload(t *testing.T) {
	trigger, cases := newTestTrigger(t)

	trigger.handleMessage("reunia/ingest/run", []byte(`{"source":`))

	n, err := cases.CountBySource(context.Background(), models.SourceNCMEC)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandleMessageRejectsPurge(t *testing.T) {
	trigger, cases := newTestTrigger(t)

	// seed one case, then try to purge it over the broker
	trigger.handleMessage("reunia/ingest/run", []byte(`{"source":"ncmec"}`))
	n, err := cases.CountBySource(context.Background(), models.SourceNCMEC)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	trigger.handleMessage("reunia/ingest/run",
		[]byte(`{"source":"ncmec","purge":true,"purgeConfirmation":"DELETE-ALL-ncmec"}`))

	n, err = cases.CountBySource(context.Background(), models.SourceNCMEC)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "purge must be unavailable over MQTT")
}
