package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/checkpoint"
	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/monitoring"
)

type stubProgress struct{ reports []domain.SourceReport }

func (s stubProgress) Progress() []domain.SourceReport { return s.reports }

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

// pingableStore decorates a checkpoint store with a connection probe, the
// way the Redis backend carries one.
type pingableStore struct {
	checkpoint.Store
	err error
}

func (s pingableStore) Ping(ctx context.Context) error { return s.err }

func testServer(t *testing.T, cfg *config.Config, progress ProgressReporter, db Pinger, cps checkpoint.Store) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Engine: config.EngineConfig{ListenAddr: ":0"}}
	}
	if cps == nil {
		fs, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		cps = fs
	}
	return NewServer(cfg, progress, db, cps, monitoring.NewMetrics(), zap.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzHealthy(t *testing.T) {
	s := testServer(t, nil, stubProgress{}, stubPinger{}, nil)

	rec := get(t, s, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["postgres"])
	assert.Equal(t, "healthy", health["checkpoints"])
}

func TestHealthzReportsPostgresOutage(t *testing.T) {
	s := testServer(t, nil, stubProgress{}, stubPinger{err: errors.New("connection refused")}, nil)

	rec := get(t, s, "/healthz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health["postgres"])
	assert.Equal(t, "healthy", health["checkpoints"])
}

func TestHealthzProbesRemoteCheckpointBackend(t *testing.T) {
	cps := pingableStore{err: errors.New("redis gone")}
	s := testServer(t, nil, stubProgress{}, stubPinger{}, cps)

	rec := get(t, s, "/healthz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health["checkpoints"])
}

func TestProgressServesTheBoard(t *testing.T) {
	board := stubProgress{reports: []domain.SourceReport{
		{SourceID: "express", MediaName: "Indian Express", Ingested: 42, LastCheckpoint: "2024-05-01"},
	}}
	s := testServer(t, nil, board, stubPinger{}, nil)

	rec := get(t, s, "/api/progress")

	require.Equal(t, http.StatusOK, rec.Code)
	var reports []domain.SourceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "express", reports[0].SourceID)
	assert.Equal(t, 42, reports[0].Ingested)
}

func TestSourcesIncludeCheckpointState(t *testing.T) {
	fs, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Advance(context.Background(), "express", "2024-05-03"))

	cfg := &config.Config{
		Engine: config.EngineConfig{ListenAddr: ":0"},
		Sources: []config.SourceConfig{
			{ID: "express", MediaName: "Indian Express", Strategy: config.StrategyArchiveHTML, Enabled: true},
			{ID: "jagran", MediaName: "Jagran", Strategy: config.StrategyPaginatedAPI},
		},
	}
	s := testServer(t, cfg, stubProgress{}, stubPinger{}, fs)

	rec := get(t, s, "/api/sources")

	require.Equal(t, http.StatusOK, rec.Code)
	var sources []sourceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, 2)

	assert.Equal(t, "express", sources[0].ID)
	assert.True(t, sources[0].Enabled)
	assert.Equal(t, "2024-05-03", sources[0].LastUnit)
	require.NotNil(t, sources[0].CheckpointedAt)

	assert.Equal(t, "jagran", sources[1].ID)
	assert.False(t, sources[1].Enabled)
	assert.Empty(t, sources[1].LastUnit)
	assert.Nil(t, sources[1].CheckpointedAt)
}

func TestMetricsExposition(t *testing.T) {
	s := testServer(t, nil, stubProgress{}, stubPinger{}, nil)
	s.metrics.IncUnitCompleted("express")

	rec := get(t, s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newsingest_units_completed_total")
}
