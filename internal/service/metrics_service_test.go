package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

func TestMetricsSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/quiz.html", http.StatusOK, 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/quiz.html", http.StatusOK, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordFetch(models.SourceNetwork)
	m.RecordFetch(models.SourceNetwork)
	m.RecordFetch(models.SourceOfflinePage)
	m.RecordSweep(SweepOutcomeComplete)
	m.RecordSweep(SweepOutcomeFailed)
	m.SetConnectedClients(3)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.001)
	assert.EqualValues(t, 2, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.0001)
	assert.Equal(t, map[string]uint64{"network": 2, "offline-page": 1}, snap.FetchSources)
	assert.EqualValues(t, 1, snap.SweepsCompleted)
	assert.EqualValues(t, 1, snap.SweepsFailed)
	assert.Equal(t, 3, snap.ConnectedClients)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordFetch(models.SourceCache)
	m.SetSweepProgress(4, 9)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `offline_fetch_total{source="cache"} 1`)
	assert.Contains(t, body, "offline_sweep_total_assets 9")
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordFetch(models.SourceNetwork)
	m.RecordSweep(SweepOutcomeComplete)
	m.SetConnectedClients(1)
	assert.Equal(t, models.MetricsSnapshot{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
