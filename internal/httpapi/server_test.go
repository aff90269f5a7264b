package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/releasepulse/internal/cluster"
	"github.com/fyrsmithlabs/releasepulse/internal/detect"
	"github.com/fyrsmithlabs/releasepulse/internal/pipeline"
	"github.com/fyrsmithlabs/releasepulse/internal/review"
	"github.com/fyrsmithlabs/releasepulse/internal/rice"
	"github.com/fyrsmithlabs/releasepulse/internal/signal"
	"github.com/fyrsmithlabs/releasepulse/internal/store"
	"github.com/fyrsmithlabs/releasepulse/internal/weighting"
)

func newTestServer(t *testing.T, seed bool) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if seed {
		require.NoError(t, st.SaveArtifacts(context.Background(), seededArtifacts()))
	}

	server, err := NewServer(st, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func seededArtifacts() *pipeline.Artifacts {
	return &pipeline.Artifacts{
		Reviews: []pipeline.WeightedReview{
			{
				Review:  review.Review{ID: "r1", Text: "app crashes", Rating: 1, Release: "1.0.0"},
				Weights: weighting.Weights{Final: 5},
			},
			{
				Review:  review.Review{ID: "r2", Text: "still crashing", Rating: 1, Release: "1.1.0"},
				Weights: weighting.Weights{Final: 6},
			},
		},
		Releases: []string{"1.0.0", "1.1.0"},
		Themes: []cluster.Theme{
			{ID: "theme_0", Label: "crashes"},
		},
		Assignments: []cluster.Assignment{
			{ReviewID: "r1", ThemeID: "theme_0", Similarity: 0.9},
			{ReviewID: "r2", ThemeID: "theme_0", Similarity: 0.85},
		},
		Signals: []signal.ReleaseThemeSignal{
			{Release: "1.0.0", ThemeID: "theme_0", Signal: 5, NormalizedSignal: 0.4, ReviewCount: 1, AvgRating: 1},
			{Release: "1.1.0", ThemeID: "theme_0", Signal: 6, NormalizedSignal: 0.6, ReviewCount: 1, AvgRating: 1},
		},
		Flags: []detect.Flag{
			{Release: "1.0.0", ThemeID: "theme_0"},
			{Release: "1.1.0", ThemeID: "theme_0", HasPrior: true, Delta: 0.2, IsRegression: true},
		},
		Backlog: []rice.Item{
			{ThemeID: "theme_0", Release: "1.1.0", Reach: 0.6, Impact: 1.2, Confidence: 0.5, Effort: 2, Score: 0.18, IsRegression: true},
		},
	}
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, false), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, false), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBacklogEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	rec := get(t, server, "/api/v1/backlog")
	require.Equal(t, http.StatusOK, rec.Code)

	var items []BacklogItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "theme_0", items[0].ThemeID)
	assert.Equal(t, 1, items[0].Rank)
	assert.True(t, items[0].IsRegression)
}

func TestBacklogEndpoint_TopN(t *testing.T) {
	server := newTestServer(t, true)

	rec := get(t, server, "/api/v1/backlog?top_n=1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, server, "/api/v1/backlog?top_n=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, server, "/api/v1/backlog?top_n=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThemesEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, true), "/api/v1/themes")
	require.Equal(t, http.StatusOK, rec.Code)

	var themes []ThemeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &themes))
	require.Len(t, themes, 1)
	assert.Equal(t, "crashes", themes[0].Label)
}

func TestThemeSignalEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	rec := get(t, server, "/api/v1/themes/theme_0/signal")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []SignalRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "1.0.0", rows[0].Release)

	rec = get(t, server, "/api/v1/themes/theme_99/signal")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThemeReviewsEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	rec := get(t, server, "/api/v1/themes/theme_0/reviews?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var reviews []ReviewInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)
	// Heaviest pain first.
	assert.Equal(t, "r2", reviews[0].ID)

	rec = get(t, server, "/api/v1/themes/theme_0/reviews?version=1.0.0")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)
	assert.Equal(t, "r1", reviews[0].ID)
}

func TestRegressionsEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	rec := get(t, server, "/api/v1/releases/1.1.0/regressions")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []SignalRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.2, rows[0].Delta, 1e-9)
}

func TestReleaseSummaryEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	rec := get(t, server, "/api/v1/releases/1.0.0/summary")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, server, "/api/v1/releases/9.9.9/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop(), nil)
	require.Error(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	_, err = NewServer(st, nil, nil)
	require.Error(t, err)
}
