package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/releasepulse/internal/config"
	"github.com/fyrsmithlabs/releasepulse/internal/review"
)

// keywordProvider embeds texts onto fixed axes by keyword, giving the
// clusterer trivially separable input without a model download.
type keywordProvider struct{}

func (keywordProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		switch {
		case strings.Contains(text, "crash"):
			out[i] = []float32{1, 0.05, 0}
		case strings.Contains(text, "sync"):
			out[i] = []float32{0.05, 1, 0}
		default:
			out[i] = []float32{0, 0.05, 1}
		}
	}
	return out, nil
}

func (p keywordProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (keywordProvider) Dimension() int { return 3 }
func (keywordProvider) Close() error   { return nil }

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Themes:                2,
		SimilarityThreshold:   0.35,
		RegressionThreshold:   0.05,
		PersistenceThreshold:  0.15,
		MinPersistentReleases: 3,
		Seed:                  42,
		MaxIterations:         50,
		Effort:                map[string]int{"theme_0": 2, "theme_1": 3},
	}
}

func testReviews() []review.Review {
	return []review.Review{
		{ID: "r1", Text: "app crash on open", Rating: 1, ThumbsUp: 5, Release: "1.0.0"},
		{ID: "r2", Text: "another crash report", Rating: 2, ThumbsUp: 1, Release: "1.0.0"},
		{ID: "r3", Text: "sync takes forever", Rating: 2, ThumbsUp: 0, Release: "1.0.0"},
		{ID: "r4", Text: "crash when saving", Rating: 1, ThumbsUp: 2, Release: "1.1.0"},
		{ID: "r5", Text: "sync still broken", Rating: 2, ThumbsUp: 3, Release: "1.1.0"},
		{ID: "r6", Text: "sync never finishes", Rating: 1, ThumbsUp: 0, Release: "1.1.0"},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	p := New(testConfig(), keywordProvider{}, nil)
	artifacts, err := p.Run(context.Background(), testReviews())
	require.NoError(t, err)

	assert.Equal(t, []string{"1.0.0", "1.1.0"}, artifacts.Releases)
	require.Len(t, artifacts.Themes, 2)
	assert.Len(t, artifacts.Reviews, 6)

	// Every review is weighted and embedded.
	for _, wr := range artifacts.Reviews {
		assert.Greater(t, wr.Weights.Final, 0.0)
		assert.Len(t, wr.Embedding, 3)
	}

	// Crash and sync reviews land in different themes.
	themeOf := make(map[string]string)
	for _, a := range artifacts.Assignments {
		themeOf[a.ReviewID] = a.ThemeID
	}
	assert.Equal(t, themeOf["r1"], themeOf["r2"])
	assert.Equal(t, themeOf["r3"], themeOf["r5"])
	assert.NotEqual(t, themeOf["r1"], themeOf["r3"])

	// Both releases produce signal rows and the latest gets a backlog.
	assert.NotEmpty(t, artifacts.Signals)
	require.NotEmpty(t, artifacts.Backlog)
	assert.Equal(t, "1.1.0", artifacts.Backlog[0].Release)
	assert.Empty(t, artifacts.BacklogErrors)
}

func TestRun_Deterministic(t *testing.T) {
	first, err := New(testConfig(), keywordProvider{}, nil).Run(context.Background(), testReviews())
	require.NoError(t, err)
	second, err := New(testConfig(), keywordProvider{}, nil).Run(context.Background(), testReviews())
	require.NoError(t, err)

	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, first.Backlog, second.Backlog)
	for i := range first.Themes {
		assert.Equal(t, first.Themes[i].Centroid, second.Themes[i].Centroid)
	}
}

func TestRun_ThemeLabels(t *testing.T) {
	cfg := testConfig()
	cfg.ThemeLabels = []string{"crashes", "sync"}

	artifacts, err := New(cfg, keywordProvider{}, nil).Run(context.Background(), testReviews())
	require.NoError(t, err)
	assert.Equal(t, "crashes", artifacts.Themes[0].Label)
	assert.Equal(t, "sync", artifacts.Themes[1].Label)
}

func TestRun_MissingEffortReported(t *testing.T) {
	cfg := testConfig()
	cfg.Effort = map[string]int{"theme_0": 2}

	artifacts, err := New(cfg, keywordProvider{}, nil).Run(context.Background(), testReviews())
	require.NoError(t, err)
	assert.Len(t, artifacts.BacklogErrors, 1)
	assert.Len(t, artifacts.Backlog, 1)
}

func TestRun_EmptyInput(t *testing.T) {
	_, err := New(testConfig(), keywordProvider{}, nil).Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRun_FewerReviewsThanThemes(t *testing.T) {
	_, err := New(testConfig(), keywordProvider{}, nil).Run(context.Background(), []review.Review{
		{ID: "r1", Text: "crash", Rating: 1, Release: "1.0.0"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clustering")
}
