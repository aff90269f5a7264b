package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/releasepulse/internal/cluster"
	"github.com/fyrsmithlabs/releasepulse/internal/detect"
	"github.com/fyrsmithlabs/releasepulse/internal/pipeline"
	"github.com/fyrsmithlabs/releasepulse/internal/review"
	"github.com/fyrsmithlabs/releasepulse/internal/rice"
	"github.com/fyrsmithlabs/releasepulse/internal/signal"
	"github.com/fyrsmithlabs/releasepulse/internal/weighting"
)

func sampleArtifacts() *pipeline.Artifacts {
	return &pipeline.Artifacts{
		Reviews: []pipeline.WeightedReview{
			{
				Review:  review.Review{ID: "r1", Text: "app crashes", Rating: 1, ThumbsUp: 3, Release: "1.0.0"},
				Weights: weighting.Weights{Final: 5.0},
			},
			{
				Review:  review.Review{ID: "r2", Text: "nice colors", Rating: 5, Release: "1.0.0"},
				Weights: weighting.Weights{Final: 1.0},
			},
		},
		Releases: []string{"1.0.0"},
		Themes: []cluster.Theme{
			{ID: "theme_0", Label: "crashes"},
			{ID: "theme_1", Label: "ui"},
		},
		Assignments: []cluster.Assignment{
			{ReviewID: "r1", ThemeID: "theme_0", Similarity: 0.8},
		},
		Signals: []signal.ReleaseThemeSignal{
			{Release: "1.0.0", ThemeID: "theme_0", Signal: 5, NormalizedSignal: 1, ReviewCount: 1, AvgRating: 1},
		},
		Flags: []detect.Flag{
			{Release: "1.0.0", ThemeID: "theme_0"},
		},
		Backlog: []rice.Item{
			{ThemeID: "theme_0", Release: "1.0.0", Reach: 0.8, Impact: 1.0, Confidence: 0.4, Effort: 2, Score: 0.16},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, sampleArtifacts()))

	for _, name := range []string{ReviewsFile, SignalsFile, PersistenceFile, BacklogFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err)
	}
}

func TestWriteReviews(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, sampleArtifacts()))

	rows := readCSV(t, filepath.Join(dir, ReviewsFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"review_id", "RC_ver", "score", "thumbs_up", "content", "final_weight", "theme_label", "similarity"}, rows[0])

	assert.Equal(t, "r1", rows[1][0])
	assert.Equal(t, "crashes", rows[1][6])

	// r2 matched nothing and shows up once as unthemed.
	assert.Equal(t, "r2", rows[2][0])
	assert.Equal(t, UnthemedLabel, rows[2][6])
	assert.Equal(t, "", rows[2][7])
}

func TestWriteSignals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, sampleArtifacts()))

	rows := readCSV(t, filepath.Join(dir, SignalsFile))
	require.Len(t, rows, 2)
	assert.Equal(t, "RC_ver", rows[0][0])
	assert.Equal(t, "1.0.0", rows[1][0])
	assert.Equal(t, "crashes", rows[1][1])
	// First release has no prior, so the delta column stays empty.
	assert.Equal(t, "", rows[1][6])
	assert.Equal(t, "False", rows[1][7])
}

func TestWritePersistence_CoversAllThemes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, sampleArtifacts()))

	rows := readCSV(t, filepath.Join(dir, PersistenceFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"crashes", "False"}, rows[1])
	// A theme with no signal rows is still listed, as not persistent.
	assert.Equal(t, []string{"ui", "False"}, rows[2])
}

func TestWriteBacklog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, sampleArtifacts()))

	rows := readCSV(t, filepath.Join(dir, BacklogFile))
	require.Len(t, rows, 2)
	assert.Equal(t, "rank", rows[0][0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "crashes", rows[1][2])
	assert.Equal(t, "0.160000", rows[1][7])
}
