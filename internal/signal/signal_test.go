package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/releasepulse/internal/cluster"
)

func TestAggregate(t *testing.T) {
	pains := []ReviewPain{
		{ReviewID: "a", Release: "1.0.0", Rating: 1, FinalWeight: 4},
		{ReviewID: "b", Release: "1.0.0", Rating: 2, FinalWeight: 2},
		{ReviewID: "c", Release: "1.0.0", Rating: 5, FinalWeight: 2},
		{ReviewID: "d", Release: "1.1.0", Rating: 3, FinalWeight: 3},
	}
	assignments := []cluster.Assignment{
		{ReviewID: "a", ThemeID: "theme_0"},
		{ReviewID: "b", ThemeID: "theme_0"},
		{ReviewID: "c", ThemeID: "theme_1"},
		{ReviewID: "d", ThemeID: "theme_1"},
	}

	rows := Aggregate(pains, assignments, []string{"1.0.0", "1.1.0"})
	require.Len(t, rows, 3)

	assert.Equal(t, ReleaseThemeSignal{
		Release:          "1.0.0",
		ThemeID:          "theme_0",
		Signal:           6,
		NormalizedSignal: 0.75,
		ReviewCount:      2,
		AvgRating:        1.5,
	}, rows[0])
	assert.Equal(t, "theme_1", rows[1].ThemeID)
	assert.InDelta(t, 0.25, rows[1].NormalizedSignal, 1e-9)

	// The only theme in 1.1.0 owns the whole release signal.
	assert.Equal(t, "1.1.0", rows[2].Release)
	assert.InDelta(t, 1.0, rows[2].NormalizedSignal, 1e-9)
}

// One release's normalized signals must sum to 1 regardless of how many
// themes each review belongs to.
func TestAggregate_NormalizedSumsToOne(t *testing.T) {
	pains := []ReviewPain{
		{ReviewID: "a", Release: "1.0.0", Rating: 1, FinalWeight: 3.7},
		{ReviewID: "b", Release: "1.0.0", Rating: 2, FinalWeight: 1.2},
		{ReviewID: "c", Release: "1.0.0", Rating: 4, FinalWeight: 0.4},
	}
	// Review a belongs to two themes and contributes full weight to both.
	assignments := []cluster.Assignment{
		{ReviewID: "a", ThemeID: "theme_0"},
		{ReviewID: "a", ThemeID: "theme_2"},
		{ReviewID: "b", ThemeID: "theme_1"},
		{ReviewID: "c", ThemeID: "theme_2"},
	}

	rows := Aggregate(pains, assignments, []string{"1.0.0"})
	require.Len(t, rows, 3)

	sum := 0.0
	for _, row := range rows {
		sum += row.NormalizedSignal
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Full weight in each theme, not a split.
	assert.InDelta(t, 3.7, rows[0].Signal, 1e-9)
	assert.InDelta(t, 3.7+0.4, rows[2].Signal, 1e-9)
}

func TestAggregate_SkipsEmptyReleases(t *testing.T) {
	pains := []ReviewPain{
		{ReviewID: "a", Release: "1.0.0", Rating: 2, FinalWeight: 1},
	}
	assignments := []cluster.Assignment{
		{ReviewID: "a", ThemeID: "theme_0"},
	}

	rows := Aggregate(pains, assignments, []string{"1.0.0", "1.1.0", "1.2.0"})
	require.Len(t, rows, 1)
	assert.Equal(t, "1.0.0", rows[0].Release)
}

func TestAggregate_UnthemedReviewsExcluded(t *testing.T) {
	pains := []ReviewPain{
		{ReviewID: "a", Release: "1.0.0", Rating: 1, FinalWeight: 5},
		{ReviewID: "b", Release: "1.0.0", Rating: 3, FinalWeight: 2},
	}
	// Review b matched no theme and has no assignment edge.
	assignments := []cluster.Assignment{
		{ReviewID: "a", ThemeID: "theme_0"},
	}

	rows := Aggregate(pains, assignments, []string{"1.0.0"})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].ReviewCount)
	assert.InDelta(t, 5, rows[0].Signal, 1e-9)
}

func TestAggregate_DeterministicOrder(t *testing.T) {
	pains := []ReviewPain{
		{ReviewID: "a", Release: "1.0.0", Rating: 1, FinalWeight: 1},
		{ReviewID: "b", Release: "1.0.0", Rating: 1, FinalWeight: 1},
		{ReviewID: "c", Release: "1.0.0", Rating: 1, FinalWeight: 1},
	}
	assignments := []cluster.Assignment{
		{ReviewID: "c", ThemeID: "theme_2"},
		{ReviewID: "a", ThemeID: "theme_0"},
		{ReviewID: "b", ThemeID: "theme_1"},
	}

	first := Aggregate(pains, assignments, []string{"1.0.0"})
	second := Aggregate(pains, assignments, []string{"1.0.0"})
	assert.Equal(t, first, second)
	assert.Equal(t, "theme_0", first[0].ThemeID)
	assert.Equal(t, "theme_1", first[1].ThemeID)
	assert.Equal(t, "theme_2", first[2].ThemeID)
}
