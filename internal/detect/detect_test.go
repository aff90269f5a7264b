package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/releasepulse/internal/signal"
)

func row(release, theme string, normalized float64) signal.ReleaseThemeSignal {
	return signal.ReleaseThemeSignal{Release: release, ThemeID: theme, NormalizedSignal: normalized}
}

func flagFor(t *testing.T, flags []Flag, release, theme string) Flag {
	t.Helper()
	for _, f := range flags {
		if f.Release == release && f.ThemeID == theme {
			return f
		}
	}
	t.Fatalf("no flag for %s/%s", release, theme)
	return Flag{}
}

func TestScan_Regression(t *testing.T) {
	tests := []struct {
		name string
		prev float64
		curr float64
		want bool
	}{
		{name: "jump over threshold", prev: 0.10, curr: 0.20, want: true},
		{name: "small rise under threshold", prev: 0.10, curr: 0.14, want: false},
		{name: "rise of exactly threshold", prev: 0.10, curr: 0.15, want: false},
		{name: "decline", prev: 0.20, curr: 0.10, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []signal.ReleaseThemeSignal{
				row("1.0.0", "theme_0", tt.prev),
				row("1.1.0", "theme_0", tt.curr),
			}
			flags := New().Scan(rows, []string{"1.0.0", "1.1.0"})

			f := flagFor(t, flags, "1.1.0", "theme_0")
			assert.Equal(t, tt.want, f.IsRegression)
			assert.True(t, f.HasPrior)
			assert.InDelta(t, tt.curr-tt.prev, f.Delta, 1e-9)
		})
	}
}

func TestScan_FirstReleaseNeverRegression(t *testing.T) {
	rows := []signal.ReleaseThemeSignal{
		row("1.0.0", "theme_0", 0.9),
	}
	flags := New().Scan(rows, []string{"1.0.0"})

	f := flagFor(t, flags, "1.0.0", "theme_0")
	assert.False(t, f.IsRegression)
	assert.False(t, f.HasPrior)
}

// A theme absent from the immediately preceding release has no defined
// delta; reappearing with a big signal is not a regression.
func TestScan_GapInHistoryHasNoDelta(t *testing.T) {
	rows := []signal.ReleaseThemeSignal{
		row("1.0.0", "theme_0", 0.05),
		row("1.2.0", "theme_0", 0.40),
	}
	flags := New().Scan(rows, []string{"1.0.0", "1.1.0", "1.2.0"})

	f := flagFor(t, flags, "1.2.0", "theme_0")
	assert.False(t, f.HasPrior)
	assert.False(t, f.IsRegression)
}

func TestScan_Persistence(t *testing.T) {
	rows := []signal.ReleaseThemeSignal{
		row("1.0.0", "theme_0", 0.16),
		row("1.1.0", "theme_0", 0.18),
		row("1.2.0", "theme_0", 0.20),
	}
	flags := New().Scan(rows, []string{"1.0.0", "1.1.0", "1.2.0"})

	// Third qualifying release crosses the count.
	assert.False(t, flagFor(t, flags, "1.0.0", "theme_0").IsPersistent)
	assert.False(t, flagFor(t, flags, "1.1.0", "theme_0").IsPersistent)
	assert.True(t, flagFor(t, flags, "1.2.0", "theme_0").IsPersistent)
}

func TestScan_PersistenceThresholdIsStrict(t *testing.T) {
	rows := []signal.ReleaseThemeSignal{
		row("1.0.0", "theme_0", 0.15),
		row("1.1.0", "theme_0", 0.15),
		row("1.2.0", "theme_0", 0.15),
	}
	flags := New().Scan(rows, []string{"1.0.0", "1.1.0", "1.2.0"})
	// Exactly at the threshold never qualifies.
	assert.False(t, flagFor(t, flags, "1.2.0", "theme_0").IsPersistent)
}

func TestScan_PersistenceSurvivesQuietReleases(t *testing.T) {
	rows := []signal.ReleaseThemeSignal{
		row("1.0.0", "theme_0", 0.20),
		row("1.1.0", "theme_0", 0.05),
		row("1.2.0", "theme_0", 0.20),
		row("1.3.0", "theme_0", 0.20),
		row("1.4.0", "theme_0", 0.01),
	}
	order := []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0", "1.4.0"}
	flags := New().Scan(rows, order)

	// Qualifying releases need not be consecutive.
	assert.False(t, flagFor(t, flags, "1.2.0", "theme_0").IsPersistent)
	assert.True(t, flagFor(t, flags, "1.3.0", "theme_0").IsPersistent)
	// Once qualified, the flag holds for later releases too.
	assert.True(t, flagFor(t, flags, "1.4.0", "theme_0").IsPersistent)
}

func TestScan_ThemesIndependent(t *testing.T) {
	rows := []signal.ReleaseThemeSignal{
		row("1.0.0", "theme_0", 0.30),
		row("1.0.0", "theme_1", 0.01),
		row("1.1.0", "theme_0", 0.40),
		row("1.1.0", "theme_1", 0.02),
	}
	flags := New().Scan(rows, []string{"1.0.0", "1.1.0"})
	require.Len(t, flags, 4)

	assert.True(t, flagFor(t, flags, "1.1.0", "theme_0").IsRegression)
	assert.False(t, flagFor(t, flags, "1.1.0", "theme_1").IsRegression)
}

func TestNew_Defaults(t *testing.T) {
	d := New()
	assert.Equal(t, DefaultRegressionThreshold, d.RegressionThreshold)
	assert.Equal(t, DefaultPersistenceThreshold, d.PersistenceThreshold)
	assert.Equal(t, DefaultMinPersistentCount, d.MinPersistentCount)
}
