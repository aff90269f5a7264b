// Package rice turns a release's theme signals and detection flags into a
// ranked RICE priority backlog.
package rice

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/releasepulse/internal/detect"
	"github.com/fyrsmithlabs/releasepulse/internal/signal"
)

const (
	// EffortMin and EffortMax bound the valid effort scale.
	EffortMin = 1
	EffortMax = 5

	// flagBoost multiplies impact once per active detection flag.
	flagBoost = 1.2
)

// ErrInvalidEffort indicates an effort value outside [EffortMin, EffortMax].
var ErrInvalidEffort = errors.New("effort out of range")

// ThemeEffortError reports a theme that could not be scored for lack of a
// valid effort estimate. The rest of the backlog is unaffected.
type ThemeEffortError struct {
	ThemeID string
}

func (e *ThemeEffortError) Error() string {
	return fmt.Sprintf("theme %s: no effort estimate", e.ThemeID)
}

// Item is one scored backlog entry.
type Item struct {
	ThemeID      string
	Release      string
	Reach        float64
	Impact       float64
	Confidence   float64
	Effort       int
	Score        float64
	IsRegression bool
	IsPersistent bool
}

// Scorer computes RICE scores against a per-theme effort table.
type Scorer struct {
	effort map[string]int
}

// NewScorer validates the effort table and returns a scorer. Every value
// must be an integer in [1, 5]; entries for unknown themes are harmless.
func NewScorer(effort map[string]int) (*Scorer, error) {
	for themeID, e := range effort {
		if e < EffortMin || e > EffortMax {
			return nil, fmt.Errorf("%w: theme %s has effort %d, want %d..%d",
				ErrInvalidEffort, themeID, e, EffortMin, EffortMax)
		}
	}
	return &Scorer{effort: effort}, nil
}

// ScoreRelease ranks one release's themes.
//
// Reach blends pain share and review share: 0.6·normalized_signal +
// 0.4·volume_ratio, clamped to [0, 1], where volume_ratio is the theme's
// review count over the release's largest per-theme review count. Impact is
// star-rating displeasure (5 − avg)/4 boosted ×1.2 per active flag.
// Confidence is 0.7·volume_ratio + 0.3 when persistent. Score = R·I·C/Effort.
//
// Themes without a valid effort estimate are skipped and reported as
// ThemeEffortError values; they never poison the remaining backlog. Items
// come back ordered by score descending, then reach descending, then theme
// id ascending.
func (s *Scorer) ScoreRelease(release string, rows []signal.ReleaseThemeSignal, flags []detect.Flag) ([]Item, []error) {
	flagByTheme := make(map[string]detect.Flag)
	for _, f := range flags {
		if f.Release == release {
			flagByTheme[f.ThemeID] = f
		}
	}

	maxCount := 0
	for _, row := range rows {
		if row.Release == release && row.ReviewCount > maxCount {
			maxCount = row.ReviewCount
		}
	}

	var (
		items []Item
		errs  []error
	)
	for _, row := range rows {
		if row.Release != release {
			continue
		}

		effort, ok := s.effort[row.ThemeID]
		if !ok || effort < EffortMin || effort > EffortMax {
			errs = append(errs, &ThemeEffortError{ThemeID: row.ThemeID})
			continue
		}

		volumeRatio := 0.0
		if maxCount > 0 {
			volumeRatio = float64(row.ReviewCount) / float64(maxCount)
		}

		reach := clamp01(0.6*row.NormalizedSignal + 0.4*volumeRatio)

		f := flagByTheme[row.ThemeID]
		impact := (5 - row.AvgRating) / 4
		if f.IsRegression {
			impact *= flagBoost
		}
		if f.IsPersistent {
			impact *= flagBoost
		}

		confidence := 0.7 * volumeRatio
		if f.IsPersistent {
			confidence += 0.3
		}

		items = append(items, Item{
			ThemeID:      row.ThemeID,
			Release:      release,
			Reach:        reach,
			Impact:       impact,
			Confidence:   confidence,
			Effort:       effort,
			Score:        reach * impact * confidence / float64(effort),
			IsRegression: f.IsRegression,
			IsPersistent: f.IsPersistent,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Reach != items[j].Reach {
			return items[i].Reach > items[j].Reach
		}
		return items[i].ThemeID < items[j].ThemeID
	})
	return items, errs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
