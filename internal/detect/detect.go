// Package detect flags regression and persistence on the per-release theme
// signal surface.
package detect

import (
	"github.com/fyrsmithlabs/releasepulse/internal/signal"
)

// Defaults for the detection thresholds.
const (
	DefaultRegressionThreshold  = 0.05
	DefaultPersistenceThreshold = 0.15
	DefaultMinPersistentCount   = 3
)

// Flag is the detection verdict for one theme at one release.
type Flag struct {
	Release string
	ThemeID string
	// IsRegression is true when the normalized signal rose by more than the
	// regression threshold versus the immediately preceding release.
	IsRegression bool
	// IsPersistent is true when, as of this release, the theme has exceeded
	// the persistence threshold in at least the configured release count.
	IsPersistent bool
	// Delta is the normalized-signal change versus the immediately
	// preceding release; meaningful only when HasPrior is true.
	Delta float64
	// HasPrior is false for the first release in the ordering and for any
	// release whose immediate predecessor carries no data point for this
	// theme. No delta is defined in either case, so IsRegression is false.
	HasPrior bool
}

// Detector holds detection thresholds. The zero value is not usable;
// construct with New.
type Detector struct {
	// RegressionThreshold is the minimum normalized-signal increase versus
	// the previous release that counts as a regression (strictly greater).
	RegressionThreshold float64
	// PersistenceThreshold is the normalized-signal floor a release must
	// exceed (strictly greater) to count toward persistence.
	PersistenceThreshold float64
	// MinPersistentCount is how many qualifying releases make a theme
	// persistent.
	MinPersistentCount int
}

// New returns a Detector with the standard thresholds.
func New() Detector {
	return Detector{
		RegressionThreshold:  DefaultRegressionThreshold,
		PersistenceThreshold: DefaultPersistenceThreshold,
		MinPersistentCount:   DefaultMinPersistentCount,
	}
}

// Scan evaluates every (release, theme) signal row against both detectors.
//
// releaseOrder must be the full chronological release ordering so the
// "immediately preceding release" is globally defined, not merely the
// previous release a theme happened to appear in. Persistence is evaluated
// as-of each release: a theme crossing the qualifying count at release N is
// flagged persistent at N and every later release it appears in. Output
// order mirrors the input rows.
func (d Detector) Scan(rows []signal.ReleaseThemeSignal, releaseOrder []string) []Flag {
	prevRelease := make(map[string]string, len(releaseOrder))
	for i := 1; i < len(releaseOrder); i++ {
		prevRelease[releaseOrder[i]] = releaseOrder[i-1]
	}
	releaseIdx := make(map[string]int, len(releaseOrder))
	for i, r := range releaseOrder {
		releaseIdx[r] = i
	}

	// (theme, release) -> normalized signal, for predecessor lookups.
	norm := make(map[string]map[string]float64)
	for _, row := range rows {
		byRelease := norm[row.ThemeID]
		if byRelease == nil {
			byRelease = make(map[string]float64)
			norm[row.ThemeID] = byRelease
		}
		byRelease[row.Release] = row.NormalizedSignal
	}

	// Running exceedance counts, keyed by theme, accumulated in release
	// order so the as-of semantics fall out naturally.
	exceed := make(map[string]int)
	type key struct {
		theme   string
		release string
	}
	exceedAsOf := make(map[key]int)
	for _, release := range releaseOrder {
		for themeID, byRelease := range norm {
			v, ok := byRelease[release]
			if !ok {
				continue
			}
			if v > d.PersistenceThreshold {
				exceed[themeID]++
			}
			exceedAsOf[key{themeID, release}] = exceed[themeID]
		}
	}

	flags := make([]Flag, 0, len(rows))
	for _, row := range rows {
		f := Flag{Release: row.Release, ThemeID: row.ThemeID}

		if prev, ok := prevRelease[row.Release]; ok {
			if prevSignal, ok := norm[row.ThemeID][prev]; ok {
				f.HasPrior = true
				f.Delta = row.NormalizedSignal - prevSignal
				f.IsRegression = f.Delta > d.RegressionThreshold
			}
		}

		f.IsPersistent = exceedAsOf[key{row.ThemeID, row.Release}] >= d.MinPersistentCount

		if _, ok := releaseIdx[row.Release]; !ok {
			// Row for a release outside the ordering carries no verdicts.
			f = Flag{Release: row.Release, ThemeID: row.ThemeID}
		}
		flags = append(flags, f)
	}
	return flags
}
