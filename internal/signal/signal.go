// Package signal aggregates weighted, themed reviews into the per-release
// pain surface the detectors and scorer consume.
package signal

import (
	"sort"

	"github.com/fyrsmithlabs/releasepulse/internal/cluster"
)

// ReviewPain is the per-review slice of pipeline state this package needs.
// Keeping it narrow avoids coupling aggregation to upstream types.
type ReviewPain struct {
	ReviewID    string
	Release     string
	Rating      int
	FinalWeight float64
}

// ReleaseThemeSignal is the pain measurement for one theme in one release.
type ReleaseThemeSignal struct {
	Release string
	ThemeID string
	// Signal is the sum of final weights of the theme's reviews in this
	// release. A multi-theme review contributes its full weight to each.
	Signal float64
	// NormalizedSignal is Signal divided by the release's total across
	// themes, so one release's values sum to 1 (modulo float error).
	NormalizedSignal float64
	// ReviewCount is the number of distinct reviews behind the signal.
	ReviewCount int
	// AvgRating is the plain (unweighted) mean star rating of those reviews.
	AvgRating float64
}

// Aggregate rolls assignments up into per-release, per-theme signals.
//
// Releases with zero themed reviews produce no rows at all, and a theme
// absent from a release likewise has no row (absence is not a zero). Output
// ordering is release order as given, then theme id ascending, so repeated
// runs over the same input are byte-identical downstream.
func Aggregate(pains []ReviewPain, assignments []cluster.Assignment, releaseOrder []string) []ReleaseThemeSignal {
	byReview := make(map[string]ReviewPain, len(pains))
	for _, p := range pains {
		byReview[p.ReviewID] = p
	}

	type cell struct {
		signal    float64
		count     int
		ratingSum int
	}
	cells := make(map[string]map[string]*cell)
	for _, a := range assignments {
		p, ok := byReview[a.ReviewID]
		if !ok {
			continue
		}
		themes := cells[p.Release]
		if themes == nil {
			themes = make(map[string]*cell)
			cells[p.Release] = themes
		}
		c := themes[a.ThemeID]
		if c == nil {
			c = &cell{}
			themes[a.ThemeID] = c
		}
		c.signal += p.FinalWeight
		c.count++
		c.ratingSum += p.Rating
	}

	var out []ReleaseThemeSignal
	for _, release := range releaseOrder {
		themes := cells[release]
		if len(themes) == 0 {
			continue
		}

		total := 0.0
		for _, c := range themes {
			total += c.signal
		}

		ids := make([]string, 0, len(themes))
		for id := range themes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			c := themes[id]
			normalized := 0.0
			if total > 0 {
				normalized = c.signal / total
			}
			out = append(out, ReleaseThemeSignal{
				Release:          release,
				ThemeID:          id,
				Signal:           c.signal,
				NormalizedSignal: normalized,
				ReviewCount:      c.count,
				AvgRating:        float64(c.ratingSum) / float64(c.count),
			})
		}
	}
	return out
}
