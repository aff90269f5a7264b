// Package weighting turns raw reviews into scalar pain weights.
//
// A review's final weight is the product of three strictly positive
// multipliers: severity (inverted rating), impact (thumbs-up engagement) and
// volume (release sample size). Corpus-wide maxima are computed once up
// front and passed explicitly; nothing in this package carries mutable state.
package weighting

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/releasepulse/internal/review"
)

// ErrEmptyCorpus indicates corpus stats were computed over zero reviews.
var ErrEmptyCorpus = errors.New("empty corpus")

// CorpusStats holds the batch-wide aggregates the weighting formulas need.
// Computed once per pipeline run, immutable afterwards.
type CorpusStats struct {
	MaxThumbsUp          int
	ReviewsPerRelease    map[string]int
	MaxReviewsPerRelease int
}

// ComputeCorpusStats does the single pre-pass over the full input batch.
func ComputeCorpusStats(reviews []review.Review) (CorpusStats, error) {
	if len(reviews) == 0 {
		return CorpusStats{}, ErrEmptyCorpus
	}

	stats := CorpusStats{
		ReviewsPerRelease: make(map[string]int),
	}
	for _, r := range reviews {
		if r.ThumbsUp > stats.MaxThumbsUp {
			stats.MaxThumbsUp = r.ThumbsUp
		}
		stats.ReviewsPerRelease[r.Release]++
	}
	for _, n := range stats.ReviewsPerRelease {
		if n > stats.MaxReviewsPerRelease {
			stats.MaxReviewsPerRelease = n
		}
	}
	return stats, nil
}

// Weights holds the per-review weight components.
// Final = Severity * Impact * Volume and is strictly positive.
type Weights struct {
	Severity float64
	Impact   float64
	Volume   float64
	Final    float64
}

// Engine computes pain weights against a fixed set of corpus stats.
type Engine struct {
	stats  CorpusStats
	logger *zap.Logger
}

// NewEngine creates a weighting engine. The stats must come from the same
// batch the engine will weigh.
func NewEngine(stats CorpusStats, logger *zap.Logger) (*Engine, error) {
	if stats.MaxReviewsPerRelease == 0 {
		return nil, fmt.Errorf("invalid corpus stats: %w", ErrEmptyCorpus)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{stats: stats, logger: logger}, nil
}

// Weigh computes the weight components for one review.
//
// Ratings outside 1..5 are clamped with a warning rather than failing the
// row; ingestion already drops such rows, so a clamp here only fires for
// reviews constructed programmatically.
func (e *Engine) Weigh(r review.Review) (Weights, error) {
	rating := r.Rating
	if rating < 1 || rating > 5 {
		clamped := rating
		if clamped < 1 {
			clamped = 1
		} else if clamped > 5 {
			clamped = 5
		}
		e.logger.Warn("clamping out-of-range rating",
			zap.String("review_id", r.ID),
			zap.Int("rating", rating),
			zap.Int("clamped", clamped))
		rating = clamped
	}

	w := Weights{
		Severity: float64(6 - rating),
		Impact:   1,
		Volume:   0,
	}
	if e.stats.MaxThumbsUp > 0 {
		w.Impact = 1 + float64(r.ThumbsUp)/float64(e.stats.MaxThumbsUp)
	}

	count, ok := e.stats.ReviewsPerRelease[r.Release]
	if !ok || count == 0 {
		return Weights{}, fmt.Errorf("weighting review %s: release %q not in corpus stats", r.ID, r.Release)
	}
	w.Volume = float64(count) / float64(e.stats.MaxReviewsPerRelease)

	w.Final = w.Severity * w.Impact * w.Volume
	return w, nil
}
