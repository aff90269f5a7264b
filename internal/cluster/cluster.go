// Package cluster partitions weighted review embeddings into a fixed set of
// semantic themes.
//
// Fitting runs Lloyd's k-means over L2-normalized vectors with a fixed
// seed, recomputing each centroid as the final-weight-weighted mean of its
// members so painful reviews pull centroids harder: identical input, k and
// seed produce identical centroids. Assignment is a separate, multi-label
// pass: a review joins
// every theme whose centroid cosine similarity meets the threshold, and may
// legally join zero ("unthemed") or all k.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	// ErrTooFewVectors indicates fewer observations than requested themes.
	ErrTooFewVectors = errors.New("fewer vectors than themes")

	// ErrDimensionMismatch indicates input vectors of differing dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidConfig indicates invalid clustering configuration.
	ErrInvalidConfig = errors.New("invalid clustering configuration")
)

// Theme is one discovered semantic cluster. The centroid is L2-normalized
// and immutable after fitting; the display label is attached at the output
// boundary and empty until then.
type Theme struct {
	ID       string
	Label    string
	Centroid []float32
}

// ThemeID formats the canonical id for theme index i.
func ThemeID(i int) string {
	return fmt.Sprintf("theme_%d", i)
}

// Assignment is one edge of the review↔theme many-to-many relation.
type Assignment struct {
	ReviewID   string
	ThemeID    string
	Similarity float32
}

// Config holds clustering parameters.
type Config struct {
	// K is the number of themes. Default 6.
	K int
	// Seed fixes the centroid initialization for reproducible runs.
	Seed int64
	// MaxIterations caps Lloyd iterations; hitting the cap is not an error.
	MaxIterations int
}

// FitResult is the outcome of one clustering fit.
type FitResult struct {
	Themes []Theme
	// Converged is false when the iteration cap was hit before assignments
	// stabilized; the best-seen centroids are still returned.
	Converged  bool
	Iterations int
}

// Fit clusters the weighted embeddings into cfg.K themes.
//
// Each observation is the L2-normalized embedding; its final weight enters
// the centroid update, where each centroid becomes the weighted mean of its
// members, so high-pain reviews pull centroids toward themselves without
// distorting the assignment geometry. Centroid initialization draws k
// distinct observations with a seeded PRNG; iteration stops when
// assignments stop changing or the cap is reached, returning the
// lowest-error centroids seen.
func Fit(vectors [][]float32, weights []float64, cfg Config) (FitResult, error) {
	if cfg.K < 1 {
		return FitResult{}, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, cfg.K)
	}
	if cfg.MaxIterations < 1 {
		return FitResult{}, fmt.Errorf("%w: max iterations must be >= 1, got %d", ErrInvalidConfig, cfg.MaxIterations)
	}
	if len(vectors) != len(weights) {
		return FitResult{}, fmt.Errorf("%w: %d vectors, %d weights", ErrInvalidConfig, len(vectors), len(weights))
	}
	if len(vectors) < cfg.K {
		return FitResult{}, fmt.Errorf("%w: %d vectors for k=%d", ErrTooFewVectors, len(vectors), cfg.K)
	}

	dim := len(vectors[0])
	observations := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return FitResult{}, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		observations[i] = normalize(v)
	}

	centroids := initCentroids(observations, cfg.K, cfg.Seed)

	var (
		prev       = make([]int, len(observations))
		curr       = make([]int, len(observations))
		bestError  = math.MaxFloat64
		best       = cloneCentroids(centroids)
		converged  = false
		iterations = 0
	)
	for i := range prev {
		prev[i] = -1
	}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		iterations = iter + 1

		totalError := 0.0
		for i, o := range observations {
			idx, dist := nearestCentroid(o, centroids)
			curr[i] = idx
			totalError += dist
		}

		if totalError < bestError {
			bestError = totalError
			best = cloneCentroids(centroids)
		}

		if equalAssignments(prev, curr) {
			converged = true
			break
		}
		prev, curr = curr, prev

		centroids = recomputeCentroids(observations, weights, prev, centroids, cfg.K, dim)
	}

	themes := make([]Theme, cfg.K)
	for i, c := range best {
		themes[i] = Theme{ID: ThemeID(i), Centroid: c}
	}
	return FitResult{Themes: themes, Converged: converged, Iterations: iterations}, nil
}

// Assign computes the multi-label theme memberships for one embedding. The
// raw (unweighted) embedding is compared against every centroid; themes at
// or above the threshold are included. An empty result is a valid outcome.
func Assign(reviewID string, embedding []float32, themes []Theme, threshold float64) []Assignment {
	var out []Assignment
	for _, theme := range themes {
		sim := CosineSimilarity(embedding, theme.Centroid)
		if float64(sim) >= threshold {
			out = append(out, Assignment{
				ReviewID:   reviewID,
				ThemeID:    theme.ID,
				Similarity: sim,
			})
		}
	}
	return out
}

// CosineSimilarity computes cosine similarity between two vectors.
//
// Formula: cos(θ) = (A · B) / (||A|| * ||B||), in [-1, 1].
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (magA * magB))
}

// initCentroids picks k distinct observations as starting centroids using a
// seeded PRNG so runs are reproducible.
func initCentroids(observations [][]float32, k int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(observations))

	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), observations[perm[i]]...)
	}
	return centroids
}

// nearestCentroid returns the index of and squared Euclidean distance to the
// closest centroid. On normalized vectors this ordering matches cosine.
func nearestCentroid(o []float32, centroids [][]float32) (int, float64) {
	bestIdx := 0
	bestDist := math.MaxFloat64
	for j, c := range centroids {
		dist := 0.0
		for i := range o {
			d := float64(o[i]) - float64(c[i])
			dist += d * d
		}
		if dist < bestDist {
			bestDist = dist
			bestIdx = j
		}
	}
	return bestIdx, bestDist
}

// recomputeCentroids sets each centroid to the normalized weighted mean of
// its members, Σ w_i·o_i / Σ w_i, so member weight determines pull. A
// cluster that lost all members keeps its previous centroid.
func recomputeCentroids(observations [][]float32, weights []float64, assignments []int, centroids [][]float32, k, dim int) [][]float32 {
	sums := make([][]float64, k)
	weightSums := make([]float64, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, o := range observations {
		c := assignments[i]
		weightSums[c] += weights[i]
		for d := range o {
			sums[c][d] += weights[i] * float64(o[d])
		}
	}

	next := make([][]float32, k)
	for c := 0; c < k; c++ {
		if weightSums[c] == 0 {
			next[c] = centroids[c]
			continue
		}
		mean := make([]float32, dim)
		for d := 0; d < dim; d++ {
			mean[d] = float32(sums[c][d] / weightSums[c])
		}
		next[c] = normalize(mean)
	}
	return next
}

func normalize(v []float32) []float32 {
	var mag float64
	for _, x := range v {
		mag += float64(x) * float64(x)
	}
	mag = math.Sqrt(mag)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(float64(v[i]) / mag)
	}
	return out
}

func cloneCentroids(centroids [][]float32) [][]float32 {
	out := make([][]float32, len(centroids))
	for i, c := range centroids {
		out[i] = append([]float32(nil), c...)
	}
	return out
}

func equalAssignments(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
