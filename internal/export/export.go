// Package export writes pipeline artifacts as CSV files with the column
// names downstream notebooks and dashboards already consume.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fyrsmithlabs/releasepulse/internal/cluster"
	"github.com/fyrsmithlabs/releasepulse/internal/pipeline"
)

// File names of the export set.
const (
	ReviewsFile     = "reviews_multilabel.csv"
	SignalsFile     = "theme_version_signal.csv"
	PersistenceFile = "theme_persistence.csv"
	BacklogFile     = "priority_backlog.csv"
)

// UnthemedLabel marks reviews that matched no theme.
const UnthemedLabel = "unthemed"

// WriteAll writes the full export set into dir, creating it if needed.
func WriteAll(dir string, a *pipeline.Artifacts) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir %s: %w", dir, err)
	}

	writers := []struct {
		name  string
		write func(*csv.Writer, *pipeline.Artifacts) error
	}{
		{ReviewsFile, writeReviews},
		{SignalsFile, writeSignals},
		{PersistenceFile, writePersistence},
		{BacklogFile, writeBacklog},
	}
	for _, w := range writers {
		if err := writeFile(filepath.Join(dir, w.name), a, w.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, a *pipeline.Artifacts, write func(*csv.Writer, *pipeline.Artifacts) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := write(w, a); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// writeReviews emits one row per review-theme edge; reviews that matched no
// theme get a single row labeled unthemed.
func writeReviews(w *csv.Writer, a *pipeline.Artifacts) error {
	if err := w.Write([]string{"review_id", "RC_ver", "score", "thumbs_up", "content", "final_weight", "theme_label", "similarity"}); err != nil {
		return err
	}

	labels := themeLabels(a.Themes)
	edges := make(map[string][]cluster.Assignment, len(a.Reviews))
	for _, as := range a.Assignments {
		edges[as.ReviewID] = append(edges[as.ReviewID], as)
	}

	for _, wr := range a.Reviews {
		base := []string{
			wr.ID,
			wr.Release,
			strconv.Itoa(wr.Rating),
			strconv.Itoa(wr.ThumbsUp),
			wr.Text,
			ffloat(wr.Weights.Final),
		}
		assigned := edges[wr.ID]
		if len(assigned) == 0 {
			if err := w.Write(append(base, UnthemedLabel, "")); err != nil {
				return err
			}
			continue
		}
		for _, as := range assigned {
			row := append(append([]string(nil), base...), labels[as.ThemeID], ffloat(float64(as.Similarity)))
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSignals(w *csv.Writer, a *pipeline.Artifacts) error {
	if err := w.Write([]string{"RC_ver", "theme_label", "Signal", "Normalized_Signal", "Review_Count", "Avg_Rating", "Delta", "Is_Regression", "Is_Persistent"}); err != nil {
		return err
	}

	labels := themeLabels(a.Themes)
	flags := flagIndex(a)
	for _, row := range a.Signals {
		f := flags[row.Release+"\x00"+row.ThemeID]
		delta := ""
		if f.HasPrior {
			delta = ffloat(f.Delta)
		}
		if err := w.Write([]string{
			row.Release,
			labels[row.ThemeID],
			ffloat(row.Signal),
			ffloat(row.NormalizedSignal),
			strconv.Itoa(row.ReviewCount),
			ffloat(row.AvgRating),
			delta,
			fbool(f.IsRegression),
			fbool(f.IsPersistent),
		}); err != nil {
			return err
		}
	}
	return nil
}

// writePersistence gives the final per-theme verdict: the persistence flag
// at the last release each theme appears in.
func writePersistence(w *csv.Writer, a *pipeline.Artifacts) error {
	if err := w.Write([]string{"theme_label", "Is_Persistent"}); err != nil {
		return err
	}

	flags := flagIndex(a)
	latest := make(map[string]bool, len(a.Themes))
	for _, row := range a.Signals {
		// Signals come in release order, so the last row wins.
		latest[row.ThemeID] = flags[row.Release+"\x00"+row.ThemeID].IsPersistent
	}
	for _, t := range a.Themes {
		persistent, seen := latest[t.ID]
		if !seen {
			persistent = false
		}
		if err := w.Write([]string{t.Label, fbool(persistent)}); err != nil {
			return err
		}
	}
	return nil
}

func writeBacklog(w *csv.Writer, a *pipeline.Artifacts) error {
	if err := w.Write([]string{"rank", "RC_ver", "theme_label", "Reach", "Impact", "Confidence", "Effort", "Priority_Score", "Is_Regression", "Is_Persistent"}); err != nil {
		return err
	}

	labels := themeLabels(a.Themes)
	for i, item := range a.Backlog {
		if err := w.Write([]string{
			strconv.Itoa(i + 1),
			item.Release,
			labels[item.ThemeID],
			ffloat(item.Reach),
			ffloat(item.Impact),
			ffloat(item.Confidence),
			strconv.Itoa(item.Effort),
			ffloat(item.Score),
			fbool(item.IsRegression),
			fbool(item.IsPersistent),
		}); err != nil {
			return err
		}
	}
	return nil
}

func themeLabels(themes []cluster.Theme) map[string]string {
	labels := make(map[string]string, len(themes))
	for _, t := range themes {
		labels[t.ID] = t.Label
	}
	return labels
}

func flagIndex(a *pipeline.Artifacts) map[string]detectFlag {
	out := make(map[string]detectFlag, len(a.Flags))
	for _, f := range a.Flags {
		out[f.Release+"\x00"+f.ThemeID] = detectFlag{
			Delta:        f.Delta,
			HasPrior:     f.HasPrior,
			IsRegression: f.IsRegression,
			IsPersistent: f.IsPersistent,
		}
	}
	return out
}

type detectFlag struct {
	Delta        float64
	HasPrior     bool
	IsRegression bool
	IsPersistent bool
}

func ffloat(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func fbool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
