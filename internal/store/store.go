// Package store persists pipeline artifacts to SQLite and serves the query
// surface behind the CLI and HTTP API.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/releasepulse/internal/detect"
	"github.com/fyrsmithlabs/releasepulse/internal/pipeline"
)

// ErrNoRun indicates the database holds no pipeline run yet.
var ErrNoRun = errors.New("no pipeline run stored")

// Store wraps the SQLite database holding the latest pipeline run.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&ReviewRecord{},
		&ThemeRecord{},
		&AssignmentRecord{},
		&SignalRecord{},
		&BacklogRecord{},
		&ReleaseRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, log: logger}, nil
}

// DB exposes the underlying handle, mainly for tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveArtifacts replaces the stored run with a new one in a single
// transaction, so readers never observe a half-written run.
func (s *Store) SaveArtifacts(ctx context.Context, a *pipeline.Artifacts) error {
	flagByKey := make(map[string]detect.Flag, len(a.Flags))
	for _, f := range a.Flags {
		flagByKey[f.Release+"\x00"+f.ThemeID] = f
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&BacklogRecord{}, &SignalRecord{}, &AssignmentRecord{},
			&ThemeRecord{}, &ReviewRecord{}, &ReleaseRecord{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("failed to clear previous run: %w", err)
			}
		}

		releases := make([]ReleaseRecord, len(a.Releases))
		for i, r := range a.Releases {
			releases[i] = ReleaseRecord{Position: i + 1, Release: r}
		}
		if err := tx.Create(&releases).Error; err != nil {
			return fmt.Errorf("failed to save releases: %w", err)
		}

		reviews := make([]ReviewRecord, len(a.Reviews))
		for i, wr := range a.Reviews {
			reviews[i] = ReviewRecord{
				ID:          wr.ID,
				Release:     wr.Release,
				Content:     wr.Text,
				Rating:      wr.Rating,
				ThumbsUp:    wr.ThumbsUp,
				CreatedAt:   wr.CreatedAt,
				Severity:    wr.Weights.Severity,
				Impact:      wr.Weights.Impact,
				Volume:      wr.Weights.Volume,
				FinalWeight: wr.Weights.Final,
			}
		}
		if err := tx.CreateInBatches(&reviews, 500).Error; err != nil {
			return fmt.Errorf("failed to save reviews: %w", err)
		}

		themes := make([]ThemeRecord, len(a.Themes))
		for i, t := range a.Themes {
			themes[i] = ThemeRecord{ID: t.ID, Label: t.Label}
		}
		if err := tx.Create(&themes).Error; err != nil {
			return fmt.Errorf("failed to save themes: %w", err)
		}

		if len(a.Assignments) > 0 {
			assignments := make([]AssignmentRecord, len(a.Assignments))
			for i, as := range a.Assignments {
				assignments[i] = AssignmentRecord{
					ReviewID:   as.ReviewID,
					ThemeID:    as.ThemeID,
					Similarity: float64(as.Similarity),
				}
			}
			if err := tx.CreateInBatches(&assignments, 500).Error; err != nil {
				return fmt.Errorf("failed to save assignments: %w", err)
			}
		}

		if len(a.Signals) > 0 {
			signals := make([]SignalRecord, len(a.Signals))
			for i, row := range a.Signals {
				f := flagByKey[row.Release+"\x00"+row.ThemeID]
				signals[i] = SignalRecord{
					Release:          row.Release,
					ThemeID:          row.ThemeID,
					Signal:           row.Signal,
					NormalizedSignal: row.NormalizedSignal,
					ReviewCount:      row.ReviewCount,
					AvgRating:        row.AvgRating,
					Delta:            f.Delta,
					IsRegression:     f.IsRegression,
					IsPersistent:     f.IsPersistent,
				}
			}
			if err := tx.CreateInBatches(&signals, 500).Error; err != nil {
				return fmt.Errorf("failed to save signals: %w", err)
			}
		}

		if len(a.Backlog) > 0 {
			backlog := make([]BacklogRecord, len(a.Backlog))
			for i, item := range a.Backlog {
				backlog[i] = BacklogRecord{
					Rank:         i + 1,
					Release:      item.Release,
					ThemeID:      item.ThemeID,
					Reach:        item.Reach,
					Impact:       item.Impact,
					Confidence:   item.Confidence,
					Effort:       item.Effort,
					Score:        item.Score,
					IsRegression: item.IsRegression,
					IsPersistent: item.IsPersistent,
				}
			}
			if err := tx.Create(&backlog).Error; err != nil {
				return fmt.Errorf("failed to save backlog: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("pipeline run persisted",
		zap.Int("reviews", len(a.Reviews)),
		zap.Int("releases", len(a.Releases)),
		zap.Int("signals", len(a.Signals)),
		zap.Int("backlog_items", len(a.Backlog)))
	return nil
}

// Releases returns the stored release ordering, oldest first.
func (s *Store) Releases(ctx context.Context) ([]string, error) {
	var records []ReleaseRecord
	if err := s.db.WithContext(ctx).Order("position").Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRun
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Release
	}
	return out, nil
}

// Themes returns all themes ordered by id.
func (s *Store) Themes(ctx context.Context) ([]ThemeRecord, error) {
	var themes []ThemeRecord
	if err := s.db.WithContext(ctx).Order("theme_id").Find(&themes).Error; err != nil {
		return nil, err
	}
	return themes, nil
}

// Backlog returns the top n backlog entries, or all of them when n <= 0.
func (s *Store) Backlog(ctx context.Context, n int) ([]BacklogRecord, error) {
	q := s.db.WithContext(ctx).Order("rank")
	if n > 0 {
		q = q.Limit(n)
	}
	var items []BacklogRecord
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ThemeSignalHistory returns one theme's signal rows in release order.
func (s *Store) ThemeSignalHistory(ctx context.Context, themeID string) ([]SignalRecord, error) {
	var rows []SignalRecord
	err := s.db.WithContext(ctx).
		Joins("JOIN releases ON releases.rc_ver = theme_version_signals.rc_ver").
		Where("theme_version_signals.theme_id = ?", themeID).
		Order("releases.position").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RegressionsForRelease returns themes flagged as regressing at a release,
// worst delta first.
func (s *Store) RegressionsForRelease(ctx context.Context, release string) ([]SignalRecord, error) {
	var rows []SignalRecord
	err := s.db.WithContext(ctx).
		Where("rc_ver = ? AND is_regression = ?", release, true).
		Order("delta DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PersistentThemes returns themes persistent as of the latest release they
// appear in.
func (s *Store) PersistentThemes(ctx context.Context) ([]SignalRecord, error) {
	var rows []SignalRecord
	err := s.db.WithContext(ctx).
		Where(`(rc_ver, theme_id) IN (
			SELECT s.rc_ver, s.theme_id FROM theme_version_signals s
			JOIN releases r ON r.rc_ver = s.rc_ver
			JOIN (
				SELECT s2.theme_id, MAX(r2.position) AS pos
				FROM theme_version_signals s2
				JOIN releases r2 ON r2.rc_ver = s2.rc_ver
				GROUP BY s2.theme_id
			) latest ON latest.theme_id = s.theme_id AND latest.pos = r.position
		) AND is_persistent = ?`, true).
		Order("normalized_signal DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopThemeReviews returns a theme's highest-weight reviews, optionally
// limited to one release.
func (s *Store) TopThemeReviews(ctx context.Context, themeID, release string, limit int) ([]ReviewRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.db.WithContext(ctx).
		Joins("JOIN review_themes ON review_themes.review_id = reviews.review_id").
		Where("review_themes.theme_id = ?", themeID).
		Order("reviews.final_weight DESC").
		Limit(limit)
	if release != "" {
		q = q.Where("reviews.rc_ver = ?", release)
	}
	var reviews []ReviewRecord
	if err := q.Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

// ReleaseSummary returns every theme's signal row at one release, strongest
// normalized signal first.
func (s *Store) ReleaseSummary(ctx context.Context, release string) ([]SignalRecord, error) {
	var rows []SignalRecord
	err := s.db.WithContext(ctx).
		Where("rc_ver = ?", release).
		Order("normalized_signal DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
