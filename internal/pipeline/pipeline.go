// Package pipeline runs the full analysis: weighting, embedding,
// clustering, per-release aggregation, detection, and RICE scoring.
package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/releasepulse/internal/cluster"
	"github.com/fyrsmithlabs/releasepulse/internal/config"
	"github.com/fyrsmithlabs/releasepulse/internal/detect"
	"github.com/fyrsmithlabs/releasepulse/internal/embeddings"
	"github.com/fyrsmithlabs/releasepulse/internal/review"
	"github.com/fyrsmithlabs/releasepulse/internal/rice"
	"github.com/fyrsmithlabs/releasepulse/internal/signal"
	"github.com/fyrsmithlabs/releasepulse/internal/weighting"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/releasepulse/internal/pipeline"

	// embedBatchSize is the number of texts per embedding call.
	embedBatchSize = 64
	// embedWorkers bounds concurrent embedding calls.
	embedWorkers = 4
)

// WeightedReview is a review carrying its computed weights and embedding.
type WeightedReview struct {
	review.Review
	Weights   weighting.Weights
	Embedding []float32
}

// Artifacts is everything one pipeline run produces. All slices are in
// deterministic order for a given input and seed.
type Artifacts struct {
	Reviews     []WeightedReview
	Releases    []string
	Themes      []cluster.Theme
	Assignments []cluster.Assignment
	Signals     []signal.ReleaseThemeSignal
	Flags       []detect.Flag
	// Backlog is the ranked priority backlog for the latest release.
	Backlog []rice.Item
	// BacklogErrors holds per-theme scoring failures (missing effort);
	// they do not fail the run.
	BacklogErrors []error
}

// Pipeline wires the analysis stages together.
type Pipeline struct {
	cfg      config.PipelineConfig
	provider embeddings.Provider
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a pipeline. The provider is typically an embeddings cache
// wrapping the real backend.
func New(cfg config.PipelineConfig, provider embeddings.Provider, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
}

// Run executes every stage over already-ingested reviews.
func (p *Pipeline) Run(ctx context.Context, reviews []review.Review) (*Artifacts, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("reviews", len(reviews))))
	defer span.End()

	if len(reviews) == 0 {
		return nil, fmt.Errorf("no reviews to analyze")
	}

	weighted, releases, err := p.weigh(ctx, reviews)
	if err != nil {
		return nil, err
	}

	if err := p.embed(ctx, weighted); err != nil {
		return nil, err
	}

	themes, assignments, err := p.clusterStage(ctx, weighted)
	if err != nil {
		return nil, err
	}

	signals := p.aggregate(ctx, weighted, assignments, releases)
	flags := p.detectStage(ctx, signals, releases)

	backlog, backlogErrs, err := p.score(ctx, signals, flags, releases)
	if err != nil {
		return nil, err
	}

	p.logger.Info("pipeline run complete",
		zap.Int("reviews", len(weighted)),
		zap.Int("releases", len(releases)),
		zap.Int("themes", len(themes)),
		zap.Int("assignments", len(assignments)),
		zap.Int("backlog_items", len(backlog)))

	return &Artifacts{
		Reviews:       weighted,
		Releases:      releases,
		Themes:        themes,
		Assignments:   assignments,
		Signals:       signals,
		Flags:         flags,
		Backlog:       backlog,
		BacklogErrors: backlogErrs,
	}, nil
}

func (p *Pipeline) weigh(ctx context.Context, reviews []review.Review) ([]WeightedReview, []string, error) {
	_, span := p.tracer.Start(ctx, "pipeline.weigh")
	defer span.End()

	stats, err := weighting.ComputeCorpusStats(reviews)
	if err != nil {
		return nil, nil, fmt.Errorf("weighting: %w", err)
	}
	engine, err := weighting.NewEngine(stats, p.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("weighting: %w", err)
	}

	weighted := make([]WeightedReview, 0, len(reviews))
	for _, r := range reviews {
		w, err := engine.Weigh(r)
		if err != nil {
			return nil, nil, fmt.Errorf("weighting review %s: %w", r.ID, err)
		}
		weighted = append(weighted, WeightedReview{Review: r, Weights: w})
	}

	releases := review.Releases(reviews)
	review.SortReleases(releases)
	return weighted, releases, nil
}

// embed fills in embeddings batch by batch, a bounded number of batches in
// flight. Results land by index so output order never depends on scheduling.
func (p *Pipeline) embed(ctx context.Context, weighted []WeightedReview) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.embed",
		trace.WithAttributes(attribute.Int("batch_size", embedBatchSize)))
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)

	for start := 0; start < len(weighted); start += embedBatchSize {
		end := min(start+embedBatchSize, len(weighted))
		batch := weighted[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, wr := range batch {
				texts[i] = wr.Text
			}
			vectors, err := p.provider.EmbedDocuments(ctx, texts)
			if err != nil {
				return fmt.Errorf("embedding batch: %w", err)
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) clusterStage(ctx context.Context, weighted []WeightedReview) ([]cluster.Theme, []cluster.Assignment, error) {
	_, span := p.tracer.Start(ctx, "pipeline.cluster",
		trace.WithAttributes(attribute.Int("k", p.cfg.Themes)))
	defer span.End()

	vectors := make([][]float32, len(weighted))
	finalWeights := make([]float64, len(weighted))
	for i, wr := range weighted {
		vectors[i] = wr.Embedding
		finalWeights[i] = wr.Weights.Final
	}

	result, err := cluster.Fit(vectors, finalWeights, cluster.Config{
		K:             p.cfg.Themes,
		Seed:          p.cfg.Seed,
		MaxIterations: p.cfg.MaxIterations,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clustering: %w", err)
	}
	if !result.Converged {
		p.logger.Warn("clustering did not converge, using best iteration",
			zap.Int("iterations", result.Iterations))
	}

	themes := result.Themes
	for i := range themes {
		if i < len(p.cfg.ThemeLabels) {
			themes[i].Label = p.cfg.ThemeLabels[i]
		} else {
			themes[i].Label = themes[i].ID
		}
	}

	var assignments []cluster.Assignment
	unthemed := 0
	for _, wr := range weighted {
		a := cluster.Assign(wr.ID, wr.Embedding, themes, p.cfg.SimilarityThreshold)
		if len(a) == 0 {
			unthemed++
			continue
		}
		assignments = append(assignments, a...)
	}
	if unthemed > 0 {
		p.logger.Debug("reviews matched no theme", zap.Int("count", unthemed))
	}
	return themes, assignments, nil
}

func (p *Pipeline) aggregate(ctx context.Context, weighted []WeightedReview, assignments []cluster.Assignment, releases []string) []signal.ReleaseThemeSignal {
	_, span := p.tracer.Start(ctx, "pipeline.aggregate")
	defer span.End()

	pains := make([]signal.ReviewPain, len(weighted))
	for i, wr := range weighted {
		pains[i] = signal.ReviewPain{
			ReviewID:    wr.ID,
			Release:     wr.Release,
			Rating:      wr.Rating,
			FinalWeight: wr.Weights.Final,
		}
	}
	return signal.Aggregate(pains, assignments, releases)
}

func (p *Pipeline) detectStage(ctx context.Context, signals []signal.ReleaseThemeSignal, releases []string) []detect.Flag {
	_, span := p.tracer.Start(ctx, "pipeline.detect")
	defer span.End()

	d := detect.Detector{
		RegressionThreshold:  p.cfg.RegressionThreshold,
		PersistenceThreshold: p.cfg.PersistenceThreshold,
		MinPersistentCount:   p.cfg.MinPersistentReleases,
	}
	return d.Scan(signals, releases)
}

func (p *Pipeline) score(ctx context.Context, signals []signal.ReleaseThemeSignal, flags []detect.Flag, releases []string) ([]rice.Item, []error, error) {
	_, span := p.tracer.Start(ctx, "pipeline.score")
	defer span.End()

	scorer, err := rice.NewScorer(p.cfg.Effort)
	if err != nil {
		return nil, nil, fmt.Errorf("scoring: %w", err)
	}

	latest := releases[len(releases)-1]
	backlog, errs := scorer.ScoreRelease(latest, signals, flags)
	for _, e := range errs {
		p.logger.Warn("theme skipped in backlog", zap.Error(e))
	}
	return backlog, errs, nil
}
