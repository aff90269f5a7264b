package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/releasepulse/internal/embeddings"

// Metrics holds embedding-related instruments. Instrument creation failures
// degrade to nil instruments rather than failing the pipeline.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
	cacheHits metric.Int64Counter
	cacheMiss metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for embeddings.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"releasepulse.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of embedding generation in seconds, labeled by operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"releasepulse.embedding.batch_size",
		metric.WithDescription("Number of texts per embedding batch request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"releasepulse.embedding.errors_total",
		metric.WithDescription("Total embedding generation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.cacheHits, err = m.meter.Int64Counter(
		"releasepulse.embedding.cache_hits_total",
		metric.WithDescription("Embedding cache hits"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache hit counter", zap.Error(err))
	}

	m.cacheMiss, err = m.meter.Int64Counter(
		"releasepulse.embedding.cache_misses_total",
		metric.WithDescription("Embedding cache misses"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache miss counter", zap.Error(err))
	}
}

// RecordGeneration records embedding generation metrics.
func (m *Metrics) RecordGeneration(ctx context.Context, operation string, duration time.Duration, batchSize int, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordCache records cache hit/miss counts for one batch.
func (m *Metrics) RecordCache(ctx context.Context, hits, misses int) {
	if hits > 0 && m.cacheHits != nil {
		m.cacheHits.Add(ctx, int64(hits))
	}
	if misses > 0 && m.cacheMiss != nil {
		m.cacheMiss.Add(ctx, int64(misses))
	}
}
