package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CachedProvider wraps a Provider with a content-addressed cache. Only cache
// misses hit the backend; results are returned in input order. A backend
// failure fails the whole batch so no partial embedding matrix ever reaches
// the clusterer.
type CachedProvider struct {
	inner   Provider
	cache   Cache
	logger  *zap.Logger
	metrics *Metrics
}

// NewCachedProvider wraps inner with cache.
func NewCachedProvider(inner Provider, cache Cache, logger *zap.Logger) (*CachedProvider, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: provider required", ErrInvalidConfig)
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:   inner,
		cache:   cache,
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// EmbedDocuments embeds texts, serving repeats from the cache.
func (p *CachedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = CacheKey(text)
		if vec, ok := p.cache.Get(ctx, keys[i]); ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	p.metrics.RecordCache(ctx, len(texts)-len(missIdx), len(missIdx))

	if len(missIdx) > 0 {
		computed, err := p.inner.EmbedDocuments(ctx, missTexts)
		if err != nil {
			genErr = err
			return nil, err
		}
		if len(computed) != len(missTexts) {
			genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(computed), len(missTexts))
			return nil, genErr
		}
		for j, i := range missIdx {
			vectors[i] = computed[j]
			if err := p.cache.Put(ctx, keys[i], texts[i], computed[j]); err != nil {
				// Cache population is best-effort; the vectors are already in hand.
				p.logger.Warn("failed to cache embedding", zap.String("key", keys[i]), zap.Error(err))
			}
		}
	}

	p.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missIdx)),
		zap.Int("computed", len(missIdx)))

	return vectors, nil
}

// EmbedQuery embeds a single text through the cache.
func (p *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the wrapped provider's dimension.
func (p *CachedProvider) Dimension() int {
	return p.inner.Dimension()
}

// Close closes the wrapped provider.
func (p *CachedProvider) Close() error {
	return p.inner.Close()
}
