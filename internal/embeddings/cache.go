package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/releasepulse/internal/review"
)

// Cache stores embedding vectors keyed by content hash. Implementations must
// be safe for concurrent readers and writers; entries are content-addressed,
// so concurrent writes for the same key are equal and last-write-wins is
// acceptable.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key, text string, vector []float32) error
}

// CacheKey derives the content-addressed cache key for a review text:
// sha256 over the normalized text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(review.NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is a process-lifetime in-memory cache.
type MemoryCache struct {
	entries sync.Map
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached vector for key, if present.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.([]float32), true
}

// Put stores the vector for key.
func (c *MemoryCache) Put(_ context.Context, key, _ string, vector []float32) error {
	c.entries.Store(key, vector)
	return nil
}

const cacheCollection = "review_embeddings"

// ChromemCache persists embeddings across pipeline runs in an embedded
// chromem-go database. Documents carry precomputed vectors; the embedding
// function is never invoked.
type ChromemCache struct {
	collection *chromem.Collection
}

// NewChromemCache opens (or creates) a persistent cache at path.
func NewChromemCache(path string) (*ChromemCache, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: cache path required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem cache: %w", err)
	}

	collection, err := db.GetOrCreateCollection(cacheCollection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating cache collection: %w", err)
	}
	return &ChromemCache{collection: collection}, nil
}

// rejectEmbeddingFunc guards against chromem computing embeddings itself;
// the cache only ever stores vectors produced by the pipeline's provider.
func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding cache is write-through with precomputed vectors")
}

// Get returns the persisted vector for key, if present.
func (c *ChromemCache) Get(ctx context.Context, key string) ([]float32, bool) {
	doc, err := c.collection.GetByID(ctx, key)
	if err != nil {
		return nil, false
	}
	return doc.Embedding, true
}

// Put persists the vector for key. The normalized text rides along as
// document content so the cache can be inspected by hand.
func (c *ChromemCache) Put(ctx context.Context, key, text string, vector []float32) error {
	return c.collection.AddDocument(ctx, chromem.Document{
		ID:        key,
		Content:   review.NormalizeText(text),
		Embedding: vector,
	})
}
