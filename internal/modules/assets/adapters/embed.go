package adapters

import (
	"context"
	"strings"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/huggingface"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/openai"
	"github.com/yungbote/imagerag/internal/platform/rediscache"
)

// DefaultDimension matches all-mpnet-base-v2 and the default index.
const DefaultDimension = 768

type embedFunc func(ctx context.Context, text string) ([]float32, error)

// Embedder turns caption or query text into a fixed-length vector.
type Embedder struct {
	model string
	dim   int
	embed embedFunc
}

func (e *Embedder) Dimension() int { return e.dim }

func (e *Embedder) Model() string { return e.model }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.EmbeddingError("embed", nil, "text is empty")
	}
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, types.EmbeddingError("embed", err, "model %s failed", e.model)
	}
	if len(vec) != e.dim {
		return nil, types.EmbeddingError("embed", nil, "model %s returned %d dimensions, want %d", e.model, len(vec), e.dim)
	}
	return vec, nil
}

func NewHuggingFaceEmbedder(c huggingface.Client, dim int) *Embedder {
	return &Embedder{model: c.Model(), dim: orDefaultDim(dim), embed: c.FeatureExtraction}
}

func NewOpenAIEmbedder(c openai.Client, model string, dim int) *Embedder {
	return &Embedder{
		model: model,
		dim:   orDefaultDim(dim),
		embed: func(ctx context.Context, text string) ([]float32, error) {
			vecs, err := c.Embed(ctx, []string{text})
			if err != nil {
				return nil, err
			}
			if len(vecs) != 1 {
				return nil, types.EmbeddingError("embed", nil, "expected 1 vector, got %d", len(vecs))
			}
			return vecs[0], nil
		},
	}
}

func orDefaultDim(dim int) int {
	if dim <= 0 {
		return DefaultDimension
	}
	return dim
}

// CachedEmbedder serves repeated texts from Redis. Cache failures fall through to the model.
type CachedEmbedder struct {
	log   *logger.Logger
	inner *Embedder
	cache rediscache.EmbeddingCache
}

func NewCachedEmbedder(log *logger.Logger, inner *Embedder, cache rediscache.EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{log: log.With("component", "CachedEmbedder"), inner: inner, cache: cache}
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if key == "" {
		return c.inner.Embed(ctx, text)
	}
	vec, ok, err := c.cache.Get(ctx, c.inner.Model(), key)
	switch {
	case err != nil:
		c.log.Warn("embedding cache read failed", "error", err)
		observeCache("error")
	case ok && len(vec) == c.inner.Dimension():
		observeCache("hit")
		return vec, nil
	default:
		observeCache("miss")
	}
	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, c.inner.Model(), key, vec); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func observeCache(result string) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveEmbedCache(result)
	}
}
