package steps

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type RetrieveDeps struct {
	Log      *logger.Logger
	Embedder Embedder
	Index    VectorIndex
	// MaxTopK rejects larger requests when > 0.
	MaxTopK int
}

type RetrieveInput struct {
	Query  string
	TopK   int
	Filter Filter
}

type RetrieveOutput struct {
	Matches []types.QueryMatch `json:"matches"`
	// Degraded is set when the query could not be embedded and the empty result stands in
	// for "no matches".
	Degraded bool `json:"degraded,omitempty"`
}

// Retrieve embeds the query and returns the index's nearest records in the index's order.
// A non-positive TopK is rejected before any adapter is called. An embedding failure yields
// an empty result rather than an error; index failures propagate.
func Retrieve(ctx context.Context, deps RetrieveDeps, in RetrieveInput) (RetrieveOutput, error) {
	if in.TopK <= 0 {
		return RetrieveOutput{}, types.InvalidArgument("retrieve", "top_k must be a positive integer, got %d", in.TopK)
	}
	if deps.MaxTopK > 0 && in.TopK > deps.MaxTopK {
		return RetrieveOutput{}, types.InvalidArgument("retrieve", "top_k must be at most %d, got %d", deps.MaxTopK, in.TopK)
	}
	if deps.Log == nil || deps.Embedder == nil || deps.Index == nil {
		return RetrieveOutput{}, fmt.Errorf("retrieve: missing deps")
	}
	ctx = ctxutil.Default(ctx)
	log := deps.Log.With("request_id", ctxutil.RequestID(ctx))

	ctx, span := observability.Tracer().Start(ctx, "assets.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieve.top_k", in.TopK), attribute.Bool("retrieve.filtered", !in.Filter.Empty()))

	start := time.Now()
	observe := func(outcome string) {
		span.SetAttributes(attribute.String("retrieve.outcome", outcome))
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveRetrieval(outcome, time.Since(start))
		}
	}

	vec, err := deps.Embedder.Embed(ctx, in.Query)
	if err == nil && len(vec) != deps.Embedder.Dimension() {
		err = types.EmbeddingError("embedder.embed", nil, "vector dimension mismatch: expected=%d got=%d", deps.Embedder.Dimension(), len(vec))
	}
	if err != nil {
		log.Warn("query embedding failed; returning no matches", "kind", types.KindOf(err), "error", err)
		observe("degraded")
		return RetrieveOutput{Matches: []types.QueryMatch{}, Degraded: true}, nil
	}

	hits, err := deps.Index.Query(ctx, vec, in.TopK, in.Filter)
	if err != nil {
		observe("error")
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "index query failed")
		return RetrieveOutput{}, ensureKind(err, types.KindIndex, "index.query")
	}
	if len(hits) > in.TopK {
		hits = hits[:in.TopK]
	}

	matches := make([]types.QueryMatch, 0, len(hits))
	for i, h := range hits {
		matches = append(matches, toQueryMatch(h, i+1))
	}
	if len(matches) == 0 {
		observe("empty")
	} else {
		observe("ok")
	}
	log.Debug("retrieve done", "matches", len(matches), "top_k", in.TopK)
	return RetrieveOutput{Matches: matches}, nil
}

func toQueryMatch(h types.IndexMatch, rank int) types.QueryMatch {
	return types.QueryMatch{
		ID:          h.ID,
		FileLocator: h.Metadata.FilePath,
		FileName:    h.Metadata.FileName,
		Caption:     h.Metadata.Caption,
		Score:       clampScore(h.Score),
		Rank:        rank,
	}
}

// clampScore maps raw cosine similarity onto [0,1]; clamping keeps the index order intact.
func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
