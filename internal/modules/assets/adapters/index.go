package adapters

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/modules/assets/steps"
	"github.com/yungbote/imagerag/internal/platform/pinecone"
)

// VectorIndex stores asset records in one namespace of a vector store.
type VectorIndex struct {
	store     pinecone.VectorStore
	namespace string
	dim       int
}

func NewVectorIndex(store pinecone.VectorStore, namespace string, dim int) *VectorIndex {
	return &VectorIndex{store: store, namespace: strings.TrimSpace(namespace), dim: orDefaultDim(dim)}
}

func (x *VectorIndex) Dimension() int { return x.dim }

func (x *VectorIndex) Upsert(ctx context.Context, rec types.AssetRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return types.IndexError("index.upsert", nil, "record id is empty")
	}
	if len(rec.Vector) != x.dim {
		return types.IndexDimensionError("index.upsert", x.dim, len(rec.Vector))
	}
	err := x.store.Upsert(ctx, x.namespace, []pinecone.Vector{{
		ID:       rec.ID,
		Values:   rec.Vector,
		Metadata: rec.Metadata().ToMap(),
	}})
	if err != nil {
		return classifyIndexErr("index.upsert", x.dim, len(rec.Vector), err)
	}
	return nil
}

func (x *VectorIndex) Query(ctx context.Context, vec []float32, topK int, filter steps.Filter) ([]types.IndexMatch, error) {
	if len(vec) != x.dim {
		return nil, types.IndexDimensionError("index.query", x.dim, len(vec))
	}
	matches, err := x.store.QueryMatches(ctx, x.namespace, vec, topK, filterMap(filter))
	if err != nil {
		return nil, classifyIndexErr("index.query", x.dim, len(vec), err)
	}
	return toIndexMatches(matches), nil
}

func (x *VectorIndex) Fetch(ctx context.Context, ids []string) ([]types.IndexMatch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	matches, err := x.store.FetchVectors(ctx, x.namespace, ids)
	if err != nil {
		return nil, types.IndexError("index.fetch", err, "fetch %d ids", len(ids))
	}
	return toIndexMatches(matches), nil
}

func (x *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.store.DeleteIDs(ctx, x.namespace, ids); err != nil {
		return types.IndexError("index.delete", err, "delete %d ids", len(ids))
	}
	return nil
}

func (x *VectorIndex) Stats(ctx context.Context) (types.IndexStats, error) {
	st, err := x.store.Stats(ctx, x.namespace)
	if err != nil {
		return types.IndexStats{}, types.IndexError("index.stats", err, "describe stats")
	}
	return types.IndexStats{
		Dimension:        st.Dimension,
		TotalVectors:     st.TotalVectors,
		NamespaceVectors: st.NamespaceVectors,
	}, nil
}

func toIndexMatches(in []pinecone.VectorMatch) []types.IndexMatch {
	out := make([]types.IndexMatch, 0, len(in))
	for _, m := range in {
		out = append(out, types.IndexMatch{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: types.MetadataFromMap(m.Metadata),
		})
	}
	return out
}

// filterMap builds a Pinecone-style metadata filter; the qdrant store translates the same shape.
func filterMap(f steps.Filter) map[string]any {
	if f.Empty() {
		return nil
	}
	var clauses []any
	if name := strings.TrimSpace(f.FileName); name != "" {
		clauses = append(clauses, map[string]any{types.MetaFileName: map[string]any{"$eq": name}})
	}
	if len(f.MimeTypes) > 0 {
		in := make([]any, 0, len(f.MimeTypes))
		for _, m := range f.MimeTypes {
			in = append(in, m)
		}
		clauses = append(clauses, map[string]any{types.MetaMimeType: map[string]any{"$in": in}})
	}
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0].(map[string]any)
	default:
		return map[string]any{"$and": clauses}
	}
}

var dimensionMsg = regexp.MustCompile(`(?i)dimension[^0-9]*(\d+)[^0-9]+(?:dimension[^0-9]*)?(\d+)`)

// classifyIndexErr reports provider-side dimension rejections as dimension errors.
func classifyIndexErr(op string, want, got int, err error) error {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "dimension") {
		if m := dimensionMsg.FindStringSubmatch(msg); m != nil {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			if a != b {
				return types.IndexDimensionError(op, b, a)
			}
		}
		return types.IndexDimensionError(op, want, got)
	}
	return types.IndexError(op, err, "vector store call failed")
}
