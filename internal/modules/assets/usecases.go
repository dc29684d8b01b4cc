package assets

import (
	"context"

	"golang.org/x/time/rate"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/modules/assets/steps"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type UsecasesDeps struct {
	Log *logger.Logger

	Blob      steps.BlobStore
	Captioner steps.Captioner
	Embedder  steps.Embedder
	Index     steps.VectorIndex
	LLM       steps.LLM

	// Optional: relational catalog; enables listing and replace-on-reingest.
	Catalog steps.Catalog

	Policy           steps.ReingestPolicy
	Concurrency      int
	IngestRatePerSec float64
	MaxTopK          int
}

type Usecases struct {
	deps    UsecasesDeps
	limiter *rate.Limiter
}

func New(deps UsecasesDeps) Usecases {
	u := Usecases{deps: deps}
	if deps.IngestRatePerSec > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(deps.IngestRatePerSec), 1)
	}
	return u
}

type (
	IngestInput    = steps.IngestInput
	IngestOutput   = steps.IngestOutput
	IngestError    = steps.IngestError
	BatchReport    = steps.BatchReport
	ItemResult     = steps.ItemResult
	RetrieveInput  = steps.RetrieveInput
	RetrieveOutput = steps.RetrieveOutput
	Filter         = steps.Filter
	AskInput       = steps.AskInput
	AskOutput      = steps.AskOutput
	ListInput      = steps.ListAssetsInput
)

func (u Usecases) ingestDeps() steps.IngestDeps {
	return steps.IngestDeps{
		Log:       u.deps.Log,
		Blob:      u.deps.Blob,
		Captioner: u.deps.Captioner,
		Embedder:  u.deps.Embedder,
		Index:     u.deps.Index,
		Catalog:   u.deps.Catalog,
		Policy:    u.deps.Policy,
	}
}

func (u Usecases) retrieveDeps() steps.RetrieveDeps {
	return steps.RetrieveDeps{
		Log:      u.deps.Log,
		Embedder: u.deps.Embedder,
		Index:    u.deps.Index,
		MaxTopK:  u.deps.MaxTopK,
	}
}

func (u Usecases) Ingest(ctx context.Context, in IngestInput) (IngestOutput, error) {
	return steps.Ingest(ctx, u.ingestDeps(), in)
}

func (u Usecases) IngestBatch(ctx context.Context, items []IngestInput) BatchReport {
	return steps.IngestBatch(ctx, steps.IngestBatchDeps{
		Ingest:      u.ingestDeps(),
		Concurrency: u.deps.Concurrency,
		Limiter:     u.limiter,
	}, items)
}

// Retrieve returns the topK records closest to query.
func (u Usecases) Retrieve(ctx context.Context, query string, topK int) ([]types.QueryMatch, error) {
	out, err := steps.Retrieve(ctx, u.retrieveDeps(), RetrieveInput{Query: query, TopK: topK})
	return out.Matches, err
}

// RetrieveWhere is Retrieve restricted to records matching filter.
func (u Usecases) RetrieveWhere(ctx context.Context, query string, topK int, filter Filter) (RetrieveOutput, error) {
	return steps.Retrieve(ctx, u.retrieveDeps(), RetrieveInput{Query: query, TopK: topK, Filter: filter})
}

func (u Usecases) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	return steps.Ask(ctx, steps.AskDeps{Log: u.deps.Log, LLM: u.deps.LLM, Retrieve: u.retrieveDeps()}, in)
}

func (u Usecases) ListAssets(ctx context.Context, in ListInput) ([]*types.Asset, error) {
	return steps.ListAssets(ctx, steps.ListAssetsDeps{Catalog: u.deps.Catalog}, in)
}

func (u Usecases) GetAsset(ctx context.Context, id string) (types.QueryMatch, bool, error) {
	return steps.GetAsset(ctx, steps.GetAssetDeps{Index: u.deps.Index}, id)
}

func (u Usecases) IndexStats(ctx context.Context) (types.IndexStats, error) {
	return steps.IndexStats(ctx, steps.IndexStatsDeps{Index: u.deps.Index})
}
