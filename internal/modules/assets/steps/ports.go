package steps

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/dbctx"
)

// BlobStore persists raw image bytes and returns a publicly resolvable locator.
// Storing the same file name twice overwrites the earlier blob.
type BlobStore interface {
	Store(ctx context.Context, data []byte, fileName, mimeType string) (string, error)
}

// Captioner describes an image in natural language. It never returns an empty caption
// without an error.
type Captioner interface {
	Caption(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Embedder turns text into a vector of exactly Dimension() floats.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex stores asset records and serves nearest-neighbor queries, highest score first.
type VectorIndex interface {
	Upsert(ctx context.Context, rec types.AssetRecord) error
	Query(ctx context.Context, vec []float32, topK int, filter Filter) ([]types.IndexMatch, error)
	Fetch(ctx context.Context, ids []string) ([]types.IndexMatch, error)
	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (types.IndexStats, error)
	Dimension() int
}

// Catalog is the relational record of every completed ingestion.
type Catalog interface {
	Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error)
	ListByFileName(dbc dbctx.Context, fileName string) ([]*types.Asset, error)
	List(dbc dbctx.Context, limit int) ([]*types.Asset, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

// LLM answers a user prompt under a system prompt.
type LLM interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Filter narrows retrieval to records whose metadata matches. Zero value matches everything.
type Filter struct {
	FileName  string   `json:"file_name,omitempty"`
	MimeTypes []string `json:"mime_types,omitempty"`
}

func (f Filter) Empty() bool {
	return f.FileName == "" && len(f.MimeTypes) == 0
}

// ReingestPolicy decides what happens to earlier records when a file name is ingested again.
type ReingestPolicy string

const (
	// ReingestReplace removes earlier index entries and catalog rows for the same file name
	// once the new record is indexed.
	ReingestReplace ReingestPolicy = "replace"
	// ReingestAppend keeps every earlier record retrievable.
	ReingestAppend ReingestPolicy = "append"
)

func ParseReingestPolicy(raw string) (ReingestPolicy, bool) {
	switch ReingestPolicy(raw) {
	case "", ReingestReplace:
		return ReingestReplace, true
	case ReingestAppend:
		return ReingestAppend, true
	default:
		return "", false
	}
}
