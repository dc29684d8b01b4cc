package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/dbctx"
)

func assetRow(rec types.AssetRecord, size int) (*types.Asset, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("asset id %q is not a uuid: %w", rec.ID, err)
	}
	meta, err := json.Marshal(rec.Metadata().ToMap())
	if err != nil {
		return nil, err
	}
	return &types.Asset{
		ID:          id,
		FileName:    rec.FileName,
		FileLocator: rec.FileLocator,
		Caption:     rec.Caption,
		MimeType:    rec.MimeType,
		SizeBytes:   int64(size),
		VectorDim:   len(rec.Vector),
		Metadata:    datatypes.JSON(meta),
		CreatedAt:   rec.CreatedAt,
	}, nil
}

type ListAssetsDeps struct {
	Catalog Catalog
}

type ListAssetsInput struct {
	FileName string
	Limit    int
}

// ListAssets reads the catalog, newest first. Without a catalog it returns an empty list.
func ListAssets(ctx context.Context, deps ListAssetsDeps, in ListAssetsInput) ([]*types.Asset, error) {
	if deps.Catalog == nil {
		return []*types.Asset{}, nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	var (
		rows []*types.Asset
		err  error
	)
	if in.FileName != "" {
		rows, err = deps.Catalog.ListByFileName(dbc, in.FileName)
	} else {
		limit := in.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		rows, err = deps.Catalog.List(dbc, limit)
	}
	if err != nil {
		return nil, types.CatalogError("catalog.list", err, "list assets")
	}
	return rows, nil
}

type GetAssetDeps struct {
	Index VectorIndex
}

// GetAsset fetches one record straight from the vector index.
func GetAsset(ctx context.Context, deps GetAssetDeps, id string) (types.QueryMatch, bool, error) {
	if id == "" {
		return types.QueryMatch{}, false, types.InvalidArgument("assets.get", "id is required")
	}
	hits, err := deps.Index.Fetch(ctx, []string{id})
	if err != nil {
		return types.QueryMatch{}, false, ensureKind(err, types.KindIndex, "index.fetch")
	}
	if len(hits) == 0 {
		return types.QueryMatch{}, false, nil
	}
	return toQueryMatch(hits[0], 0), true, nil
}

type IndexStatsDeps struct {
	Index VectorIndex
}

func IndexStats(ctx context.Context, deps IndexStatsDeps) (types.IndexStats, error) {
	stats, err := deps.Index.Stats(ctx)
	if err != nil {
		return types.IndexStats{}, ensureKind(err, types.KindIndex, "index.stats")
	}
	return stats, nil
}
