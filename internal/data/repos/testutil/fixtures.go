package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/imagerag/internal/domain"
)

func SeedAsset(tb testing.TB, ctx context.Context, tx *gorm.DB, fileName string, createdAt time.Time) *types.Asset {
	tb.Helper()
	a := &types.Asset{
		ID:          uuid.New(),
		FileName:    fileName,
		FileLocator: "https://blobs.example.com/public/" + fileName,
		Caption:     "caption for " + fileName,
		MimeType:    "image/png",
		SizeBytes:   42,
		VectorDim:   768,
		Metadata:    datatypes.JSON([]byte(`{}`)),
		CreatedAt:   createdAt,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed asset: %v", err)
	}
	return a
}
