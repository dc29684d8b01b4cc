package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Asset is the catalog row written once per successful ingestion.
type Asset struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	FileName    string `gorm:"type:text;not null;index:idx_asset_file_name" json:"file_name"`
	FileLocator string `gorm:"type:text;not null" json:"file_locator"`
	Caption     string `gorm:"type:text;not null" json:"caption"`
	MimeType    string `gorm:"type:text;not null;default:''" json:"mime_type"`
	SizeBytes   int64  `gorm:"not null;default:0" json:"size_bytes"`
	VectorDim   int    `gorm:"not null;default:0" json:"vector_dim"`

	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Asset) TableName() string { return "assets" }

// AssetRecord is what the vector index holds for one image.
type AssetRecord struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"-"`
	Caption     string    `json:"caption"`
	FileLocator string    `json:"file_locator"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Metadata is the index-side projection of the record.
func (r AssetRecord) Metadata() AssetMetadata {
	return AssetMetadata{
		FilePath:  r.FileLocator,
		Caption:   r.Caption,
		FileName:  r.FileName,
		MimeType:  r.MimeType,
		Timestamp: UnixSeconds(r.CreatedAt),
	}
}

// QueryMatch is one ranked retrieval result. Rank starts at 1.
type QueryMatch struct {
	ID          string  `json:"id"`
	FileLocator string  `json:"file_locator"`
	FileName    string  `json:"file_name,omitempty"`
	Caption     string  `json:"caption"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

func (m QueryMatch) LowRelevance() bool { return m.Score < LowRelevanceScore }

// IndexMatch is a raw nearest-neighbor hit as the vector index reports it.
type IndexMatch struct {
	ID       string
	Score    float64
	Metadata AssetMetadata
}

// IndexStats summarizes the vector index.
type IndexStats struct {
	Dimension        int   `json:"dimension"`
	TotalVectors     int64 `json:"total_vectors"`
	NamespaceVectors int64 `json:"namespace_vectors"`
}
