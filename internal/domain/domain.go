// Package domain holds the asset model shared by the pipelines, the catalog and the API:
// the persisted Asset row, the ephemeral QueryMatch, the ingestion Stage machine and the
// error taxonomy every adapter reports through.
package domain

// DefaultEmbeddingDim is the vector length of sentence-transformers/all-mpnet-base-v2.
const DefaultEmbeddingDim = 768

// LowRelevanceScore is the score below which a match is flagged as a weak hit.
const LowRelevanceScore = 0.40
