package adapters

import "github.com/yungbote/imagerag/internal/modules/assets/steps"

var (
	_ steps.BlobStore   = (*BlobStore)(nil)
	_ steps.Captioner   = (*VisionLLMCaptioner)(nil)
	_ steps.Captioner   = (*GCPVisionCaptioner)(nil)
	_ steps.Embedder    = (*Embedder)(nil)
	_ steps.Embedder    = (*CachedEmbedder)(nil)
	_ steps.VectorIndex = (*VectorIndex)(nil)
	_ steps.LLM         = (*ReasoningLLM)(nil)
)
