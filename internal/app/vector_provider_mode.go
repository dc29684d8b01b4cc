package app

import (
	"strings"

	"github.com/yungbote/imagerag/internal/platform/gcp"
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
)

const (
	providerSourceExplicit       = "explicit"
	providerSourceStorageDefault = "object_storage_mode_default"
)

// resolveVectorProvider keeps an explicit choice. Otherwise local emulator setups get
// qdrant and everything else gets pinecone.
func resolveVectorProvider(explicit, objectStorageMode string) (string, string) {
	if p := strings.ToLower(strings.TrimSpace(explicit)); p != "" {
		return p, providerSourceExplicit
	}
	if gcp.ObjectStorageMode(strings.TrimSpace(objectStorageMode)) == gcp.ObjectStorageModeGCSEmulator {
		return string(VectorProviderQdrant), providerSourceStorageDefault
	}
	return string(VectorProviderPinecone), providerSourceStorageDefault
}
