package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/imagerag/internal/modules/assets/adapters"
	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/pinecone"
	"github.com/yungbote/imagerag/internal/platform/qdrant"
)

var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = pinecone.NewVectorStore
	newQdrantVectorStore   = qdrant.NewVectorStore
	qdrantConfigFromEnv    = qdrant.ResolveConfigFromEnv
)

const concernVector = "vector"

// VectorBackend is the selected store plus, for pinecone, the control-plane client
// the index diagnostics need.
type VectorBackend struct {
	Provider string
	Store    pinecone.VectorStore
	Pinecone pinecone.Client
	Index    *adapters.VectorIndex
}

func resolveVectorBackend(log *logger.Logger, cfg Config) (VectorBackend, error) {
	provider := cfg.Vector.Provider
	dim := cfg.Embedding.Dimension

	switch VectorProvider(provider) {
	case VectorProviderQdrant:
		qcfg, err := qdrantConfigFromEnv(dim)
		if err != nil {
			return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
		}
		if qcfg.VectorDim != dim {
			err := &BootstrapError{
				Concern:  concernVector,
				Provider: provider,
				Code:     BootstrapErrorInvalidConfig,
				Cause:    fmt.Errorf("QDRANT_VECTOR_DIM=%d does not match EMBEDDING_DIM=%d", qcfg.VectorDim, dim),
			}
			return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
		}
		vs, err := newQdrantVectorStore(log, qcfg)
		if err != nil {
			return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
		}
		bootstrapOK(log, concernVector, provider,
			"provider_source", cfg.Vector.ProviderSource,
			"qdrant_url", qcfg.URL,
			"qdrant_collection", qcfg.Collection,
			"vector_dim", qcfg.VectorDim,
		)
		store := adapters.Instrument(provider, vs)
		return VectorBackend{
			Provider: provider,
			Store:    store,
			Index:    adapters.NewVectorIndex(store, cfg.Vector.Namespace, dim),
		}, nil

	case VectorProviderPinecone:
		if strings.TrimSpace(cfg.Vector.PineconeAPIKey) == "" {
			err := &BootstrapError{
				Concern:  concernVector,
				Provider: provider,
				Code:     BootstrapErrorMissingCredentials,
				Cause:    fmt.Errorf("PINECONE_API_KEY not set"),
			}
			return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
		}
		pc, err := newPineconeClient(log, pinecone.Config{
			APIKey:     cfg.Vector.PineconeAPIKey,
			APIVersion: envutil.String("PINECONE_API_VERSION", ""),
			BaseURL:    envutil.String("PINECONE_BASE_URL", ""),
			Timeout:    30 * time.Second,
		})
		if err != nil {
			return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
		}
		vs, err := newPineconeVectorStore(log, pc, pinecone.VectorStoreConfig{
			IndexName: cfg.Vector.PineconeIndexName,
			IndexHost: cfg.Vector.PineconeHost,
		})
		if err != nil {
			return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
		}
		bootstrapOK(log, concernVector, provider,
			"provider_source", cfg.Vector.ProviderSource,
			"index_name", cfg.Vector.PineconeIndexName,
			"namespace", cfg.Vector.Namespace,
		)
		store := adapters.Instrument(provider, vs)
		return VectorBackend{
			Provider: provider,
			Store:    store,
			Pinecone: pc,
			Index:    adapters.NewVectorIndex(store, cfg.Vector.Namespace, dim),
		}, nil

	default:
		err := &BootstrapError{
			Concern:  concernVector,
			Provider: provider,
			Code:     BootstrapErrorInvalidProvider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
		return VectorBackend{}, bootstrapFailed(log, concernVector, provider, err)
	}
}

// OpenVectorBackend resolves only the vector store, for tools that never caption or embed.
func OpenVectorBackend(log *logger.Logger, cfg Config) (VectorBackend, error) {
	return resolveVectorBackend(log, cfg)
}
