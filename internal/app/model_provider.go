package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/imagerag/internal/modules/assets/adapters"
	"github.com/yungbote/imagerag/internal/modules/assets/steps"
	"github.com/yungbote/imagerag/internal/platform/gcp"
	"github.com/yungbote/imagerag/internal/platform/huggingface"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/openai"
	"github.com/yungbote/imagerag/internal/platform/rediscache"
)

var (
	newOpenAIClient     = openai.New
	newHFClient         = huggingface.NewClient
	newVisionCaptioner  = gcp.NewVisionCaptioner
	newEmbeddingCache   = rediscache.New
	openAIConfigFromEnv = openai.ConfigFromEnv
)

// adapterMaxRetries is the transport retry budget for every client on the ingest and
// retrieval paths. A failed call surfaces as that item's terminal error; callers resubmit.
const adapterMaxRetries = 0

const (
	concernCaption   = "caption"
	concernEmbedding = "embedding"
	concernReasoning = "reasoning"
	concernCache     = "embed_cache"
)

// providerLabel names an OpenAI-compatible endpoint for logs and metrics.
func providerLabel(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "groq.com"):
		return "groq"
	case baseURL == "" || strings.Contains(baseURL, "openai.com"):
		return "openai"
	default:
		return "openai_compatible"
	}
}

func resolveCaptioner(log *logger.Logger, cfg Config) (steps.Captioner, func() error, error) {
	provider := cfg.Caption.Provider
	switch provider {
	case "openai":
		client, err := newOpenAIClient(log, openai.Config{
			Provider:   providerLabel(cfg.Caption.BaseURL),
			APIKey:     cfg.Caption.APIKey,
			BaseURL:    cfg.Caption.BaseURL,
			APIStyle:   openai.APIStyleChat,
			Model:      cfg.Caption.Model,
			MaxRetries: adapterMaxRetries,
		})
		if err != nil {
			return nil, nil, bootstrapFailed(log, concernCaption, provider, err)
		}
		bootstrapOK(log, concernCaption, provider, "model", cfg.Caption.Model, "max_side", cfg.Caption.MaxSide)
		return adapters.NewVisionLLMCaptioner(client, cfg.Caption.MaxSide), nil, nil

	case "gcp_vision":
		vcfg := gcp.VisionConfigFromEnv()
		vcfg.MaxRetries = adapterMaxRetries
		v, err := newVisionCaptioner(log, vcfg)
		if err != nil {
			return nil, nil, bootstrapFailed(log, concernCaption, provider, err)
		}
		bootstrapOK(log, concernCaption, provider)
		return adapters.NewGCPVisionCaptioner(v), v.Close, nil

	default:
		return nil, nil, bootstrapFailed(log, concernCaption, provider, &BootstrapError{
			Concern:  concernCaption,
			Provider: provider,
			Code:     BootstrapErrorInvalidProvider,
			Cause:    fmt.Errorf("unsupported caption provider %q", provider),
		})
	}
}

func resolveBaseEmbedder(log *logger.Logger, cfg Config) (*adapters.Embedder, error) {
	provider := cfg.Embedding.Provider
	dim := cfg.Embedding.Dimension
	switch provider {
	case "huggingface":
		client, err := newHFClient(log, huggingface.Config{
			Token:      cfg.Embedding.HFToken,
			BaseURL:    cfg.Embedding.HFBaseURL,
			Model:      cfg.Embedding.HFModel,
			MaxRetries: adapterMaxRetries,
		})
		if err != nil {
			return nil, bootstrapFailed(log, concernEmbedding, provider, err)
		}
		bootstrapOK(log, concernEmbedding, provider, "model", client.Model(), "dimension", dim)
		return adapters.NewHuggingFaceEmbedder(client, dim), nil

	case "openai":
		ocfg := openAIConfigFromEnv()
		ocfg.EmbedModel = cfg.Embedding.OpenAIModel
		ocfg.EmbedDimensions = dim
		ocfg.MaxRetries = adapterMaxRetries
		client, err := newOpenAIClient(log, ocfg)
		if err != nil {
			return nil, bootstrapFailed(log, concernEmbedding, provider, err)
		}
		bootstrapOK(log, concernEmbedding, provider, "model", cfg.Embedding.OpenAIModel, "dimension", dim)
		return adapters.NewOpenAIEmbedder(client, cfg.Embedding.OpenAIModel, dim), nil

	default:
		return nil, bootstrapFailed(log, concernEmbedding, provider, &BootstrapError{
			Concern:  concernEmbedding,
			Provider: provider,
			Code:     BootstrapErrorInvalidProvider,
			Cause:    fmt.Errorf("unsupported embedding provider %q", provider),
		})
	}
}

// resolveEmbedder wraps the model with the Redis cache when REDIS_ADDR is set. A cache
// that cannot be reached degrades to uncached embedding.
func resolveEmbedder(log *logger.Logger, cfg Config) (steps.Embedder, rediscache.EmbeddingCache, error) {
	base, err := resolveBaseEmbedder(log, cfg)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return base, nil, nil
	}
	ccfg := rediscache.ConfigFromEnv()
	ccfg.Addr = cfg.RedisAddr
	cache, err := newEmbeddingCache(log, ccfg)
	if err != nil {
		bootstrapDegraded(log, concernCache, "redis", string(BootstrapErrorConnectFailed), "Embedding cache unavailable; continuing uncached")
		return base, nil, nil
	}
	bootstrapOK(log, concernCache, "redis", "addr", ccfg.Addr, "ttl", ccfg.TTL)
	return adapters.NewCachedEmbedder(log, base, cache), cache, nil
}

// resolveReasoningLLM returns nil without a key; chat is then unavailable but ingest and
// search still run. Chat is outside the ingest/retrieval paths and keeps the client's
// transient retry default.
func resolveReasoningLLM(log *logger.Logger, cfg Config) (steps.LLM, error) {
	provider := providerLabel(cfg.Reasoning.BaseURL)
	if strings.TrimSpace(cfg.Reasoning.APIKey) == "" {
		bootstrapDegraded(log, concernReasoning, provider, string(BootstrapErrorMissingCredentials), "Reasoning model key not set; chat disabled")
		return nil, nil
	}
	temp := cfg.Reasoning.Temperature
	client, err := newOpenAIClient(log, openai.Config{
		Provider:    provider,
		APIKey:      cfg.Reasoning.APIKey,
		BaseURL:     cfg.Reasoning.BaseURL,
		APIStyle:    openai.APIStyleChat,
		Model:       cfg.Reasoning.Model,
		Temperature: &temp,
		MaxRetries:  -1,
	})
	if err != nil {
		return nil, bootstrapFailed(log, concernReasoning, provider, err)
	}
	bootstrapOK(log, concernReasoning, provider, "model", cfg.Reasoning.Model)
	return adapters.NewReasoningLLM(client), nil
}
