package app

import (
	"context"
	"testing"

	"github.com/yungbote/imagerag/internal/platform/gcp"
	"github.com/yungbote/imagerag/internal/platform/huggingface"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/openai"
)

type stubOpenAI struct{}

func (stubOpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, nil
}

func (stubOpenAI) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return "", nil
}

func (stubOpenAI) GenerateTextWithImages(ctx context.Context, system string, user string, images []openai.ImageInput) (string, error) {
	return "", nil
}

type stubHF struct{}

func (stubHF) FeatureExtraction(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (stubHF) Model() string { return "stub-model" }

type stubVision struct{}

func (stubVision) Caption(ctx context.Context, img []byte) (string, error) { return "", nil }
func (stubVision) Close() error                                            { return nil }

func captureOpenAIConfigs(t *testing.T) *[]openai.Config {
	t.Helper()
	orig := newOpenAIClient
	t.Cleanup(func() { newOpenAIClient = orig })
	var got []openai.Config
	newOpenAIClient = func(_ *logger.Logger, cfg openai.Config) (openai.Client, error) {
		got = append(got, cfg)
		return stubOpenAI{}, nil
	}
	return &got
}

func TestPipelineAdaptersNeverRetry(t *testing.T) {
	t.Setenv("GCP_VISION_MAX_RETRIES", "3")
	log := logger.NewNop()

	t.Run("openai caption", func(t *testing.T) {
		got := captureOpenAIConfigs(t)
		cfg := DefaultConfig()
		cfg.Caption.Provider = "openai"
		cfg.Caption.APIKey = "k"
		if _, _, err := resolveCaptioner(log, cfg); err != nil {
			t.Fatalf("resolveCaptioner: %v", err)
		}
		if len(*got) != 1 || (*got)[0].MaxRetries != 0 {
			t.Fatalf("caption retries: want=0 got=%+v", *got)
		}
	})

	t.Run("gcp vision caption", func(t *testing.T) {
		orig := newVisionCaptioner
		t.Cleanup(func() { newVisionCaptioner = orig })
		var got gcp.VisionConfig
		newVisionCaptioner = func(_ *logger.Logger, cfg gcp.VisionConfig) (gcp.VisionCaptioner, error) {
			got = cfg
			return stubVision{}, nil
		}
		cfg := DefaultConfig()
		cfg.Caption.Provider = "gcp_vision"
		if _, _, err := resolveCaptioner(log, cfg); err != nil {
			t.Fatalf("resolveCaptioner: %v", err)
		}
		if got.MaxRetries != 0 {
			t.Fatalf("vision retries: want=0 got=%d", got.MaxRetries)
		}
	})

	t.Run("huggingface embed", func(t *testing.T) {
		orig := newHFClient
		t.Cleanup(func() { newHFClient = orig })
		var got huggingface.Config
		newHFClient = func(_ *logger.Logger, cfg huggingface.Config) (huggingface.Client, error) {
			got = cfg
			return stubHF{}, nil
		}
		cfg := DefaultConfig()
		cfg.Embedding.Provider = "huggingface"
		cfg.Embedding.HFToken = "hf"
		if _, err := resolveBaseEmbedder(log, cfg); err != nil {
			t.Fatalf("resolveBaseEmbedder: %v", err)
		}
		if got.MaxRetries != 0 {
			t.Fatalf("hf retries: want=0 got=%d", got.MaxRetries)
		}
	})

	t.Run("openai embed", func(t *testing.T) {
		got := captureOpenAIConfigs(t)
		origEnv := openAIConfigFromEnv
		t.Cleanup(func() { openAIConfigFromEnv = origEnv })
		openAIConfigFromEnv = func() openai.Config {
			return openai.Config{APIKey: "k", MaxRetries: -1}
		}
		cfg := DefaultConfig()
		cfg.Embedding.Provider = "openai"
		if _, err := resolveBaseEmbedder(log, cfg); err != nil {
			t.Fatalf("resolveBaseEmbedder: %v", err)
		}
		if len(*got) != 1 || (*got)[0].MaxRetries != 0 {
			t.Fatalf("embed retries: want=0 got=%+v", *got)
		}
	})
}

func TestReasoningLLMKeepsRetryDefault(t *testing.T) {
	got := captureOpenAIConfigs(t)
	cfg := DefaultConfig()
	cfg.Reasoning.APIKey = "k"
	llm, err := resolveReasoningLLM(logger.NewNop(), cfg)
	if err != nil || llm == nil {
		t.Fatalf("resolveReasoningLLM: llm=%v err=%v", llm, err)
	}
	if len(*got) != 1 || (*got)[0].MaxRetries != -1 {
		t.Fatalf("reasoning retries: want=-1 got=%+v", *got)
	}
}
