package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/pkg/httpx"
	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

const (
	defaultBaseURL = "https://router.huggingface.co/hf-inference"
	DefaultModel   = "sentence-transformers/all-mpnet-base-v2"
)

type Config struct {
	Token      string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client calls the Inference API feature-extraction pipeline.
type Client interface {
	// FeatureExtraction returns one flat vector for text.
	FeatureExtraction(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("missing HF_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:  log.With("service", "HuggingFaceClient", "model", cfg.Model),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Model() string { return c.cfg.Model }

type featureExtractionRequest struct {
	Inputs  string         `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

func (c *client) FeatureExtraction(ctx context.Context, text string) ([]float32, error) {
	ctx = ctxutil.Default(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("feature extraction input is empty")
	}
	endpoint := c.cfg.BaseURL + "/models/" + escapeModel(c.cfg.Model) + "/pipeline/feature-extraction"
	body, err := json.Marshal(featureExtractionRequest{
		Inputs:  text,
		Options: map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var raw []byte
	status := "error"
	err = httpx.Do(ctx, httpx.RetryPolicy{
		Attempts:    c.cfg.MaxRetries + 1,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  20 * time.Second,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.log.Warn("HuggingFace request retrying", "attempt", attempt, "sleep", wait.String(), "error", err.Error())
		},
	}, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		_ = resp.Body.Close()
		status = strconv.Itoa(resp.StatusCode)
		if readErr != nil {
			return resp, readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpx.StatusError{Service: "huggingface", StatusCode: resp.StatusCode, Body: httpx.Truncate(payload, 1024)}
		}
		raw = payload
		return resp, nil
	})
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveLLMRequest("huggingface", c.cfg.Model, "embed", status, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return NormalizeEmbedding(raw)
}

// NormalizeEmbedding accepts a flat vector ([...]) or a batch of one ([[...]]) and always
// returns a flat vector. Token-level output ([[[...]]]) and larger batches are rejected.
func NormalizeEmbedding(raw []byte) ([]float32, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, fmt.Errorf("empty embedding")
		}
		return toFloat32(flat), nil
	}
	var batch [][]float64
	if err := json.Unmarshal(raw, &batch); err == nil {
		if len(batch) != 1 {
			return nil, fmt.Errorf("expected batch of one embedding, got %d", len(batch))
		}
		if len(batch[0]) == 0 {
			return nil, fmt.Errorf("empty embedding")
		}
		return toFloat32(batch[0]), nil
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("huggingface error: %s", apiErr.Error)
	}
	return nil, fmt.Errorf("unrecognized embedding response shape: %s", httpx.Truncate(raw, 120))
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out
}

// escapeModel keeps the org/name slash but escapes each segment.
func escapeModel(model string) string {
	parts := strings.Split(strings.Trim(model, "/"), "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
