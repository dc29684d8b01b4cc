package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/pkg/httpx"
	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

// ImageInput is one image attached to a multimodal prompt.
type ImageInput struct {
	// https://... or data:image/...;base64,...
	ImageURL string
	Detail   string // "low" | "high" | "auto"
}

// Client talks to OpenAI or any OpenAI-compatible endpoint (Groq, vLLM, Ollama).
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error)
}

// API styles. Responses is OpenAI's /v1/responses, Chat is /v1/chat/completions which
// every compatible provider implements.
const (
	APIStyleResponses = "responses"
	APIStyleChat      = "chat"
)

type Config struct {
	// Provider labels logs and metrics ("openai", "groq").
	Provider string
	APIKey   string
	BaseURL  string
	APIStyle string

	Model           string
	EmbedModel      string
	EmbedDimensions int
	Temperature     *float64
	MaxOutputTokens int

	Timeout    time.Duration
	MaxRetries int
}

// ConfigFromEnv reads OPENAI_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Provider:   "openai",
		APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:    strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		APIStyle:   strings.TrimSpace(os.Getenv("OPENAI_API_STYLE")),
		Model:      strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		EmbedModel: strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")),
		MaxRetries: -1,
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("OPENAI_EMBED_DIMENSIONS"))); err == nil && v > 0 {
		cfg.EmbedDimensions = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS"))); err == nil && v > 0 {
		cfg.Timeout = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("OPENAI_MAX_RETRIES"))); err == nil && v >= 0 {
		cfg.MaxRetries = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = &f
		}
	}
	return cfg
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a client from OPENAI_* variables.
func NewClient(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing api key for %s", providerOrDefault(cfg.Provider))
	}
	cfg.Provider = providerOrDefault(cfg.Provider)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	switch strings.ToLower(strings.TrimSpace(cfg.APIStyle)) {
	case APIStyleResponses:
		cfg.APIStyle = APIStyleResponses
	case APIStyleChat:
		cfg.APIStyle = APIStyleChat
	default:
		// only api.openai.com is known to serve /v1/responses with image input
		if strings.Contains(cfg.BaseURL, "api.openai.com") {
			cfg.APIStyle = APIStyleResponses
		} else {
			cfg.APIStyle = APIStyleChat
		}
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 4
	}
	return &client{
		log:        log.With("service", "OpenAIClient", "provider", cfg.Provider),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func providerOrDefault(p string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return "openai"
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: httpx.Truncate(raw, 2048)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, op, path, model string, body any, out any) error {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	var raw []byte
	var lastResp *http.Response
	err := httpx.Do(ctx, httpx.RetryPolicy{
		Attempts:    c.cfg.MaxRetries + 1,
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.log.Warn("OpenAI request retrying",
				"path", path,
				"attempt", attempt,
				"max_retries", c.cfg.MaxRetries,
				"sleep", wait.String(),
				"error", err.Error(),
			)
		},
	}, func(ctx context.Context) (*http.Response, error) {
		resp, payload, err := c.doOnce(ctx, http.MethodPost, path, body)
		lastResp = resp
		raw = payload
		return resp, err
	})
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveLLMRequest(c.cfg.Provider, model, op, statusFromRespErr(lastResp, err), time.Since(start))
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("openai decode error: %w; raw=%s", uErr, httpx.Truncate(raw, 512))
	}
	return nil
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
		clean[i] = s
	}

	req := embeddingsRequest{Model: c.cfg.EmbedModel, Input: clean, Dimensions: c.cfg.EmbedDimensions}
	var resp embeddingsResponse
	if err := c.do(ctx, "embed", "/v1/embeddings", c.cfg.EmbedModel, req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for pos, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			// some compatible servers omit index; fall back to position
			idx = pos
		}
		if idx < len(out) {
			out[idx] = vec
		}
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("openai embeddings missing index %d: requested=%d returned=%d model=%s", i, len(clean), len(resp.Data), c.cfg.EmbedModel)
		}
	}
	return out, nil
}

// -------------------- Text generation --------------------

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesRequest struct {
	Model           string    `json:"model"`
	Input           []message `json:"input"`
	Temperature     *float64  `json:"temperature,omitempty"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.GenerateTextWithImages(ctx, system, user, nil)
}

func (c *client) GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error) {
	var attached []ImageInput
	for _, img := range images {
		if strings.TrimSpace(img.ImageURL) != "" {
			attached = append(attached, img)
		}
	}
	if c.cfg.APIStyle == APIStyleResponses {
		return c.generateResponses(ctx, system, user, attached)
	}
	return c.generateChat(ctx, system, user, attached)
}

func (c *client) generateResponses(ctx context.Context, system, user string, images []ImageInput) (string, error) {
	var userContent any = user
	if len(images) > 0 {
		content := []map[string]any{{"type": "input_text", "text": user}}
		for _, img := range images {
			item := map[string]any{"type": "input_image", "image_url": strings.TrimSpace(img.ImageURL)}
			if d := strings.TrimSpace(img.Detail); d != "" {
				item["detail"] = d
			}
			content = append(content, item)
		}
		userContent = content
	}
	req := responsesRequest{
		Model:           c.cfg.Model,
		Input:           buildMessages(system, userContent),
		Temperature:     c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
	var resp responsesResponse
	if err := c.do(ctx, "generate", "/v1/responses", c.cfg.Model, req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

func (c *client) generateChat(ctx context.Context, system, user string, images []ImageInput) (string, error) {
	var userContent any = user
	if len(images) > 0 {
		content := []map[string]any{{"type": "text", "text": user}}
		for _, img := range images {
			imageURL := map[string]any{"url": strings.TrimSpace(img.ImageURL)}
			if d := strings.TrimSpace(img.Detail); d != "" {
				imageURL["detail"] = d
			}
			content = append(content, map[string]any{"type": "image_url", "image_url": imageURL})
		}
		userContent = content
	}
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(system, userContent),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxOutputTokens,
	}
	var resp chatResponse
	if err := c.do(ctx, "generate", "/v1/chat/completions", c.cfg.Model, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", msg.Refusal)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("empty message content in response")
	}
	return msg.Content, nil
}

func buildMessages(system string, user any) []message {
	msgs := make([]message, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	return append(msgs, message{Role: "user", Content: user})
}

func statusFromRespErr(resp *http.Response, err error) string {
	if err == nil {
		return "ok"
	}
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
