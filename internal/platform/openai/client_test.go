package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/imagerag/internal/platform/logger"
)

func TestGenerateTextWithImagesChatStyle(t *testing.T) {
	var captured chatRequest
	var rawBody map[string]any
	c := newTestClient(t, Config{Provider: "groq", BaseURL: "https://api.groq.com/openai", Model: "vision-m"}, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Fatalf("path: want=%q got=%q", "/openai/v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Fatalf("authorization: want=%q got=%q", "Bearer k", got)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		_ = json.Unmarshal(raw, &rawBody)
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "a red bicycle"}}},
		}), nil
	})

	got, err := c.GenerateTextWithImages(context.Background(), "", "describe", []ImageInput{{ImageURL: "data:image/png;base64,AAAA"}, {ImageURL: " "}})
	if err != nil {
		t.Fatalf("GenerateTextWithImages: %v", err)
	}
	if got != "a red bicycle" {
		t.Fatalf("text: want=%q got=%q", "a red bicycle", got)
	}
	if captured.Model != "vision-m" {
		t.Fatalf("model: want=%q got=%q", "vision-m", captured.Model)
	}
	msgs := rawBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages: want=1 (no empty system) got=%d", len(msgs))
	}
	content := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content parts: want=2 got=%d", len(content))
	}
	img := content[1].(map[string]any)
	if img["type"] != "image_url" {
		t.Fatalf("part type: want=%q got=%v", "image_url", img["type"])
	}
}

func TestGenerateTextResponsesStyle(t *testing.T) {
	temp := 0.5
	c := newTestClient(t, Config{BaseURL: "https://api.openai.com", Model: "m", Temperature: &temp}, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/responses" {
			t.Fatalf("path: want=%q got=%q", "/v1/responses", r.URL.Path)
		}
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature == nil || *req.Temperature != 0.5 {
			t.Fatalf("temperature: want=0.5 got=%v", req.Temperature)
		}
		if len(req.Input) != 2 || req.Input[0].Role != "system" {
			t.Fatalf("input: got=%+v", req.Input)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"output": []map[string]any{{
				"type":    "message",
				"role":    "assistant",
				"content": []map[string]any{{"type": "output_text", "text": "hello"}},
			}},
		}), nil
	})
	got, err := c.GenerateText(context.Background(), "sys", "hi")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "hello" {
		t.Fatalf("text: want=%q got=%q", "hello", got)
	}
}

func TestEmbedPlacesVectorsByIndexAndSendsDimensions(t *testing.T) {
	c := newTestClient(t, Config{BaseURL: "https://api.openai.com", EmbedDimensions: 3}, func(r *http.Request) (*http.Response, error) {
		var req embeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 3 {
			t.Fatalf("dimensions: want=3 got=%d", req.Dimensions)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{4, 5, 6}},
				{"index": 0, "embedding": []float64{1, 2, 3}},
			},
		}), nil
	})
	got, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 4 {
		t.Fatalf("order: got=%v", got)
	}
}

func TestEmbedRejectsBlankInput(t *testing.T) {
	c := newTestClient(t, Config{}, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := c.Embed(context.Background(), []string{"  "}); err == nil {
		t.Fatalf("expected error for blank input")
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, Config{MaxRetries: 2}, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := jsonResponse(t, http.StatusServiceUnavailable, map[string]any{"error": "busy"})
			resp.Header.Set("Retry-After", "0")
			return resp, nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		}), nil
	})
	cl := c.(*client)
	cl.cfg.APIStyle = APIStyleChat
	if _, err := c.GenerateText(context.Background(), "", "x"); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(logger.NewNop(), Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func newTestClient(t *testing.T, cfg Config, rt func(*http.Request) (*http.Response, error)) Client {
	t.Helper()
	cfg.APIKey = "k"
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = -1
	}
	c, err := New(logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cl := c.(*client)
	cl.httpClient = &http.Client{Transport: roundTripFunc(rt), Timeout: 5 * time.Second}
	if cfg.MaxRetries < 0 {
		cl.cfg.MaxRetries = 0
	}
	return cl
}

func jsonResponse(t *testing.T, status int, v any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
