package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/yungbote/imagerag/internal/platform/logger"
)

func TestNormalizeEmbeddingShapes(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{"flat", `[0.1, 0.2, 0.3]`, 3, false},
		{"batch of one", `[[0.1, 0.2, 0.3]]`, 3, false},
		{"batch of two", `[[0.1], [0.2]]`, 0, true},
		{"token level", `[[[0.1, 0.2]]]`, 0, true},
		{"empty", `[]`, 0, true},
		{"api error", `{"error": "Model is loading"}`, 0, true},
	}
	for _, tc := range cases {
		got, err := NormalizeEmbedding([]byte(tc.raw))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != tc.wantLen {
			t.Fatalf("%s: len want=%d got=%d", tc.name, tc.wantLen, len(got))
		}
	}
}

func TestFeatureExtractionRequestShape(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		wantPath := "/hf-inference/models/sentence-transformers/all-mpnet-base-v2/pipeline/feature-extraction"
		if r.URL.Path != wantPath {
			t.Fatalf("path: want=%q got=%q", wantPath, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_x" {
			t.Fatalf("authorization: want=%q got=%q", "Bearer hf_x", got)
		}
		var body featureExtractionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Inputs != "red bicycle" {
			t.Fatalf("inputs: want=%q got=%q", "red bicycle", body.Inputs)
		}
		return rawResponse(http.StatusOK, `[[1, 2, 3, 4]]`), nil
	})
	vec, err := c.FeatureExtraction(context.Background(), "  red bicycle ")
	if err != nil {
		t.Fatalf("FeatureExtraction: %v", err)
	}
	if len(vec) != 4 || vec[3] != 4 {
		t.Fatalf("vector: got=%v", vec)
	}
}

func TestFeatureExtractionSurfacesHTTPError(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return rawResponse(http.StatusUnauthorized, `{"error":"bad token"}`), nil
	})
	_, err := c.FeatureExtraction(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got=%v", err)
	}
}

func TestFeatureExtractionEmptyInput(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := c.FeatureExtraction(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func newTestClient(t *testing.T, rt func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	c, err := NewClient(logger.NewNop(), Config{Token: "hf_x"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cl := c.(*client)
	cl.http = &http.Client{Transport: roundTripFunc(rt)}
	return cl
}

func rawResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
