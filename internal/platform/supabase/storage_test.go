package supabase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/yungbote/imagerag/internal/pkg/httpx"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

func TestUploadRequestShape(t *testing.T) {
	var gotBody []byte
	s := newTestStorage(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/storage/v1/object/images/public/my cat.jpg" {
			t.Fatalf("path: want=%q got=%q", "/storage/v1/object/images/public/my cat.jpg", r.URL.Path)
		}
		if r.Header.Get("x-upsert") != "true" {
			t.Fatalf("x-upsert: want=%q got=%q", "true", r.Header.Get("x-upsert"))
		}
		if r.Header.Get("apikey") != "service-key" {
			t.Fatalf("apikey header missing")
		}
		if r.Header.Get("Content-Type") != "image/jpeg" {
			t.Fatalf("content-type: want=%q got=%q", "image/jpeg", r.Header.Get("Content-Type"))
		}
		gotBody, _ = io.ReadAll(r.Body)
		return response(http.StatusOK, `{"Key":"images/public/my cat.jpg"}`), nil
	})

	if err := s.Upload(context.Background(), "public/my cat.jpg", []byte("jpeg-bytes"), "image/jpeg", true); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if string(gotBody) != "jpeg-bytes" {
		t.Fatalf("body: want=%q got=%q", "jpeg-bytes", string(gotBody))
	}
}

func TestUploadHTTPErrorIsTyped(t *testing.T) {
	s := newTestStorage(t, func(r *http.Request) (*http.Response, error) {
		return response(http.StatusForbidden, `{"message":"new row violates row-level security policy"}`), nil
	})
	err := s.Upload(context.Background(), "public/x.png", []byte("x"), "", false)
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got=%T %v", err, err)
	}
	if se.StatusCode != http.StatusForbidden {
		t.Fatalf("status: want=%d got=%d", http.StatusForbidden, se.StatusCode)
	}
}

func TestPublicURL(t *testing.T) {
	s := newTestStorage(t, nil)
	want := "https://proj.supabase.co/storage/v1/object/public/images/public/my%20cat.jpg"
	if got := s.PublicURL("public/my cat.jpg"); got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		cfg  Config
		code ConfigErrorCode
	}{
		{Config{}, ConfigErrorMissingURL},
		{Config{URL: "proj.supabase.co"}, ConfigErrorInvalidURL},
		{Config{URL: "https://proj.supabase.co"}, ConfigErrorMissingKey},
		{Config{URL: "https://proj.supabase.co", Key: "k"}, ConfigErrorMissingBucket},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.cfg)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigError for %+v, got=%v", tc.cfg, err)
		}
		if cfgErr.Code != tc.code {
			t.Fatalf("code: want=%q got=%q", tc.code, cfgErr.Code)
		}
	}
}

func newTestStorage(t *testing.T, rt func(*http.Request) (*http.Response, error)) *storage {
	t.Helper()
	st, err := NewStorage(logger.NewNop(), Config{URL: "https://proj.supabase.co/", Key: "service-key", Bucket: "images"})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	s := st.(*storage)
	if rt != nil {
		s.http = &http.Client{Transport: roundTripFunc(rt)}
	}
	return s
}

func response(status int, body string) *http.Response {
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
