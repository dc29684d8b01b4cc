package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/imagerag/internal/pkg/httpx"
	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type Config struct {
	URL        string
	Key        string
	Bucket     string
	Timeout    time.Duration
	MaxRetries int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL    ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL    ConfigErrorCode = "invalid_url"
	ConfigErrorMissingKey    ConfigErrorCode = "missing_key"
	ConfigErrorMissingBucket ConfigErrorCode = "missing_bucket"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorMissingURL:
		return "SUPABASE_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid SUPABASE_URL=%q; expected https://<project>.supabase.co", e.Value)
	case ConfigErrorMissingKey:
		return "SUPABASE_KEY is required"
	case ConfigErrorMissingBucket:
		return "SUPABASE_BUCKET_NAME is required"
	default:
		return "invalid supabase config"
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL}
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return &ConfigError{Code: ConfigErrorMissingKey}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket}
	}
	return nil
}

// Storage is the subset of the Supabase Storage REST API this service needs.
type Storage interface {
	// Upload writes data at key, replacing any existing object when upsert is set.
	Upload(ctx context.Context, key string, data []byte, contentType string, upsert bool) error
	PublicURL(key string) string
	Bucket() string
}

type storage struct {
	log  *logger.Logger
	cfg  Config
	base string
	http *http.Client
}

func NewStorage(log *logger.Logger, cfg Config) (Storage, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &storage{
		log:  log.With("service", "SupabaseStorage", "bucket", cfg.Bucket),
		cfg:  cfg,
		base: strings.TrimRight(cfg.URL, "/") + "/storage/v1",
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *storage) Bucket() string { return s.cfg.Bucket }

func (s *storage) Upload(ctx context.Context, key string, data []byte, contentType string, upsert bool) error {
	ctx = ctxutil.Default(ctx)
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return fmt.Errorf("object key required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	endpoint := s.base + "/object/" + url.PathEscape(s.cfg.Bucket) + "/" + escapeKey(key)

	return httpx.Do(ctx, httpx.RetryPolicy{
		Attempts:    s.cfg.MaxRetries + 1,
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			s.log.Warn("Supabase upload retrying", "key", key, "attempt", attempt, "sleep", wait.String(), "error", err.Error())
		},
	}, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.Key)
		req.Header.Set("apikey", s.cfg.Key)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Cache-Control", "max-age=3600")
		if upsert {
			req.Header.Set("x-upsert", "true")
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, err
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpx.StatusError{Service: "supabase storage", StatusCode: resp.StatusCode, Body: httpx.Truncate(raw, 1024)}
		}
		return resp, nil
	})
}

// PublicURL is the unauthenticated read URL for key in a public bucket.
func (s *storage) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	return s.base + "/object/public/" + url.PathEscape(s.cfg.Bucket) + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
