package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

// Bucket stores image objects in a single GCS bucket and hands back publicly readable URLs.
type Bucket interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
	Name() string
	Close() error
}

type BucketConfig struct {
	Name          string
	CDNDomain     string
	PublicBaseURL string
	UploadTimeout time.Duration
	Storage       ObjectStorageConfig
}

func BucketConfigFromEnv() (BucketConfig, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return BucketConfig{}, fmt.Errorf("resolve object storage config: %w", err)
	}
	cfg := BucketConfig{
		Name:          envutil.String("GCS_BUCKET_NAME", ""),
		CDNDomain:     envutil.String("GCS_CDN_DOMAIN", ""),
		UploadTimeout: envutil.Duration("GCS_UPLOAD_TIMEOUT", 2*time.Minute),
		Storage:       storageCfg,
	}
	base, err := resolvePublicBaseURL(storageCfg)
	if err != nil {
		return BucketConfig{}, err
	}
	cfg.PublicBaseURL = base
	return cfg, nil
}

type bucket struct {
	log    *logger.Logger
	client *storage.Client
	cfg    BucketConfig
}

func NewBucket(log *logger.Logger, cfg BucketConfig) (Bucket, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
	}
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	client, err := newStorageClient(context.Background(), cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	b := &bucket{log: log.With("service", "gcp.Bucket"), client: client, cfg: cfg}
	b.log.Info("Object storage initialized",
		"mode", cfg.Storage.Mode,
		"inferred", cfg.Storage.Inferred,
		"bucket", cfg.Name,
		"public_base_url", cfg.PublicBaseURL,
	)
	return b, nil
}

func newStorageClient(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		// The storage SDK routes to the emulator only through this variable.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func resolvePublicBaseURL(cfg ObjectStorageConfig) (string, error) {
	if raw := envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}
	if cfg.IsEmulatorMode() {
		return strings.TrimRight(cfg.EmulatorHost, "/"), nil
	}
	return "", nil
}

func (b *bucket) Name() string { return b.cfg.Name }

func (b *bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	key = cleanKey(key)
	if key == "" {
		return fmt.Errorf("gcs upload: empty object key")
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.UploadTimeout)
	defer cancel()

	obj := b.client.Bucket(b.cfg.Name).Object(key).Retryer(storage.WithPolicy(storage.RetryNever))
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = contentTypeForKey(key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %q: %w", key, err)
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := b.client.Bucket(b.cfg.Name).Object(cleanKey(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %q in bucket %q: %w", key, b.cfg.Name, err)
	}
	return nil
}

func (b *bucket) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := b.client.Bucket(b.cfg.Name).Object(cleanKey(key)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs %q: %w", key, err)
	}
	return true, nil
}

func (b *bucket) PublicURL(key string) string {
	return publicObjectURL(b.cfg, cleanKey(key))
}

func (b *bucket) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

// publicObjectURL prefers a CDN domain, then the emulator media endpoint, then an explicit
// public base, then the storage.googleapis.com default.
func publicObjectURL(cfg BucketConfig, key string) string {
	if cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimRight(cfg.CDNDomain, "/"), key)
	}
	if cfg.Storage.IsEmulatorMode() {
		base := cfg.PublicBaseURL
		if base == "" {
			base = strings.TrimRight(cfg.Storage.EmulatorHost, "/")
		}
		if base != "" {
			return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(cfg.Name), url.PathEscape(key))
		}
	}
	if cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", cfg.PublicBaseURL, cfg.Name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.Name, key)
}

func cleanKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
