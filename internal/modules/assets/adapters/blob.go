package adapters

import (
	"context"
	"path"
	"strings"
	"time"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/gcp"
	"github.com/yungbote/imagerag/internal/platform/supabase"
)

// ObjectUploader is the slice of an object store the blob adapter needs.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

// BlobStore stores images under prefix+file name, overwriting earlier uploads of the same name.
type BlobStore struct {
	provider string
	store    ObjectUploader
	prefix   string
}

func NewBlobStore(provider string, store ObjectUploader, prefix string) *BlobStore {
	return &BlobStore{provider: provider, store: store, prefix: normalizePrefix(prefix)}
}

type supabaseUploader struct{ s supabase.Storage }

func (u supabaseUploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return u.s.Upload(ctx, key, data, contentType, true)
}

func (u supabaseUploader) PublicURL(key string) string { return u.s.PublicURL(key) }

func NewSupabaseBlobStore(s supabase.Storage, prefix string) *BlobStore {
	return NewBlobStore("supabase", supabaseUploader{s: s}, prefix)
}

func NewGCSBlobStore(b gcp.Bucket, prefix string) *BlobStore {
	return NewBlobStore("gcs", b, prefix)
}

func (b *BlobStore) Store(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	key := b.prefix + objectName(fileName)
	if objectName(fileName) == "" {
		return "", types.StorageError("blob.store", nil, "file name %q has no usable object name", fileName)
	}
	start := time.Now()
	err := b.store.Upload(ctx, key, data, mimeType)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveBlobUpload(b.provider, status, time.Since(start))
	}
	if err != nil {
		return "", types.StorageError("blob.store", err, "%s upload of %q failed", b.provider, key)
	}
	locator := b.store.PublicURL(key)
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return "", types.StorageError("blob.store", nil, "%s returned unusable locator %q", b.provider, locator)
	}
	return locator, nil
}

// objectName keeps the base name only so uploads cannot escape the prefix.
func objectName(fileName string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
