package app

import (
	"fmt"
	"time"

	"github.com/yungbote/imagerag/internal/modules/assets/adapters"
	"github.com/yungbote/imagerag/internal/platform/gcp"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/supabase"
)

var (
	newSupabaseStorage = supabase.NewStorage
	newGCSBucket       = gcp.NewBucket
	gcsBucketConfig    = gcp.BucketConfigFromEnv
)

const concernBlob = "blob"

func resolveBlobStore(log *logger.Logger, cfg Config) (*adapters.BlobStore, func() error, error) {
	provider := cfg.Blob.Provider
	switch provider {
	case "supabase":
		st, err := newSupabaseStorage(log, supabase.Config{
			URL:        cfg.Blob.SupabaseURL,
			Key:        cfg.Blob.SupabaseKey,
			Bucket:     cfg.Blob.SupabaseBucket,
			Timeout:    2 * time.Minute,
			MaxRetries: adapterMaxRetries,
		})
		if err != nil {
			return nil, nil, bootstrapFailed(log, concernBlob, provider, err)
		}
		bootstrapOK(log, concernBlob, provider, "bucket", st.Bucket(), "key_prefix", cfg.Blob.KeyPrefix)
		return adapters.NewSupabaseBlobStore(st, cfg.Blob.KeyPrefix), nil, nil

	case "gcs":
		bcfg, err := gcsBucketConfig()
		if err != nil {
			return nil, nil, bootstrapFailed(log, concernBlob, provider, err)
		}
		bucket, err := newGCSBucket(log, bcfg)
		if err != nil {
			return nil, nil, bootstrapFailed(log, concernBlob, provider, err)
		}
		bootstrapOK(log, concernBlob, provider,
			"bucket", bucket.Name(),
			"mode", bcfg.Storage.Mode,
			"emulator_host", bcfg.Storage.EmulatorHost,
		)
		return adapters.NewGCSBlobStore(bucket, cfg.Blob.KeyPrefix), bucket.Close, nil

	default:
		err := &BootstrapError{
			Concern:  concernBlob,
			Provider: provider,
			Code:     BootstrapErrorInvalidProvider,
			Cause:    fmt.Errorf("unsupported blob provider %q", provider),
		}
		return nil, nil, bootstrapFailed(log, concernBlob, provider, err)
	}
}
