package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/imagerag/internal/modules/assets/steps"
	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type BlobConfig struct {
	Provider  string `yaml:"provider"`
	KeyPrefix string `yaml:"key_prefix"`

	SupabaseURL    string `yaml:"supabase_url"`
	SupabaseKey    string `yaml:"-"`
	SupabaseBucket string `yaml:"supabase_bucket"`
}

type CaptionConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"-"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	MaxSide  int    `yaml:"max_side"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Dimension int    `yaml:"dimension"`
	HFToken   string `yaml:"-"`
	HFModel   string `yaml:"hf_model"`
	HFBaseURL string `yaml:"hf_base_url"`
	// OpenAIModel is used when Provider is openai; the rest comes from OPENAI_*.
	OpenAIModel string `yaml:"openai_model"`
}

type VectorConfig struct {
	Provider string `yaml:"provider"`
	// ProviderSource records whether Provider was set or inferred from the storage mode.
	ProviderSource string `yaml:"-"`

	PineconeAPIKey    string `yaml:"-"`
	PineconeIndexName string `yaml:"pinecone_index_name"`
	PineconeHost      string `yaml:"pinecone_host"`
	Namespace         string `yaml:"namespace"`
}

type ReasoningConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
}

type CatalogConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"-"`
}

type IngestConfig struct {
	Concurrency    int     `yaml:"concurrency"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	ReingestPolicy string  `yaml:"reingest_policy"`
}

type Config struct {
	Env     string `yaml:"env"`
	LogMode string `yaml:"log_mode"`
	Port    string `yaml:"port"`

	ObjectStorageMode string `yaml:"object_storage_mode"`

	Blob      BlobConfig      `yaml:"blob"`
	Caption   CaptionConfig   `yaml:"caption"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Ingest    IngestConfig    `yaml:"ingest"`

	SearchMaxTopK int      `yaml:"search_max_top_k"`
	RedisAddr     string   `yaml:"redis_addr"`
	AuthJWTSecret string   `yaml:"-"`
	CORSOrigins   []string `yaml:"cors_origins"`
}

func DefaultConfig() Config {
	return Config{
		Env:               "development",
		LogMode:           "development",
		Port:              "8080",
		ObjectStorageMode: "gcs",
		Blob: BlobConfig{
			Provider:       "supabase",
			KeyPrefix:      "public/",
			SupabaseBucket: "images",
		},
		Caption: CaptionConfig{
			Provider: "openai",
			BaseURL:  "https://api.groq.com/openai",
			Model:    "meta-llama/llama-4-scout-17b-16e-instruct",
			MaxSide:  1568,
		},
		Embedding: EmbeddingConfig{
			Provider:    "huggingface",
			Dimension:   768,
			HFModel:     "sentence-transformers/all-mpnet-base-v2",
			OpenAIModel: "text-embedding-3-small",
		},
		Vector: VectorConfig{
			PineconeIndexName: "digital-asset-manager",
		},
		Reasoning: ReasoningConfig{
			Model:       "llama-3.3-70b-versatile",
			BaseURL:     "https://api.groq.com/openai",
			Temperature: 0.5,
		},
		Catalog: CatalogConfig{Driver: "sqlite"},
		Ingest: IngestConfig{
			Concurrency:    4,
			ReingestPolicy: string(steps.ReingestReplace),
		},
		SearchMaxTopK: 100,
	}
}

// LoadConfig layers defaults, then the YAML file named by CONFIG_FILE, then environment.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.ObjectStorageMode = strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", cfg.ObjectStorageMode))

	b := &cfg.Blob
	b.Provider = strings.ToLower(envutil.String("BLOB_PROVIDER", b.Provider))
	b.KeyPrefix = envutil.String("BLOB_KEY_PREFIX", b.KeyPrefix)
	b.SupabaseURL = envutil.String("SUPABASE_URL", b.SupabaseURL)
	b.SupabaseKey = envutil.String("SUPABASE_KEY", b.SupabaseKey)
	b.SupabaseBucket = envutil.String("SUPABASE_BUCKET_NAME", b.SupabaseBucket)

	c := &cfg.Caption
	c.Provider = strings.ToLower(envutil.String("CAPTION_PROVIDER", c.Provider))
	c.APIKey = envutil.String("VISION_API_KEY", envutil.String("GROQ_API_KEY", c.APIKey))
	c.BaseURL = envutil.String("VISION_BASE_URL", c.BaseURL)
	c.Model = envutil.String("VISION_MODEL", c.Model)
	c.MaxSide = envutil.Int("CAPTION_MAX_SIDE", c.MaxSide)

	e := &cfg.Embedding
	e.Provider = strings.ToLower(envutil.String("EMBEDDING_PROVIDER", e.Provider))
	e.Dimension = envutil.Int("EMBEDDING_DIM", e.Dimension)
	e.HFToken = envutil.String("HF_TOKEN", e.HFToken)
	e.HFModel = envutil.String("HF_EMBED_MODEL", e.HFModel)
	e.HFBaseURL = envutil.String("HF_BASE_URL", e.HFBaseURL)
	e.OpenAIModel = envutil.String("OPENAI_EMBED_MODEL", e.OpenAIModel)

	v := &cfg.Vector
	v.Provider = strings.ToLower(envutil.String("VECTOR_PROVIDER", v.Provider))
	v.PineconeAPIKey = envutil.String("PINECONE_API_KEY", v.PineconeAPIKey)
	v.PineconeIndexName = envutil.String("PINECONE_INDEX_NAME", v.PineconeIndexName)
	v.PineconeHost = envutil.String("PINECONE_HOST", v.PineconeHost)
	v.Namespace = envutil.String("PINECONE_NAMESPACE", v.Namespace)
	v.Provider, v.ProviderSource = resolveVectorProvider(v.Provider, cfg.ObjectStorageMode)

	r := &cfg.Reasoning
	r.Model = envutil.String("REASONING_MODEL", r.Model)
	r.BaseURL = envutil.String("REASONING_BASE_URL", envutil.String("VISION_BASE_URL", r.BaseURL))
	r.APIKey = envutil.String("REASONING_API_KEY", cfg.Caption.APIKey)
	r.Temperature = envutil.Float("REASONING_TEMPERATURE", r.Temperature)

	cfg.Catalog.Driver = strings.ToLower(envutil.String("CATALOG_DRIVER", cfg.Catalog.Driver))
	cfg.Catalog.DSN = envutil.String("CATALOG_DSN", cfg.Catalog.DSN)

	cfg.Ingest.Concurrency = envutil.Int("INGEST_CONCURRENCY", cfg.Ingest.Concurrency)
	cfg.Ingest.RatePerSec = envutil.Float("INGEST_RATE_PER_SEC", cfg.Ingest.RatePerSec)
	cfg.Ingest.ReingestPolicy = envutil.String("INGEST_REINGEST_POLICY", cfg.Ingest.ReingestPolicy)

	cfg.SearchMaxTopK = envutil.Int("SEARCH_MAX_TOP_K", cfg.SearchMaxTopK)
	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.AuthJWTSecret = envutil.String("AUTH_JWT_SECRET", cfg.AuthJWTSecret)
	if origins := envutil.List("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports every problem at once so a bad deploy fails with one message.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Port) == "" {
		problems = append(problems, "PORT is empty")
	}
	if !oneOf(c.Blob.Provider, "supabase", "gcs") {
		problems = append(problems, fmt.Sprintf("BLOB_PROVIDER %q (want supabase or gcs)", c.Blob.Provider))
	}
	if !oneOf(c.Caption.Provider, "openai", "gcp_vision") {
		problems = append(problems, fmt.Sprintf("CAPTION_PROVIDER %q (want openai or gcp_vision)", c.Caption.Provider))
	}
	if !oneOf(c.Embedding.Provider, "huggingface", "openai") {
		problems = append(problems, fmt.Sprintf("EMBEDDING_PROVIDER %q (want huggingface or openai)", c.Embedding.Provider))
	}
	if !oneOf(c.Vector.Provider, string(VectorProviderPinecone), string(VectorProviderQdrant)) {
		problems = append(problems, fmt.Sprintf("VECTOR_PROVIDER %q (want pinecone or qdrant)", c.Vector.Provider))
	}
	if !oneOf(c.Catalog.Driver, "sqlite", "postgres") {
		problems = append(problems, fmt.Sprintf("CATALOG_DRIVER %q (want sqlite or postgres)", c.Catalog.Driver))
	}
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, "EMBEDDING_DIM must be positive")
	}
	if c.Ingest.Concurrency <= 0 {
		problems = append(problems, "INGEST_CONCURRENCY must be positive")
	}
	if c.Ingest.RatePerSec < 0 {
		problems = append(problems, "INGEST_RATE_PER_SEC must not be negative")
	}
	if _, ok := steps.ParseReingestPolicy(c.Ingest.ReingestPolicy); !ok {
		problems = append(problems, fmt.Sprintf("INGEST_REINGEST_POLICY %q (want replace or append)", c.Ingest.ReingestPolicy))
	}
	if c.SearchMaxTopK <= 0 {
		problems = append(problems, "SEARCH_MAX_TOP_K must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
