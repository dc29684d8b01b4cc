// Package rediscache keeps query embeddings in Redis so repeated searches skip the embed call.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Addr:      envutil.String("REDIS_ADDR", ""),
		Password:  envutil.String("REDIS_PASSWORD", ""),
		DB:        envutil.Int("REDIS_DB", 0),
		KeyPrefix: envutil.String("REDIS_KEY_PREFIX", "imagerag:emb"),
		TTL:       envutil.Duration("EMBED_CACHE_TTL", 24*time.Hour),
	}
}

// EmbeddingCache stores vectors keyed by model and input text.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
	Client() goredis.UniversalClient
	Close() error
}

type kv interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

var errMiss = errors.New("cache miss")

type redisKV struct{ rdb goredis.UniversalClient }

func (r redisKV) get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, errMiss
	}
	return b, err
}

func (r redisKV) set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, val, ttl).Err()
}

type cache struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	store  kv
	prefix string
	ttl    time.Duration
}

func New(log *logger.Logger, cfg Config) (EmbeddingCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c := newCache(log, redisKV{rdb: rdb}, cfg)
	c.rdb = rdb
	c.log.Info("embedding cache ready", "addr", cfg.Addr, "ttl", c.ttl.String())
	return c, nil
}

func newCache(log *logger.Logger, store kv, cfg Config) *cache {
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "imagerag:emb"
	}
	return &cache{log: log.With("service", "RedisEmbeddingCache"), store: store, prefix: prefix, ttl: cfg.TTL}
}

func (c *cache) Client() goredis.UniversalClient { return c.rdb }

func (c *cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *cache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	raw, err := c.store.get(ctx, c.key(model, text))
	if errors.Is(err, errMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *cache) Set(ctx context.Context, model, text string, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	if err := c.store.set(ctx, c.key(model, text), encodeVector(vec), c.ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// key hashes the text so arbitrary query strings map to bounded, printable keys.
func (c *cache) key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + ":" + model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
