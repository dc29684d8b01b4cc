package app

import (
	"context"
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	catalogdb "github.com/yungbote/imagerag/internal/data/db"
	assetrepo "github.com/yungbote/imagerag/internal/data/repos/assets"
	httpserver "github.com/yungbote/imagerag/internal/http"
	httpH "github.com/yungbote/imagerag/internal/http/handlers"
	httpMW "github.com/yungbote/imagerag/internal/http/middleware"
	"github.com/yungbote/imagerag/internal/modules/assets"
	"github.com/yungbote/imagerag/internal/modules/assets/steps"
	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

const serviceName = "imagerag"

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Metrics *observability.Metrics
	Vector  VectorBackend
	Assets  assets.Usecases
	Router  *gin.Engine

	closers      []func() error
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New loads configuration and wires every provider. The returned app owns its clients;
// call Close when done.
func New(ctx context.Context) (*App, error) {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	a, err := NewWithConfig(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
	})
	a.Metrics = observability.Init(log)

	dbCfg := catalogdb.ConfigFromEnv()
	dbCfg.Driver = cfg.Catalog.Driver
	dbCfg.DSN = cfg.Catalog.DSN
	db, err := catalogdb.Open(log, dbCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error { return catalogdb.Close(db) })

	blob, closeBlob, err := resolveBlobStore(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.addCloser(closeBlob)

	captioner, closeCaption, err := resolveCaptioner(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.addCloser(closeCaption)

	embedder, cache, err := resolveEmbedder(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cache != nil {
		a.addCloser(cache.Close)
	}

	vb, err := resolveVectorBackend(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Vector = vb

	llm, err := resolveReasoningLLM(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, _ := steps.ParseReingestPolicy(cfg.Ingest.ReingestPolicy)
	a.Assets = assets.New(assets.UsecasesDeps{
		Log:              log.With("module", "assets"),
		Blob:             blob,
		Captioner:        captioner,
		Embedder:         embedder,
		Index:            vb.Index,
		LLM:              llm,
		Catalog:          assetrepo.NewAssetRepo(db, log),
		Policy:           policy,
		Concurrency:      cfg.Ingest.Concurrency,
		IngestRatePerSec: cfg.Ingest.RatePerSec,
		MaxTopK:          cfg.SearchMaxTopK,
	})

	var auth *httpMW.AuthMiddleware
	if cfg.AuthJWTSecret != "" {
		auth = httpMW.NewAuthMiddleware(log, cfg.AuthJWTSecret)
	}
	a.Router = httpserver.NewRouter(httpserver.RouterConfig{
		Log:            log,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,
		Metrics:        a.Metrics,
		AuthMiddleware: auth,
		AssetHandler:   httpH.NewAssetHandlerWithDeps(httpH.AssetHandlerDeps{Log: log, Service: a.Assets}),
		HealthHandler:  httpH.NewHealthHandler(),
	})

	if a.Metrics != nil {
		bg, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.Metrics.StartDBCollector(bg, log, db)
		// METRICS_ADDR exposes metrics on a separate listener in addition to /metrics.
		a.Metrics.StartServer(bg, log, envutil.String("METRICS_ADDR", ""))
		if cache != nil {
			a.Metrics.StartRedisCollector(bg, log, cache.Client())
		}
	}
	return a, nil
}

func (a *App) addCloser(fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// Run serves the HTTP API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := net.JoinHostPort("", a.Cfg.Port)
	a.Log.Info("Serving HTTP", "addr", addr, "env", a.Cfg.Env)
	return (&httpserver.Server{Engine: a.Router}).Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.Log != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
