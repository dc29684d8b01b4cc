package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec

	ingestItems   *CounterVec
	ingestStage   *HistogramVec
	retrievals    *CounterVec
	retrievalTime *HistogramVec

	vectorOps     *CounterVec
	vectorLatency *HistogramVec
	blobUploads   *CounterVec
	blobLatency   *HistogramVec
	embedCache    *CounterVec
	bootstrap     *CounterVec

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process-wide metrics registry, or nil when metrics are disabled.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered Metrics. Init is the normal entry point.
func New() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	return &Metrics{
		apiRequests: NewCounterVec("ir_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("ir_api_request_duration_seconds", "API request latency by method/route/status.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("ir_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("ir_model_requests_total", "Model provider requests by provider/model/op/status.", []string{"provider", "model", "op", "status"}),
		llmLatency:  NewHistogramVec("ir_model_request_duration_seconds", "Model provider latency by provider/op/status.", []string{"provider", "op", "status"}, latency),

		ingestItems:   NewCounterVec("ir_ingest_items_total", "Ingested images by outcome and error kind.", []string{"outcome", "kind"}),
		ingestStage:   NewHistogramVec("ir_ingest_stage_duration_seconds", "Ingestion stage latency by stage/status.", []string{"stage", "status"}, latency),
		retrievals:    NewCounterVec("ir_retrievals_total", "Retrieval requests by outcome.", []string{"outcome"}),
		retrievalTime: NewHistogramVec("ir_retrieval_duration_seconds", "Retrieval latency by outcome.", []string{"outcome"}, latency),

		vectorOps:     NewCounterVec("ir_vector_ops_total", "Vector index operations by provider/op/status.", []string{"provider", "op", "status"}),
		vectorLatency: NewHistogramVec("ir_vector_op_duration_seconds", "Vector index latency by provider/op.", []string{"provider", "op"}, latency),
		blobUploads:   NewCounterVec("ir_blob_uploads_total", "Blob uploads by provider/status.", []string{"provider", "status"}),
		blobLatency:   NewHistogramVec("ir_blob_upload_duration_seconds", "Blob upload latency by provider.", []string{"provider"}, latency),
		embedCache:    NewCounterVec("ir_embed_cache_total", "Embedding cache lookups by result.", []string{"result"}),
		bootstrap:     NewCounterVec("ir_provider_bootstrap_total", "Provider bootstrap results by concern/provider/outcome/code.", []string{"concern", "provider", "outcome", "code"}),

		dbStats:   NewGaugeVec("ir_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:   NewGauge("ir_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing: NewGauge("ir_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.ingestItems, m.ingestStage, m.retrievals, m.retrievalTime,
		m.vectorOps, m.vectorLatency, m.blobUploads, m.blobLatency, m.embedCache, m.bootstrap,
		m.dbStats, m.redisUp, m.redisPing,
	}
	for _, metric := range all {
		if err := metric.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unmatched"
	}
	code := strconv.Itoa(status)
	m.apiRequests.Inc(method, route, code)
	m.apiLatency.Observe(dur.Seconds(), method, route, code)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Add(1)
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Add(-1)
	}
}

func (m *Metrics) ObserveLLMRequest(provider, model, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(provider, model, op, status)
	m.llmLatency.Observe(dur.Seconds(), provider, op, status)
}

// ObserveIngestItem counts one finished ingestion. kind is empty for successes.
func (m *Metrics) ObserveIngestItem(outcome, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.ingestItems.Inc(outcome, kind)
}

func (m *Metrics) ObserveIngestStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestStage.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) ObserveRetrieval(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.retrievals.Inc(outcome)
	m.retrievalTime.Observe(dur.Seconds(), outcome)
}

func (m *Metrics) ObserveVectorOp(provider, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(provider, op, status)
	m.vectorLatency.Observe(dur.Seconds(), provider, op)
}

func (m *Metrics) ObserveBlobUpload(provider, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.blobUploads.Inc(provider, status)
	m.blobLatency.Observe(dur.Seconds(), provider)
}

func (m *Metrics) ObserveEmbedCache(result string) {
	if m == nil {
		return
	}
	m.embedCache.Inc(result)
}

func (m *Metrics) ObserveProviderBootstrap(concern, provider, outcome, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "none"
	}
	m.bootstrap.Inc(concern, provider, outcome, code)
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

// StartRedisCollector pings the embedding cache on an interval.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
