package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", 200, time.Millisecond)
	m.ObserveLLMRequest("openai", "gpt", "embed", "ok", time.Millisecond)
	m.ObserveIngestItem("failed", "storage_error")
	m.ObserveRetrieval("ok", time.Millisecond)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: want=%d got=%d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestCurrentNilWhenDisabled(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "false")
	if got := Init(nil); got != nil {
		t.Fatalf("Init: want nil when disabled")
	}
}

func TestIngestAndRetrievalSeries(t *testing.T) {
	m := New()
	m.ObserveIngestItem("done", "")
	m.ObserveIngestItem("failed", "caption_error")
	m.ObserveIngestItem("failed", "caption_error")
	m.ObserveIngestStage("embedding", "ok", 20*time.Millisecond)
	m.ObserveRetrieval("degraded", 5*time.Millisecond)

	if got := m.ingestItems.Value("failed", "caption_error"); got != 2 {
		t.Fatalf("failed caption_error: want=2 got=%v", got)
	}
	if got := m.ingestItems.Value("done", "none"); got != 1 {
		t.Fatalf("done: want=1 got=%v", got)
	}
	if got := m.ingestStage.Count("embedding", "ok"); got != 1 {
		t.Fatalf("stage count: want=1 got=%d", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`ir_ingest_items_total{outcome="failed",kind="caption_error"} 2`,
		`ir_retrievals_total{outcome="degraded"} 1`,
		`# TYPE ir_ingest_stage_duration_seconds histogram`,
		`ir_ingest_stage_duration_seconds_bucket{stage="embedding",status="ok",le="+Inf"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q\n%s", want, out)
		}
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogramVec("h", "help", []string{"op"}, []float64{0.1, 1})
	h.Observe(0.05, "q")
	h.Observe(0.5, "q")
	h.Observe(3, "q")

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`h_bucket{op="q",le="0.1"} 1`,
		`h_bucket{op="q",le="1"} 2`,
		`h_bucket{op="q",le="+Inf"} 3`,
		`h_count{op="q"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("histogram missing %q\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	want := `{a="x\"y",b="unknown"}`
	if got != want {
		t.Fatalf("labelString: want=%q got=%q", want, got)
	}
}
