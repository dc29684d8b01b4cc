package adapters

import (
	"context"
	"time"

	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/pinecone"
)

// InstrumentedStore records latency and status for every vector store call.
type InstrumentedStore struct {
	provider string
	inner    pinecone.VectorStore
}

func Instrument(provider string, inner pinecone.VectorStore) pinecone.VectorStore {
	return &InstrumentedStore{provider: provider, inner: inner}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	metrics := observability.Current()
	if metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveVectorOp(s.provider, op, status, time.Since(start))
}

func (s *InstrumentedStore) Upsert(ctx context.Context, ns string, vectors []pinecone.Vector) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, ns, vectors)
	s.observe("upsert", start, err)
	return err
}

func (s *InstrumentedStore) QueryMatches(ctx context.Context, ns string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	start := time.Now()
	out, err := s.inner.QueryMatches(ctx, ns, q, topK, filter)
	s.observe("query", start, err)
	return out, err
}

func (s *InstrumentedStore) FetchVectors(ctx context.Context, ns string, ids []string) ([]pinecone.VectorMatch, error) {
	start := time.Now()
	out, err := s.inner.FetchVectors(ctx, ns, ids)
	s.observe("fetch", start, err)
	return out, err
}

func (s *InstrumentedStore) DeleteIDs(ctx context.Context, ns string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteIDs(ctx, ns, ids)
	s.observe("delete", start, err)
	return err
}

func (s *InstrumentedStore) Stats(ctx context.Context, ns string) (pinecone.VectorStats, error) {
	start := time.Now()
	out, err := s.inner.Stats(ctx, ns)
	s.observe("stats", start, err)
	return out, err
}
